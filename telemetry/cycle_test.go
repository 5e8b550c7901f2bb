package telemetry

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mascanio/dht-thingspeak/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fixedSensor struct {
	r     metrics.Reading
	reads int
}

func (s *fixedSensor) Read() metrics.Reading {
	s.reads++
	return s.r
}

type setCall struct {
	field int
	value float64
}

type fakeUploader struct {
	code    int
	setCode int
	sets    []setCall
	writes  int
	order   []string
	chID    uint64
	key     string
}

func (u *fakeUploader) SetField(field int, value float64) int {
	u.sets = append(u.sets, setCall{field, value})
	u.order = append(u.order, "set")
	if u.setCode != 0 {
		return u.setCode
	}
	return 200
}

func (u *fakeUploader) WriteFields(_ context.Context, channelID uint64, apiKey string) int {
	u.writes++
	u.order = append(u.order, "write")
	u.chID, u.key = channelID, apiKey
	return u.code
}

type fakePublisher struct {
	got []metrics.Reading
	err error
}

func (p *fakePublisher) Publish(_ context.Context, r metrics.Reading) error {
	p.got = append(p.got, r)
	return p.err
}

func newTestCycle(r metrics.Reading, code int) (*Cycle, *fakeUploader, *test.Hook) {
	logger, hook := test.NewNullLogger()
	u := &fakeUploader{code: code}
	c := NewCycle(&fixedSensor{r: r}, u, Channel{ID: 3, WriteKey: "2XWNHFHNQALPHDIL"}, logger)
	return c, u, hook
}

func messages(hook *test.Hook) []string {
	var out []string
	for _, e := range hook.AllEntries() {
		out = append(out, e.Message)
	}
	return out
}

func TestValidReadingUploaded(t *testing.T) {
	r := metrics.Reading{TemperatureC: 23.5, TemperatureF: 74.3, Humidity: 55.0, Device: "dht11"}
	c, u, hook := newTestCycle(r, 200)

	if code := c.RunOnce(context.Background()); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if len(u.sets) != 2 || u.sets[0] != (setCall{1, 23.5}) || u.sets[1] != (setCall{2, 55.0}) {
		t.Fatalf("unexpected SetField calls %+v", u.sets)
	}
	if strings.Join(u.order, ",") != "set,set,write" {
		t.Fatalf("unexpected call order %v", u.order)
	}
	if u.chID != 3 || u.key != "2XWNHFHNQALPHDIL" {
		t.Fatalf("wrong channel %d/%s", u.chID, u.key)
	}

	msgs := messages(hook)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 log lines, got %v", msgs)
	}
	if msgs[0] != "Data sent to ThingSpeak successfully" {
		t.Fatalf("unexpected first line %q", msgs[0])
	}
	for _, want := range []string{"55", "23.5", "74.3"} {
		if !strings.Contains(msgs[1], want) {
			t.Fatalf("reading line %q missing %q", msgs[1], want)
		}
	}
	if msgs[1] != "Humidity: 55.00% | Temperature: 23.50°C ~ 74.30°F" {
		t.Fatalf("unexpected reading line %q", msgs[1])
	}
}

func TestInvalidReadingNotUploaded(t *testing.T) {
	nan := math.NaN()
	cases := []metrics.Reading{
		{TemperatureC: nan, TemperatureF: nan, Humidity: 60.0},
		{TemperatureC: 20, TemperatureF: 68, Humidity: nan},
		{TemperatureC: 20, TemperatureF: nan, Humidity: 40},
		{TemperatureC: nan, TemperatureF: nan, Humidity: nan},
	}
	for _, r := range cases {
		c, u, hook := newTestCycle(r, 200)
		pub := &fakePublisher{}
		c.Mirror = pub

		if code := c.RunOnce(context.Background()); code != 0 {
			t.Fatalf("%+v: expected no upload, got %d", r, code)
		}
		if len(u.sets) != 0 || u.writes != 0 {
			t.Fatalf("%+v: upload must not be invoked, sets=%v writes=%d", r, u.sets, u.writes)
		}
		if len(pub.got) != 0 {
			t.Fatalf("%+v: invalid reading mirrored", r)
		}
		msgs := messages(hook)
		if len(msgs) != 1 || msgs[0] != "Failed to read from DHT11 sensor!" {
			t.Fatalf("%+v: unexpected log lines %v", r, msgs)
		}
	}
}

func TestUploadFailureLogsCode(t *testing.T) {
	for _, code := range []int{-401, -301, 400, 500} {
		c, _, hook := newTestCycle(metrics.Reading{TemperatureC: 21, TemperatureF: 69.8, Humidity: 40}, code)
		c.RunOnce(context.Background())

		entries := hook.AllEntries()
		if len(entries) != 2 {
			t.Fatalf("code %d: expected 2 log lines, got %d", code, len(entries))
		}
		if entries[0].Level != logrus.ErrorLevel {
			t.Fatalf("code %d: expected error level, got %s", code, entries[0].Level)
		}
		if want := "Failed to send data to ThingSpeak. Error code: " + strconv.Itoa(code); entries[0].Message != want {
			t.Fatalf("code %d: unexpected message %q", code, entries[0].Message)
		}
		if !strings.HasPrefix(entries[1].Message, "Humidity: 40.00%") {
			t.Fatalf("code %d: readings must be logged regardless, got %q", code, entries[1].Message)
		}
	}
}

func TestMirrorAndMetrics(t *testing.T) {
	r := metrics.Reading{TemperatureC: 23.5, TemperatureF: 74.3, Humidity: 55.0, Device: "dht11"}
	c, _, hook := newTestCycle(r, 200)
	reg := prometheus.NewRegistry()
	c.Metrics = metrics.NewCollectors(reg)
	pub := &fakePublisher{err: errors.New("broker down")}
	c.Mirror = pub
	var seen []metrics.Reading
	c.OnReading = func(r metrics.Reading) { seen = append(seen, r) }

	if code := c.RunOnce(context.Background()); code != 200 {
		t.Fatalf("mirror failure must not change upload result, got %d", code)
	}
	if len(pub.got) != 1 || len(seen) != 1 {
		t.Fatalf("expected one mirrored and one observed reading")
	}
	if got := testutil.ToFloat64(c.Metrics.MirrorFailures); got != 1 {
		t.Fatalf("expected 1 mirror failure, got %f", got)
	}
	if got := testutil.ToFloat64(c.Metrics.Uploads.WithLabelValues(metrics.ResultSuccess)); got != 1 {
		t.Fatalf("expected 1 successful upload, got %f", got)
	}
	if e := hook.LastEntry(); e.Level != logrus.WarnLevel {
		t.Fatalf("expected warning for mirror failure, got %s", e.Level)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := &fixedSensor{r: metrics.Reading{TemperatureC: 20, TemperatureF: 68, Humidity: 50}}
	u := &fakeUploader{code: 200}
	c := NewCycle(s, u, Channel{ID: 1, WriteKey: "k"}, logger)
	c.Interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	c.OnReading = func(metrics.Reading) {
		if u.writes == 3 {
			cancel()
		}
	}
	if err := c.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if u.writes != 3 || s.reads != 3 {
		t.Fatalf("expected 3 iterations, got writes=%d reads=%d", u.writes, s.reads)
	}
}

func TestRejectedFieldLogged(t *testing.T) {
	r := metrics.Reading{TemperatureC: math.Inf(1), TemperatureF: math.Inf(1), Humidity: 40}
	c, u, hook := newTestCycle(r, -210)
	u.setCode = -101
	hook.Reset()
	c.log.(*logrus.Entry).Logger.SetLevel(logrus.DebugLevel)

	c.RunOnce(context.Background())

	var rejected []int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.DebugLevel && e.Message == "field not set" {
			rejected = append(rejected, e.Data["field"].(int))
			if e.Data["code"] != -101 {
				t.Fatalf("expected code -101, got %v", e.Data["code"])
			}
		}
	}
	if len(rejected) != 2 || rejected[0] != FieldTemperature || rejected[1] != FieldHumidity {
		t.Fatalf("expected both rejected fields logged, got %v", rejected)
	}
	if u.writes != 1 {
		t.Fatalf("expected one write, got %d", u.writes)
	}
}
