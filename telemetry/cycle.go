package telemetry

import (
	"context"
	"time"

	"github.com/mascanio/dht-thingspeak/metrics"
	"github.com/sirupsen/logrus"
)

const (
	FieldTemperature = 1
	FieldHumidity    = 2
)

type Sensor interface {
	Read() metrics.Reading
}

type Uploader interface {
	SetField(field int, value float64) int
	WriteFields(ctx context.Context, channelID uint64, apiKey string) int
}

type Publisher interface {
	Publish(ctx context.Context, r metrics.Reading) error
}

type Channel struct {
	ID       uint64
	WriteKey string
}

type Cycle struct {
	Interval time.Duration

	// Optional.
	Mirror    Publisher
	Metrics   *metrics.Collectors
	OnReading func(metrics.Reading)

	sensor   Sensor
	uploader Uploader
	channel  Channel
	log      logrus.FieldLogger
}

func NewCycle(sensor Sensor, uploader Uploader, channel Channel, log logrus.FieldLogger) *Cycle {
	return &Cycle{
		Interval: 2 * time.Second,
		sensor:   sensor,
		uploader: uploader,
		channel:  channel,
		log:      log.WithField("component", "telemetry"),
	}
}

// Run repeats RunOnce every Interval until ctx is done.
func (c *Cycle) Run(ctx context.Context) error {
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		c.RunOnce(ctx)
		t.Reset(c.Interval)
	}
}

// RunOnce reads the sensor and uploads the reading when it is valid. It
// returns the upload status, or 0 when nothing was uploaded.
func (c *Cycle) RunOnce(ctx context.Context) int {
	r := c.sensor.Read()
	if c.Metrics != nil {
		c.Metrics.ObserveReading(r)
	}
	if !r.Valid() {
		c.log.Warn("Failed to read from DHT11 sensor!")
		return 0
	}

	c.setField(FieldTemperature, r.TemperatureC)
	c.setField(FieldHumidity, r.Humidity)
	code := c.uploader.WriteFields(ctx, c.channel.ID, c.channel.WriteKey)
	if code == 200 {
		c.log.Info("Data sent to ThingSpeak successfully")
	} else {
		c.log.Errorf("Failed to send data to ThingSpeak. Error code: %d", code)
	}
	if c.Metrics != nil {
		c.Metrics.ObserveUpload(code)
	}

	c.log.Infof("Humidity: %.2f%% | Temperature: %.2f°C ~ %.2f°F", r.Humidity, r.TemperatureC, r.TemperatureF)

	if c.Mirror != nil {
		if err := c.Mirror.Publish(ctx, r); err != nil {
			c.log.WithError(err).Warn("mirror publish failed")
			if c.Metrics != nil {
				c.Metrics.MirrorFailures.Inc()
			}
		}
	}
	if c.OnReading != nil {
		c.OnReading(r)
	}
	return code
}

func (c *Cycle) setField(field int, value float64) {
	if code := c.uploader.SetField(field, value); code != 200 {
		c.log.WithFields(logrus.Fields{"field": field, "value": value, "code": code}).Debug("field not set")
	}
}
