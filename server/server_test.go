package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mascanio/dht-thingspeak/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollectors(reg)
	last := &LastReading{}
	h := NewRouter(reg, last, io.Discard)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reading", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 before first reading, got %d", rec.Code)
	}

	r := metrics.Reading{TemperatureC: 23.5, TemperatureF: 74.3, Humidity: 55, Device: "dht11"}
	last.Set(r)
	c.ObserveReading(r)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reading", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("reading: %d", rec.Code)
	}
	var got readingResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Device != "dht11" || got.TemperatureC != 23.5 || got.Humidity != 55 {
		t.Fatalf("unexpected body %+v", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `dht_temperature_celsius{device="dht11"} 23.5`) {
		t.Fatalf("metrics missing temperature gauge:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
