package dht

import (
	"errors"
	"math"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
)

type fakeDevice struct {
	humidity, temperature float64
	err                   error
}

func (f fakeDevice) Read() (float64, float64, error) {
	return f.humidity, f.temperature, f.err
}

func TestRead(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := newDHT(Config{Pin: "GPIO4", Type: "dht11"}, fakeDevice{humidity: 55, temperature: 23.5}, logger)

	r := d.Read()
	if !r.Valid() {
		t.Fatalf("expected valid reading")
	}
	if r.Humidity != 55 || r.TemperatureC != 23.5 || math.Abs(r.TemperatureF-74.3) > 1e-9 {
		t.Fatalf("unexpected reading %+v", r)
	}
	if r.Device != "dht11" {
		t.Fatalf("expected device name to default to sensor type, got %q", r.Device)
	}
}

func TestReadFailureIsNaN(t *testing.T) {
	logger, _ := test.NewNullLogger()
	d := newDHT(Config{Pin: "GPIO4", Type: "dht11", Name: "attic"}, fakeDevice{err: errors.New("checksum")}, logger)

	r := d.Read()
	if r.Valid() || !math.IsNaN(r.TemperatureC) || !math.IsNaN(r.TemperatureF) || !math.IsNaN(r.Humidity) {
		t.Fatalf("expected all NaN, got %+v", r)
	}
	if r.Device != "attic" {
		t.Fatalf("unexpected device %q", r.Device)
	}
}
