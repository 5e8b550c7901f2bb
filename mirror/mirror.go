package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mascanio/dht-thingspeak/metrics"
)

type Publisher interface {
	Publish(ctx context.Context, r metrics.Reading) error
	Close() error
}

type message struct {
	ID           string    `json:"id"`
	Device       string    `json:"device"`
	TemperatureC float64   `json:"temperature_c"`
	TemperatureF float64   `json:"temperature_f"`
	Humidity     float64   `json:"humidity"`
	Time         time.Time `json:"time"`
}

func encode(r metrics.Reading) ([]byte, error) {
	return json.Marshal(message{
		ID:           uuid.NewString(),
		Device:       r.Device,
		TemperatureC: r.TemperatureC,
		TemperatureF: r.TemperatureF,
		Humidity:     r.Humidity,
		Time:         r.Time.UTC(),
	})
}

// Fanout publishes every reading to all of its publishers.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, r metrics.Reading) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
