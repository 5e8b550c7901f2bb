package dht

import (
	"fmt"
	"time"

	godht "github.com/MichaelS11/go-dht"
	"github.com/mascanio/dht-thingspeak/metrics"
	"github.com/sirupsen/logrus"
)

type device interface {
	Read() (humidity float64, temperature float64, err error)
}

type Config struct {
	Pin, Type, Name string
}

type DHT struct {
	config Config
	dev    device
	log    logrus.FieldLogger
	now    func() time.Time
}

func New(config Config, log logrus.FieldLogger) (*DHT, error) {
	if err := godht.HostInit(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	dev, err := godht.NewDHT(config.Pin, godht.Celsius, config.Type)
	if err != nil {
		return nil, fmt.Errorf("open %s on %s: %w", config.Type, config.Pin, err)
	}
	return newDHT(config, dev, log), nil
}

func newDHT(config Config, dev device, log logrus.FieldLogger) *DHT {
	if config.Name == "" {
		config.Name = config.Type
	}
	return &DHT{
		config: config,
		dev:    dev,
		log:    log.WithFields(logrus.Fields{"component": "dht", "pin": config.Pin}),
		now:    time.Now,
	}
}

// Read samples the sensor once. A failed read yields NaN for every value.
func (d *DHT) Read() metrics.Reading {
	humidity, celsius, err := d.dev.Read()
	if err != nil {
		d.log.WithError(err).Debug("read failed")
		return metrics.Invalid(d.config.Name, d.now())
	}
	return metrics.Reading{
		TemperatureC: celsius,
		TemperatureF: metrics.CelsiusToFahrenheit(celsius),
		Humidity:     humidity,
		Device:       d.config.Name,
		Time:         d.now(),
	}
}
