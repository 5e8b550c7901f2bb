package metrics

import (
	"math"
	"time"
)

type Reading struct {
	TemperatureC float64
	TemperatureF float64
	Humidity     float64
	Device       string
	Time         time.Time
}

// Invalid returns a reading with every value set to NaN, the way sensors
// report a failed read.
func Invalid(device string, at time.Time) Reading {
	return Reading{
		TemperatureC: math.NaN(),
		TemperatureF: math.NaN(),
		Humidity:     math.NaN(),
		Device:       device,
		Time:         at,
	}
}

func (r Reading) Valid() bool {
	return !math.IsNaN(r.TemperatureC) && !math.IsNaN(r.TemperatureF) && !math.IsNaN(r.Humidity)
}

func CelsiusToFahrenheit(c float64) float64 {
	return c*1.8 + 32
}
