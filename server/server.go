package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/mascanio/dht-thingspeak/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LastReading keeps the most recent valid reading for /reading.
type LastReading struct {
	mu sync.RWMutex
	r  metrics.Reading
	ok bool
}

func (l *LastReading) Set(r metrics.Reading) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.r, l.ok = r, true
}

func (l *LastReading) Get() (metrics.Reading, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.r, l.ok
}

type readingResponse struct {
	Device       string    `json:"device"`
	TemperatureC float64   `json:"temperature_c"`
	TemperatureF float64   `json:"temperature_f"`
	Humidity     float64   `json:"humidity"`
	Time         time.Time `json:"time"`
}

func NewRouter(gatherer prometheus.Gatherer, last *LastReading, accessLog io.Writer) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	r.HandleFunc("/reading", func(w http.ResponseWriter, _ *http.Request) {
		reading, ok := last.Get()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(readingResponse{
			Device:       reading.Device,
			TemperatureC: reading.TemperatureC,
			TemperatureF: reading.TemperatureF,
			Humidity:     reading.Humidity,
			Time:         reading.Time,
		})
	}).Methods(http.MethodGet)
	return handlers.CombinedLoggingHandler(accessLog, r)
}
