package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

type Collectors struct {
	Temperature        *prometheus.GaugeVec
	Humidity           *prometheus.GaugeVec
	ReadFailures       *prometheus.CounterVec
	Uploads            *prometheus.CounterVec
	MirrorFailures     prometheus.Counter
	AssociationRetries prometheus.Gauge
}

func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		Temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dht_temperature_celsius",
			Help: "Last valid temperature read from the sensor",
		}, []string{"device"}),
		Humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dht_humidity_percent",
			Help: "Last valid relative humidity read from the sensor",
		}, []string{"device"}),
		ReadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dht_sensor_read_failures_total",
			Help: "Sensor reads that returned NaN",
		}, []string{"device"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "thingspeak_uploads_total",
			Help: "ThingSpeak writes by result",
		}, []string{"result"}),
		MirrorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mirror_publish_failures_total",
			Help: "Readings that at least one mirror failed to publish",
		}),
		AssociationRetries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wifi_association_retries",
			Help: "Status polls needed by the last WiFi association",
		}),
	}
	reg.MustRegister(c.Temperature, c.Humidity, c.ReadFailures, c.Uploads, c.MirrorFailures, c.AssociationRetries)
	return c
}

func (c *Collectors) ObserveReading(r Reading) {
	if !r.Valid() {
		c.ReadFailures.WithLabelValues(r.Device).Inc()
		return
	}
	c.Temperature.WithLabelValues(r.Device).Set(r.TemperatureC)
	c.Humidity.WithLabelValues(r.Device).Set(r.Humidity)
}

func (c *Collectors) ObserveUpload(code int) {
	if code == 200 {
		c.Uploads.WithLabelValues(ResultSuccess).Inc()
		return
	}
	c.Uploads.WithLabelValues(ResultFailure).Inc()
}
