package govee

import (
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"github.com/mascanio/dht-thingspeak/metrics"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"
)

// Config selects thermometers by address prefix and company id. When Device
// is set only that address is reported by Read.
type Config struct {
	Address   string
	CompanyID uint16
	Device    string
	MaxAge    time.Duration
	Names     map[string]string
}

type Govee struct {
	config  Config
	adapter *bluetooth.Adapter
	log     logrus.FieldLogger
	now     func() time.Time

	mu     sync.Mutex
	latest metrics.Reading
	seen   bool
}

func New(config Config, log logrus.FieldLogger) *Govee {
	return &Govee{
		config:  config,
		adapter: bluetooth.DefaultAdapter,
		log:     log.WithField("component", "govee"),
		now:     time.Now,
	}
}

func decodeTemperature(in uint64) float64 {
	if in&0x800000 != 0 {
		in &= 0x7FFFFF
		return float64(uint64(in/1000)) / -10.0
	}
	return float64(uint64(in/1000)) / 10.0
}

func decodeHumid(in uint64) float64 {
	in &= 0x7FFFFF
	return float64(uint64(in%1000)) / 10.0
}

// decode parses the 6 byte manufacturer payload of H5075 style thermometers.
func decode(raw []byte) (celsius, humidity float64, ok bool) {
	if len(raw) != 6 {
		return 0, 0, false
	}
	data := append([]byte{0, 0, 0, 0}, raw[:len(raw)-2]...)
	n := binary.BigEndian.Uint64(data)
	return decodeTemperature(n), decodeHumid(n), true
}

func (g *Govee) deviceName(address string) string {
	if name, ok := g.config.Names[address]; ok {
		return name
	}
	return address
}

// Start enables the adapter and scans in the background until Stop.
func (g *Govee) Start() error {
	if err := g.adapter.Enable(); err != nil {
		return err
	}
	g.log.Info("Scanning for devices...")
	go func() {
		err := g.adapter.Scan(func(_ *bluetooth.Adapter, device bluetooth.ScanResult) {
			g.handle(device.Address.String(), device.ManufacturerData())
		})
		if err != nil {
			g.log.WithError(err).Error("Failed to scan")
		}
		g.log.Info("Scan stopped")
	}()
	return nil
}

func (g *Govee) Stop() error {
	return g.adapter.StopScan()
}

func (g *Govee) handle(address string, data []bluetooth.ManufacturerDataElement) {
	if !strings.Contains(address, g.config.Address) {
		return
	}
	if g.config.Device != "" && address != g.config.Device {
		return
	}
	for _, el := range data {
		if el.CompanyID != g.config.CompanyID {
			continue
		}
		celsius, humidity, ok := decode(el.Data)
		if !ok {
			continue
		}
		r := metrics.Reading{
			TemperatureC: celsius,
			TemperatureF: metrics.CelsiusToFahrenheit(celsius),
			Humidity:     humidity,
			Device:       g.deviceName(address),
			Time:         g.now(),
		}
		g.log.Debugf("advertisement %v %v %v", r.Device, r.TemperatureC, r.Humidity)
		g.mu.Lock()
		g.latest, g.seen = r, true
		g.mu.Unlock()
		return
	}
}

// Read returns the latest advertisement, or NaN values when none arrived
// within MaxAge.
func (g *Govee) Read() metrics.Reading {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if !g.seen || (g.config.MaxAge > 0 && now.Sub(g.latest.Time) > g.config.MaxAge) {
		name := g.config.Device
		if name != "" {
			name = g.deviceName(name)
		}
		return metrics.Invalid(name, now)
	}
	return g.latest
}
