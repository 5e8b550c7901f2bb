package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	AssociatorNetworkManager = "networkmanager"
	AssociatorInterface      = "interface"

	RestartExit   = "exit"
	RestartReboot = "reboot"

	SensorDHT   = "dht"
	SensorGovee = "govee"
)

type WiFi struct {
	SSID       string        `yaml:"ssid"`
	Password   string        `yaml:"password"`
	Interface  string        `yaml:"interface"`
	Associator string        `yaml:"associator"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Restart    string        `yaml:"restart"`
}

type Sensor struct {
	Kind string `yaml:"kind"`
	Pin  string `yaml:"pin"`
	Type string `yaml:"type"`

	// Govee only. Device is the full address of the one thermometer feeding
	// the channel; MAC is the prefix the scan filters on.
	MAC       string            `yaml:"mac"`
	Device    string            `yaml:"device"`
	CompanyID uint16            `yaml:"company_id"`
	MaxAge    time.Duration     `yaml:"max_age"`
	Names     map[string]string `yaml:"names"`
}

type ThingSpeak struct {
	URL       string        `yaml:"url"`
	ChannelID uint64        `yaml:"channel_id"`
	WriteKey  string        `yaml:"write_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

type MQTT struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Gateway struct {
	URL        string        `yaml:"url"`
	ShipmentID string        `yaml:"shipment_id"`
	BatchID    string        `yaml:"batch_id"`
	RFIDTag    string        `yaml:"rfid_tag"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Mirrors struct {
	MQTT    *MQTT    `yaml:"mqtt"`
	Kafka   *Kafka   `yaml:"kafka"`
	Gateway *Gateway `yaml:"gateway"`
}

type Config struct {
	Device     string        `yaml:"device"`
	LogLevel   string        `yaml:"log_level"`
	Interval   time.Duration `yaml:"interval"`
	StatusAddr string        `yaml:"status_addr"`
	WiFi       WiFi          `yaml:"wifi"`
	Sensor     Sensor        `yaml:"sensor"`
	ThingSpeak ThingSpeak    `yaml:"thingspeak"`
	Mirrors    Mirrors       `yaml:"mirrors"`
}

func Default() Config {
	return Config{
		Device:     "dht11",
		LogLevel:   "info",
		Interval:   2 * time.Second,
		StatusAddr: ":2112",
		WiFi: WiFi{
			Interface:  "wlan0",
			Associator: AssociatorNetworkManager,
			MaxRetries: 20,
			RetryDelay: 500 * time.Millisecond,
			Restart:    RestartExit,
		},
		Sensor: Sensor{
			Kind:      SensorDHT,
			Pin:       "GPIO4",
			Type:      "dht11",
			MAC:       "A4:C1:38",
			CompanyID: 60552,
			MaxAge:    time.Minute,
		},
		ThingSpeak: ThingSpeak{
			URL:     "https://api.thingspeak.com",
			Timeout: 5 * time.Second,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var problems []string
	if c.ThingSpeak.WriteKey == "" {
		problems = append(problems, "thingspeak.write_key is required")
	}
	if c.ThingSpeak.ChannelID == 0 {
		problems = append(problems, "thingspeak.channel_id must be > 0")
	}
	if c.Interval <= 0 {
		problems = append(problems, "interval must be > 0")
	}
	if c.WiFi.MaxRetries < 0 {
		problems = append(problems, "wifi.max_retries must be >= 0")
	}
	switch c.WiFi.Associator {
	case AssociatorNetworkManager:
		if c.WiFi.SSID == "" {
			problems = append(problems, "wifi.ssid is required for networkmanager")
		}
	case AssociatorInterface:
	default:
		problems = append(problems, fmt.Sprintf("unknown wifi.associator %q", c.WiFi.Associator))
	}
	if c.WiFi.Restart != RestartExit && c.WiFi.Restart != RestartReboot {
		problems = append(problems, fmt.Sprintf("unknown wifi.restart %q", c.WiFi.Restart))
	}
	switch c.Sensor.Kind {
	case SensorDHT:
	case SensorGovee:
		if c.Sensor.Device == "" {
			problems = append(problems, "sensor.device is required for govee")
		} else if !strings.HasPrefix(c.Sensor.Device, c.Sensor.MAC) {
			problems = append(problems, fmt.Sprintf("sensor.device %s does not match sensor.mac %s", c.Sensor.Device, c.Sensor.MAC))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown sensor.kind %q", c.Sensor.Kind))
	}
	if m := c.Mirrors.MQTT; m != nil && (m.Broker == "" || m.Topic == "") {
		problems = append(problems, "mirrors.mqtt needs broker and topic")
	}
	if k := c.Mirrors.Kafka; k != nil && (len(k.Brokers) == 0 || k.Topic == "") {
		problems = append(problems, "mirrors.kafka needs brokers and topic")
	}
	if g := c.Mirrors.Gateway; g != nil && (g.URL == "" || g.ShipmentID == "" || g.BatchID == "") {
		problems = append(problems, "mirrors.gateway needs url, shipment_id and batch_id")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
