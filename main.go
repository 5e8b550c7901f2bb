package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/mascanio/dht-thingspeak/config"
	"github.com/mascanio/dht-thingspeak/metrics"
	"github.com/mascanio/dht-thingspeak/mirror"
	"github.com/mascanio/dht-thingspeak/providers/dht"
	"github.com/mascanio/dht-thingspeak/providers/govee"
	"github.com/mascanio/dht-thingspeak/server"
	"github.com/mascanio/dht-thingspeak/telemetry"
	"github.com/mascanio/dht-thingspeak/thingspeak"
	"github.com/mascanio/dht-thingspeak/wifi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath string
		ssid       string
		channelID  uint64
		writeKey   string
		statusAddr string
		logLevel   string
	)
	flag.StringVar(&configPath, "config", "", "Path of the YAML configuration file")
	flag.StringVar(&ssid, "ssid", "", "WiFi network name, overrides the config file")
	flag.Uint64Var(&channelID, "channel", 0, "ThingSpeak channel number, overrides the config file")
	flag.StringVar(&writeKey, "writeKey", "", "ThingSpeak write API key, overrides the config file")
	flag.StringVar(&statusAddr, "statusAddr", "", "Listen address for /metrics, /healthz and /reading")
	flag.StringVar(&logLevel, "logLevel", "", "Log level")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalln("Failed to load configuration: ", err)
	}
	if ssid != "" {
		cfg.WiFi.SSID = ssid
	}
	if channelID != 0 {
		cfg.ThingSpeak.ChannelID = channelID
	}
	if writeKey != "" {
		cfg.ThingSpeak.WriteKey = writeKey
	}
	if statusAddr != "" {
		cfg.StatusAddr = statusAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalln(err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	} else {
		log.Warnf("unknown log level %q, keeping %s", cfg.LogLevel, log.GetLevel())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collected := metrics.NewCollectors(reg)
	last := &server.LastReading{}

	if cfg.StatusAddr != "" {
		accessLog := log.WriterLevel(logrus.DebugLevel)
		defer accessLog.Close()
		go func() {
			log.Infof("Status server listening on %s", cfg.StatusAddr)
			if err := http.ListenAndServe(cfg.StatusAddr, server.NewRouter(reg, last, accessLog)); err != nil {
				log.WithError(err).Error("status server stopped")
			}
		}()
	}

	connector, err := newConnector(cfg, log)
	if err != nil {
		log.Fatalln("Failed to open network: ", err)
	}
	if err := associate(ctx, connector, newRestarter(cfg, log), collected, log); err != nil {
		log.Fatalln(err)
	}

	sensor, closeSensor, err := openSensor(cfg, log)
	if err != nil {
		log.Fatalln("Failed to open sensor: ", err)
	}
	defer closeSensor()

	client := thingspeak.New(cfg.ThingSpeak.URL, cfg.ThingSpeak.Timeout, log)
	cycle := telemetry.NewCycle(sensor, client, telemetry.Channel{
		ID:       cfg.ThingSpeak.ChannelID,
		WriteKey: cfg.ThingSpeak.WriteKey,
	}, log)
	cycle.Interval = cfg.Interval
	cycle.Metrics = collected
	cycle.OnReading = last.Set

	if mirrors := openMirrors(cfg, log); len(mirrors) > 0 {
		cycle.Mirror = mirrors
		defer mirrors.Close()
	}

	if err := cycle.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("telemetry stopped")
	}
	log.Info("Shutting down")
}

func newConnector(cfg config.Config, log logrus.FieldLogger) (*wifi.Connector, error) {
	var associator wifi.Associator
	switch cfg.WiFi.Associator {
	case config.AssociatorNetworkManager:
		conn, err := dbus.ConnectSystemBus()
		if err != nil {
			return nil, err
		}
		associator = wifi.NewNetworkManager(conn, cfg.WiFi.Interface)
	default:
		associator = wifi.NewInterface(cfg.WiFi.Interface)
	}

	connector := wifi.NewConnector(associator, cfg.WiFi.SSID, cfg.WiFi.Password, os.Stdout, log)
	connector.MaxRetries = cfg.WiFi.MaxRetries
	connector.RetryDelay = cfg.WiFi.RetryDelay
	return connector, nil
}

func newRestarter(cfg config.Config, log logrus.FieldLogger) wifi.Restarter {
	if cfg.WiFi.Restart == config.RestartReboot {
		r, err := wifi.NewLogindRestarter()
		if err == nil {
			return r
		}
		log.WithError(err).Error("logind unavailable, exiting instead")
	}
	return wifi.ExitRestarter{}
}

// associate brings the network up and hands an exhausted retry budget to
// the restarter.
func associate(ctx context.Context, connector *wifi.Connector, restarter wifi.Restarter, collected *metrics.Collectors, log logrus.FieldLogger) error {
	res, err := connector.Connect(ctx)
	collected.AssociationRetries.Set(float64(res.Attempts))
	if !errors.Is(err, wifi.ErrAssociationFailed) {
		return err
	}

	log.WithError(err).Warn("Restarting")
	if rerr := restarter.Restart(ctx); rerr != nil {
		return rerr
	}
	return err
}

func openSensor(cfg config.Config, log *logrus.Logger) (telemetry.Sensor, func(), error) {
	switch cfg.Sensor.Kind {
	case config.SensorGovee:
		g := govee.New(govee.Config{
			Address:   cfg.Sensor.MAC,
			CompanyID: cfg.Sensor.CompanyID,
			Device:    cfg.Sensor.Device,
			MaxAge:    cfg.Sensor.MaxAge,
			Names:     cfg.Sensor.Names,
		}, log)
		if err := g.Start(); err != nil {
			return nil, nil, err
		}
		return g, func() { _ = g.Stop() }, nil
	default:
		d, err := dht.New(dht.Config{Pin: cfg.Sensor.Pin, Type: cfg.Sensor.Type, Name: cfg.Device}, log)
		if err != nil {
			return nil, nil, err
		}
		return d, func() {}, nil
	}
}

// openMirrors skips any mirror that cannot be opened; mirrors never keep the
// agent from uploading.
func openMirrors(cfg config.Config, log logrus.FieldLogger) mirror.Fanout {
	var out mirror.Fanout
	if m := cfg.Mirrors.MQTT; m != nil {
		clientID := m.ClientID
		if clientID == "" {
			clientID = cfg.Device
		}
		p, err := mirror.NewMQTT(mirror.MQTTConfig{
			Broker:   m.Broker,
			ClientID: clientID,
			Topic:    m.Topic,
			Username: m.Username,
			Password: m.Password,
		})
		if err != nil {
			log.WithError(err).Warn("MQTT mirror disabled")
		} else {
			out = append(out, p)
		}
	}
	if k := cfg.Mirrors.Kafka; k != nil {
		out = append(out, mirror.NewKafka(k.Brokers, k.Topic))
	}
	if g := cfg.Mirrors.Gateway; g != nil {
		out = append(out, mirror.NewGateway(mirror.GatewayConfig{
			URL:        g.URL,
			ShipmentID: g.ShipmentID,
			BatchID:    g.BatchID,
			RFIDTag:    g.RFIDTag,
			Timeout:    g.Timeout,
		}))
	}
	return out
}
