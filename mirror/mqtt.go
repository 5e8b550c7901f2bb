package mirror

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mascanio/dht-thingspeak/metrics"
)

const mqttTimeout = 5 * time.Second

type MQTTConfig struct {
	Broker, ClientID, Topic string
	Username, Password      string
}

type MQTT struct {
	client mqtt.Client
	topic  string
}

func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttTimeout)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username).SetPassword(cfg.Password)
	}
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return &MQTT{client: client, topic: cfg.Topic}, nil
}

func (m *MQTT) Publish(ctx context.Context, r metrics.Reading) error {
	payload, err := encode(r)
	if err != nil {
		return err
	}
	token := m.client.Publish(m.topic, 0, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", m.topic, err)
	}
	return nil
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
