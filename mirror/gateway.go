package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mascanio/dht-thingspeak/metrics"
)

type GatewayConfig struct {
	URL        string
	ShipmentID string
	BatchID    string
	RFIDTag    string
	Timeout    time.Duration
}

// Gateway posts readings to a cold-chain gateway's /telemetry endpoint, which
// batches them per shipment.
type Gateway struct {
	cfg  GatewayConfig
	http *http.Client
}

type GatewayError struct {
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway rejected telemetry: %d %s", e.Status, e.Message)
}

type gatewayMetadata struct {
	ReadingID    string  `json:"readingId"`
	Device       string  `json:"device"`
	TemperatureF float64 `json:"temperatureF"`
	Timestamp    int64   `json:"timestamp"`
}

type gatewayRequest struct {
	ShipmentID  string          `json:"shipmentId"`
	BatchID     string          `json:"batchId"`
	Temperature float64         `json:"temperature"`
	Humidity    float64         `json:"humidity"`
	RFIDTag     string          `json:"rfidTag,omitempty"`
	Metadata    gatewayMetadata `json:"metadata"`
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")
	return &Gateway{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

func (g *Gateway) Publish(ctx context.Context, r metrics.Reading) error {
	body, err := json.Marshal(gatewayRequest{
		ShipmentID:  g.cfg.ShipmentID,
		BatchID:     g.cfg.BatchID,
		Temperature: r.TemperatureC,
		Humidity:    r.Humidity,
		RFIDTag:     g.cfg.RFIDTag,
		Metadata: gatewayMetadata{
			ReadingID:    uuid.NewString(),
			Device:       r.Device,
			TemperatureF: r.TemperatureF,
			Timestamp:    r.Time.UnixMilli(),
		},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.URL+"/telemetry", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	var reply struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &reply) != nil || reply.Error == "" {
		reply.Error = strings.TrimSpace(string(raw))
	}
	return &GatewayError{Status: resp.StatusCode, Message: reply.Error}
}

func (g *Gateway) Close() error {
	g.http.CloseIdleConnections()
	return nil
}
