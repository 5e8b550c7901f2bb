package thingspeak

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Return codes follow the ThingSpeak device library. Positive values are
// HTTP status codes from the server, negative values are local failures.
const (
	OK                 = 200
	ErrBadAPIKey       = 400
	ErrBadURL          = 404
	ErrOutOfRange      = -101
	ErrInvalidField    = -201
	ErrSetFieldMissing = -210
	ErrConnectFailed   = -301
	ErrUnexpectedFail  = -302
	ErrBadResponse     = -303
	ErrTimeout         = -304
	ErrNotInserted     = -401
)

const (
	DefaultURL = "https://api.thingspeak.com"
	maxFields  = 8
	userAgent  = "dht-thingspeak/1.0"
)

type Client struct {
	baseURL string
	http    *http.Client
	log     logrus.FieldLogger

	mu     sync.Mutex
	fields [maxFields]*float64
}

func New(baseURL string, timeout time.Duration, log logrus.FieldLogger) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.WithField("component", "thingspeak"),
	}
}

// SetField buffers a value for the next WriteFields call.
func (c *Client) SetField(field int, value float64) int {
	if field < 1 || field > maxFields {
		return ErrInvalidField
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return ErrOutOfRange
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fields[field-1] = &value
	return OK
}

// WriteFields flushes every buffered field as a single channel update.
// The buffer is cleared whatever the outcome.
func (c *Client) WriteFields(ctx context.Context, channelID uint64, apiKey string) int {
	form := c.drain()
	if channelID == 0 {
		return ErrOutOfRange
	}
	if len(form) == 0 {
		return ErrSetFieldMissing
	}
	form.Set("api_key", apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/update", strings.NewReader(form.Encode()))
	if err != nil {
		return ErrUnexpectedFail
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("channel", channelID).Debug("update request failed")
		return transportCode(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return ErrBadResponse
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode
	}
	entry, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return ErrBadResponse
	}
	if entry == 0 {
		return ErrNotInserted
	}
	c.log.WithFields(logrus.Fields{"channel": channelID, "entry": entry}).Debug("channel updated")
	return OK
}

func (c *Client) drain() url.Values {
	c.mu.Lock()
	defer c.mu.Unlock()
	form := url.Values{}
	for i, v := range c.fields {
		if v != nil {
			form.Set("field"+strconv.Itoa(i+1), strconv.FormatFloat(*v, 'f', -1, 64))
		}
		c.fields[i] = nil
	}
	return form
}

func transportCode(err error) int {
	var uerr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &uerr) && uerr.Timeout()) {
		return ErrTimeout
	}
	return ErrConnectFailed
}
