package wifi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

var ErrAssociationFailed = errors.New("wifi association failed")

type Status int

const (
	Idle Status = iota
	NoSSIDAvail
	Connected
	ConnectFailed
	ConnectionLost
	Disconnected
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case NoSSIDAvail:
		return "no-ssid-avail"
	case Connected:
		return "connected"
	case ConnectFailed:
		return "connect-failed"
	case ConnectionLost:
		return "connection-lost"
	case Disconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Associator starts an association without waiting for it and reports its
// progress when polled.
type Associator interface {
	Begin(ssid, password string) error
	Status() Status
	LocalIP() net.IP
}

type Result struct {
	SSID     string
	LocalIP  net.IP
	Attempts int
}

type Connector struct {
	SSID       string
	Password   string
	MaxRetries int
	RetryDelay time.Duration

	associator Associator
	out        io.Writer
	log        logrus.FieldLogger
	sleep      func(context.Context, time.Duration) error
}

func NewConnector(associator Associator, ssid, password string, out io.Writer, log logrus.FieldLogger) *Connector {
	return &Connector{
		SSID:       ssid,
		Password:   password,
		MaxRetries: 20,
		RetryDelay: 500 * time.Millisecond,
		associator: associator,
		out:        out,
		log:        log.WithField("component", "wifi"),
		sleep:      sleepCtx,
	}
}

// Connect polls the associator at most MaxRetries times. On exhaustion it
// returns ErrAssociationFailed and leaves the restart decision to the caller.
func (c *Connector) Connect(ctx context.Context) (Result, error) {
	fmt.Fprint(c.out, "Connecting to WiFi")
	if err := c.associator.Begin(c.SSID, c.Password); err != nil {
		fmt.Fprintln(c.out, " failed to connect")
		return Result{SSID: c.SSID}, fmt.Errorf("%w: begin: %v", ErrAssociationFailed, err)
	}

	retries := 0
	for c.associator.Status() != Connected && retries < c.MaxRetries {
		if err := c.sleep(ctx, c.RetryDelay); err != nil {
			fmt.Fprintln(c.out)
			return Result{SSID: c.SSID, Attempts: retries}, err
		}
		fmt.Fprint(c.out, ".")
		retries++
	}

	status := c.associator.Status()
	if status != Connected {
		fmt.Fprintln(c.out, " failed to connect")
		c.log.WithFields(logrus.Fields{"ssid": c.SSID, "retries": retries, "status": status}).Error("failed to connect")
		return Result{SSID: c.SSID, Attempts: retries}, fmt.Errorf("%w: %s after %d retries", ErrAssociationFailed, status, retries)
	}

	fmt.Fprintln(c.out, " connected")
	ip := c.associator.LocalIP()
	c.log.WithField("ssid", c.SSID).Infof("IP Address: %v", ip)
	return Result{SSID: c.SSID, LocalIP: ip, Attempts: retries}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
