package wifi

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"
)

type Restarter interface {
	Restart(ctx context.Context) error
}

// ExitRestarter ends the process with a failure status and relies on the
// service manager to start it again.
type ExitRestarter struct {
	Exit func(code int)
}

func (r ExitRestarter) Restart(context.Context) error {
	exit := r.Exit
	if exit == nil {
		exit = os.Exit
	}
	exit(1)
	return nil
}

// LogindRestarter reboots the host through systemd-logind.
type LogindRestarter struct {
	conn *dbus.Conn
}

func NewLogindRestarter() (*LogindRestarter, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &LogindRestarter{conn: conn}, nil
}

func (r *LogindRestarter) Restart(ctx context.Context) error {
	obj := r.conn.Object("org.freedesktop.login1", "/org/freedesktop/login1")
	if call := obj.CallWithContext(ctx, "org.freedesktop.login1.Manager.Reboot", 0, false); call.Err != nil {
		return fmt.Errorf("logind reboot: %w", call.Err)
	}
	return nil
}

func (r *LogindRestarter) Close() error {
	return r.conn.Close()
}
