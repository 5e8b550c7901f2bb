package wifi

import (
	"fmt"
	"net"

	"github.com/godbus/dbus/v5"
)

const (
	nmDest      = "org.freedesktop.NetworkManager"
	nmPath      = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	nmIface     = "org.freedesktop.NetworkManager"
	nmDevice    = "org.freedesktop.NetworkManager.Device"
	nmIP4Config = "org.freedesktop.NetworkManager.IP4Config"
)

// NetworkManager associates through the NetworkManager D-Bus API.
type NetworkManager struct {
	iface  string
	object func(dbus.ObjectPath) dbus.BusObject
	device dbus.ObjectPath
}

func NewNetworkManager(conn *dbus.Conn, iface string) *NetworkManager {
	return &NetworkManager{
		iface: iface,
		object: func(p dbus.ObjectPath) dbus.BusObject {
			return conn.Object(nmDest, p)
		},
	}
}

func (n *NetworkManager) Begin(ssid, password string) error {
	var device dbus.ObjectPath
	if err := n.object(nmPath).Call(nmIface+".GetDeviceByIpIface", 0, n.iface).Store(&device); err != nil {
		return fmt.Errorf("lookup device %s: %w", n.iface, err)
	}
	n.device = device

	settings := map[string]map[string]dbus.Variant{
		"connection": {
			"id":   dbus.MakeVariant(ssid),
			"type": dbus.MakeVariant("802-11-wireless"),
		},
		"802-11-wireless": {
			"ssid": dbus.MakeVariant([]byte(ssid)),
			"mode": dbus.MakeVariant("infrastructure"),
		},
	}
	if password != "" {
		settings["802-11-wireless-security"] = map[string]dbus.Variant{
			"key-mgmt": dbus.MakeVariant("wpa-psk"),
			"psk":      dbus.MakeVariant(password),
		}
	}

	// Volatile profiles are dropped by NetworkManager once deactivated, so a
	// restarted agent does not pile up saved connections.
	options := map[string]dbus.Variant{"persist": dbus.MakeVariant("volatile")}
	var conn, active dbus.ObjectPath
	var result map[string]dbus.Variant
	call := n.object(nmPath).Call(nmIface+".AddAndActivateConnection2", 0, settings, device, dbus.ObjectPath("/"), options)
	if err := call.Store(&conn, &active, &result); err != nil {
		return fmt.Errorf("activate %s on %s: %w", ssid, n.iface, err)
	}
	return nil
}

func (n *NetworkManager) Status() Status {
	if n.device == "" {
		return Idle
	}
	v, err := n.object(n.device).GetProperty(nmDevice + ".State")
	if err != nil {
		return Disconnected
	}
	state, ok := v.Value().(uint32)
	if !ok {
		return Disconnected
	}
	return statusFromDeviceState(state)
}

func (n *NetworkManager) LocalIP() net.IP {
	if n.device == "" {
		return nil
	}
	v, err := n.object(n.device).GetProperty(nmDevice + ".Ip4Config")
	if err != nil {
		return nil
	}
	path, ok := v.Value().(dbus.ObjectPath)
	if !ok || path == "/" {
		return nil
	}
	v, err = n.object(path).GetProperty(nmIP4Config + ".AddressData")
	if err != nil {
		return nil
	}
	addrs, ok := v.Value().([]map[string]dbus.Variant)
	if !ok {
		return nil
	}
	for _, a := range addrs {
		if s, ok := a["address"].Value().(string); ok {
			if ip := net.ParseIP(s); ip != nil {
				return ip
			}
		}
	}
	return nil
}

// NMDeviceState values, see nm-dbus-interface.h.
func statusFromDeviceState(state uint32) Status {
	switch {
	case state == 100:
		return Connected
	case state == 120:
		return ConnectFailed
	case state == 110:
		return ConnectionLost
	case state == 30:
		return Disconnected
	case state <= 20:
		return NoSSIDAvail
	default:
		return Idle
	}
}
