package wifi

import "net"

// Interface treats an already configured network interface as associated
// once it carries an IPv4 address. Useful on wired or pre-provisioned hosts.
type Interface struct {
	Name string

	addrs func(name string) ([]net.Addr, error)
}

func NewInterface(name string) *Interface {
	return &Interface{Name: name, addrs: interfaceAddrs}
}

func (i *Interface) Begin(string, string) error { return nil }

func (i *Interface) Status() Status {
	if i.LocalIP() == nil {
		return Disconnected
	}
	return Connected
}

func (i *Interface) LocalIP() net.IP {
	addrs, err := i.addrs(i.Name)
	if err != nil {
		return nil
	}
	for _, a := range addrs {
		if n, ok := a.(*net.IPNet); ok {
			if ip4 := n.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				return ip4
			}
		}
	}
	return nil
}

func interfaceAddrs(name string) ([]net.Addr, error) {
	ifc, err := net.InterfaceByName(name)
	if err != nil {
		return nil, err
	}
	return ifc.Addrs()
}
