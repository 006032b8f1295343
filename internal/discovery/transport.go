package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// Handler receives what a Transport hears on the network. Calls may arrive
// from several goroutines at once; the Engine serialises them.
type Handler interface {
	// HandleResponse is called for every mDNS response received
	HandleResponse(msg *dns.Msg)

	// HandleDeparture is called when an instance announces it is leaving.
	// Transports that cannot observe goodbyes never call it.
	HandleDeparture(instance string)
}

// Transport is a multicast discovery backend. Start opens the sessions
// (one IPv4 session on the default scope, one IPv6 session per usable
// interface), Query sends a PTR question on all of them and Stop releases
// every socket. Implementations must allow Start after Stop.
type Transport interface {
	Start(ctx context.Context, h Handler) error
	Query(service string) error
	Stop() error
}

// Transport names accepted by NewTransport
const (
	TransportNative    = "native"
	TransportZeroconf  = "zeroconf"
	TransportHashicorp = "hashicorp"
)

// NewTransport returns the transport registered under name.
// An empty name selects the native transport.
func NewTransport(name string) (Transport, error) {
	switch name {
	case "", TransportNative:
		return NewNativeTransport(), nil
	case TransportZeroconf:
		return NewZeroconfTransport(), nil
	case TransportHashicorp:
		return NewHashicorpTransport(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, name)
	}
}

// interfaceLister matches net.Interfaces and is swapped out in tests
type interfaceLister func() ([]net.Interface, error)

// ipv6Interfaces returns every interface that should get its own IPv6
// session: up, multicast capable, not loopback and carrying at least one
// non-loopback IPv6 address.
func ipv6Interfaces(list interfaceLister, addrsOf func(net.Interface) ([]net.Addr, error)) ([]net.Interface, error) {
	ifaces, err := list()
	if err != nil {
		return nil, fmt.Errorf("failed to list network interfaces: %w", err)
	}

	var usable []net.Interface
	for _, iface := range ifaces {
		addrs, err := addrsOf(iface)
		if err != nil {
			continue
		}
		if ipv6Capable(iface, addrs) {
			usable = append(usable, iface)
		}
	}
	return usable, nil
}

func ipv6Capable(iface net.Interface, addrs []net.Addr) bool {
	if iface.Flags&net.FlagUp == 0 ||
		iface.Flags&net.FlagLoopback != 0 ||
		iface.Flags&net.FlagMulticast == 0 {
		return false
	}

	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		if ipnet.IP.To4() == nil && !ipnet.IP.IsLoopback() {
			return true
		}
	}
	return false
}

func interfaceAddrs(iface net.Interface) ([]net.Addr, error) {
	return iface.Addrs()
}
