package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/melchor629/chromecaster/internal/logging"
	"github.com/miekg/dns"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	// mdnsPort is the standard mDNS UDP port
	mdnsPort = 5353

	// maxPacketSize bounds a single mDNS datagram
	maxPacketSize = 9000
)

var (
	ipv4Group = net.IPv4(224, 0, 0, 251)
	ipv6Group = net.ParseIP("ff02::fb")
)

// NativeTransport speaks mDNS directly: queries and responses are packed and
// unpacked with miekg/dns and sent over multicast UDP sockets configured
// through golang.org/x/net. It is the only transport that reports goodbyes.
type NativeTransport struct {
	mu       sync.Mutex
	sessions []*nativeSession
	service  string
	wg       sync.WaitGroup

	interfaces interfaceLister
	addrsOf    func(net.Interface) ([]net.Addr, error)
}

// nativeSession is one multicast socket plus the group address queries go to
type nativeSession struct {
	name string
	conn *net.UDPConn
	dst  *net.UDPAddr
}

// NewNativeTransport creates a transport using the host's interfaces
func NewNativeTransport() *NativeTransport {
	return &NativeTransport{
		interfaces: net.Interfaces,
		addrsOf:    interfaceAddrs,
	}
}

// Start opens the IPv4 session and one IPv6 session per usable interface and
// begins reading responses. Sockets that cannot be opened are logged and
// skipped; ending up with no session at all is not an error.
func (t *NativeTransport) Start(ctx context.Context, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.sessions) > 0 {
		return nil
	}

	if s, err := openIPv4Session(); err != nil {
		logging.Warn("IPv4 mDNS session unavailable", zap.Error(err))
	} else {
		t.sessions = append(t.sessions, s)
	}

	ifaces, err := ipv6Interfaces(t.interfaces, t.addrsOf)
	if err != nil {
		logging.Warn("Cannot enumerate interfaces for IPv6 discovery", zap.Error(err))
	}
	for _, iface := range ifaces {
		s, err := openIPv6Session(iface)
		if err != nil {
			logging.Warn("IPv6 mDNS session unavailable",
				zap.String("interface", iface.Name),
				zap.Error(err),
			)
			continue
		}
		t.sessions = append(t.sessions, s)
	}

	for _, s := range t.sessions {
		logging.Debug("mDNS session open", zap.String("session", s.name), zap.Stringer("group", s.dst))
		t.wg.Add(1)
		go func(s *nativeSession) {
			defer t.wg.Done()
			t.receive(ctx, s, h)
		}(s)
	}

	return nil
}

// Query sends the PTR question for service on every open session
func (t *NativeTransport) Query(service string) error {
	buf, err := NewQuery(service).Pack()
	if err != nil {
		return fmt.Errorf("failed to pack mDNS query: %w", err)
	}
	logging.LogRawBytes("mDNS query", buf)

	t.mu.Lock()
	t.service = service
	sessions := append([]*nativeSession(nil), t.sessions...)
	t.mu.Unlock()

	var errs error
	for _, s := range sessions {
		if _, err := s.conn.WriteToUDP(buf, s.dst); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errs
}

// Stop closes every session and waits for the readers to return
func (t *NativeTransport) Stop() error {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = nil
	t.mu.Unlock()

	var errs error
	for _, s := range sessions {
		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	t.wg.Wait()
	return errs
}

// SessionCount returns the number of open sockets
func (t *NativeTransport) SessionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func (t *NativeTransport) receive(ctx context.Context, s *nativeSession, h Handler) {
	buf := make([]byte, maxPacketSize)
	for {
		n, src, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				logging.Error("mDNS read failed", zap.String("session", s.name), zap.Error(err))
			}
			return
		}

		msg := new(dns.Msg)
		if err := msg.Unpack(buf[:n]); err != nil {
			logging.Debug("Dropping malformed mDNS packet",
				zap.String("session", s.name),
				zap.Stringer("source", src),
				zap.Error(err),
			)
			continue
		}
		if !msg.Response {
			continue
		}

		// a packet may withdraw one instance and announce another
		for _, instance := range goodbyes(msg, t.queriedService()) {
			h.HandleDeparture(instance)
		}
		h.HandleResponse(msg)
	}
}

func (t *NativeTransport) queriedService() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.service == "" {
		return ServiceName()
	}
	return t.service
}

func openIPv4Session() (*nativeSession, error) {
	group := &net.UDPAddr{IP: ipv4Group, Port: mdnsPort}
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return nil, fmt.Errorf("failed to join %s: %w", group, err)
	}

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(255); err != nil {
		logging.Debug("Cannot set multicast TTL", zap.Error(err))
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		logging.Debug("Cannot enable multicast loopback", zap.Error(err))
	}

	return &nativeSession{name: "ipv4", conn: conn, dst: group}, nil
}

func openIPv6Session(iface net.Interface) (*nativeSession, error) {
	group := &net.UDPAddr{IP: ipv6Group, Port: mdnsPort}
	conn, err := net.ListenMulticastUDP("udp6", &iface, group)
	if err != nil {
		return nil, fmt.Errorf("failed to join %s on %s: %w", group, iface.Name, err)
	}

	pc := ipv6.NewPacketConn(conn)
	if err := pc.SetMulticastInterface(&iface); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to select interface %s: %w", iface.Name, err)
	}
	if err := pc.SetMulticastHopLimit(255); err != nil {
		logging.Debug("Cannot set multicast hop limit", zap.String("interface", iface.Name), zap.Error(err))
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		logging.Debug("Cannot enable multicast loopback", zap.String("interface", iface.Name), zap.Error(err))
	}

	return &nativeSession{
		name: "ipv6%" + iface.Name,
		conn: conn,
		dst:  &net.UDPAddr{IP: ipv6Group, Port: mdnsPort, Zone: iface.Name},
	}, nil
}
