package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/melchor629/chromecaster/internal/logging"
	"github.com/miekg/dns"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var errTransportStopped = errors.New("transport not started")

// ZeroconfTransport browses with github.com/grandcat/zeroconf. Every resolved
// entry is handed to the engine as a synthetic response. The library drops
// goodbye packets internally, so departures are never reported.
type ZeroconfTransport struct {
	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	handler Handler
	wg      sync.WaitGroup

	interfaces interfaceLister
	addrsOf    func(net.Interface) ([]net.Addr, error)
}

// NewZeroconfTransport creates a transport using the host's interfaces
func NewZeroconfTransport() *ZeroconfTransport {
	return &ZeroconfTransport{
		interfaces: net.Interfaces,
		addrsOf:    interfaceAddrs,
	}
}

// Start records the handler; resolvers are created on Query
func (t *ZeroconfTransport) Start(ctx context.Context, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return nil
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.handler = h
	return nil
}

// Query starts one IPv4 browse and one IPv6 browse per usable interface.
// Each browse keeps re-querying until Stop.
func (t *ZeroconfTransport) Query(service string) error {
	t.mu.Lock()
	ctx, h := t.ctx, t.handler
	t.mu.Unlock()

	if ctx == nil {
		return errTransportStopped
	}

	var errs error
	if err := t.browse(ctx, h, service, "ipv4", zeroconf.SelectIPTraffic(zeroconf.IPv4)); err != nil {
		errs = multierr.Append(errs, err)
	}

	ifaces, err := ipv6Interfaces(t.interfaces, t.addrsOf)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, iface := range ifaces {
		err := t.browse(ctx, h, service, "ipv6%"+iface.Name,
			zeroconf.SelectIPTraffic(zeroconf.IPv6),
			zeroconf.SelectIfaces([]net.Interface{iface}),
		)
		if err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (t *ZeroconfTransport) browse(ctx context.Context, h Handler, service, session string, opts ...zeroconf.ClientOption) error {
	resolver, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return fmt.Errorf("%s: failed to create mDNS resolver: %w", session, err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		drainEntries(ctx, h, service, entries)
	}()

	serviceType, domain := splitService(service)
	if err := resolver.Browse(ctx, serviceType, domain, entries); err != nil {
		return fmt.Errorf("%s: failed to browse for mDNS services: %w", session, err)
	}

	logging.Debug("zeroconf browse started", zap.String("session", session), zap.String("service", serviceType))
	return nil
}

// drainEntries forwards entries to h until the resolver closes the channel.
// The resolver blocks on every send and only shuts its sockets after the
// channel is closed, so reading continues after ctx is done and late
// entries are discarded.
func drainEntries(ctx context.Context, h Handler, service string, entries <-chan *zeroconf.ServiceEntry) {
	for entry := range entries {
		if ctx.Err() != nil {
			continue
		}
		h.HandleResponse(zeroconfMessage(service, entry))
	}
}

// Stop cancels every browse and waits for the entry readers to return
func (t *ZeroconfTransport) Stop() error {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.ctx = nil
	t.handler = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	return nil
}

// zeroconfMessage converts a resolved entry into an mDNS response
func zeroconfMessage(service string, entry *zeroconf.ServiceEntry) *dns.Msg {
	instance := entry.Instance + "." + dns.Fqdn(service)
	return entryMessage(service, instance, entry.HostName, entry.Text, entry.AddrIPv4, entry.AddrIPv6, entry.TTL)
}
