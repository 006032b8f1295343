package discovery

import (
	"context"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/melchor629/chromecaster/internal/logging"
	"github.com/miekg/dns"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultQueryInterval is how long each hashicorp/mdns query round listens
const DefaultQueryInterval = 3 * time.Second

// HashicorpTransport browses with github.com/hashicorp/mdns in a loop of
// timed queries, one loop for IPv4 and one per usable IPv6 interface.
// Departures are never reported.
type HashicorpTransport struct {
	// Interval is the length of one query round
	Interval time.Duration

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	handler Handler
	wg      sync.WaitGroup

	interfaces interfaceLister
	addrsOf    func(net.Interface) ([]net.Addr, error)
}

// NewHashicorpTransport creates a transport with the default query interval
func NewHashicorpTransport() *HashicorpTransport {
	return &HashicorpTransport{
		Interval:   DefaultQueryInterval,
		interfaces: net.Interfaces,
		addrsOf:    interfaceAddrs,
	}
}

// Start records the handler; query loops are launched on Query
func (t *HashicorpTransport) Start(ctx context.Context, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		return nil
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.handler = h
	return nil
}

// Query launches the browse loops for service
func (t *HashicorpTransport) Query(service string) error {
	t.mu.Lock()
	ctx, h := t.ctx, t.handler
	t.mu.Unlock()

	if ctx == nil {
		return errTransportStopped
	}

	serviceType, domain := splitService(service)
	base := mdns.QueryParam{
		Service: serviceType,
		Domain:  strings.TrimSuffix(domain, "."),
		Timeout: t.Interval,
		Logger:  mdnsLogger(),
	}

	v4 := base
	v4.DisableIPv6 = true
	t.loop(ctx, h, service, "ipv4", v4)

	ifaces, err := ipv6Interfaces(t.interfaces, t.addrsOf)
	var errs error
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, iface := range ifaces {
		v6 := base
		v6.DisableIPv4 = true
		v6.Interface = &iface
		t.loop(ctx, h, service, "ipv6%"+iface.Name, v6)
	}
	return errs
}

func (t *HashicorpTransport) loop(ctx context.Context, h Handler, service, session string, params mdns.QueryParam) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for ctx.Err() == nil {
			entries := make(chan *mdns.ServiceEntry, 16)
			done := make(chan struct{})
			go func() {
				defer close(done)
				for entry := range entries {
					h.HandleResponse(hashicorpMessage(service, entry))
				}
			}()

			p := params
			p.Entries = entries
			err := mdns.QueryContext(ctx, &p)
			close(entries)
			<-done

			if err != nil && ctx.Err() == nil {
				logging.Warn("mDNS query failed", zap.String("session", session), zap.Error(err))
				select {
				case <-ctx.Done():
				case <-time.After(t.Interval):
				}
			}
		}
	}()
}

// mdnsLogger routes the library's log lines into zap at debug level.
// Without it hashicorp/mdns writes every round to the standard logger.
func mdnsLogger() *log.Logger {
	l := logging.GetLogger().Named("mdns")
	std, err := zap.NewStdLogAt(l, zapcore.DebugLevel)
	if err != nil {
		return zap.NewStdLog(l)
	}
	return std
}

// Stop cancels the query loops and waits for them to return
func (t *HashicorpTransport) Stop() error {
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

// hashicorpMessage converts a resolved entry into an mDNS response
func hashicorpMessage(service string, entry *mdns.ServiceEntry) *dns.Msg {
	var v4, v6 []net.IP
	if entry.AddrV4 != nil {
		v4 = append(v4, entry.AddrV4)
	}
	if entry.AddrV6 != nil {
		v6 = append(v6, entry.AddrV6)
	}
	return entryMessage(service, entry.Name, entry.Host, entry.InfoFields, v4, v6, 0)
}
