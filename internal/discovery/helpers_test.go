package discovery

import (
	"context"
	"sync"
	"testing"

	"github.com/miekg/dns"
)

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	if err != nil {
		t.Fatalf("dns.NewRR(%q) error = %v", s, err)
	}
	return rr
}

// castResponse builds a typical receiver announcement
func castResponse(t *testing.T, instance, friendlyName, model string, addrs ...string) *dns.Msg {
	t.Helper()

	fqdn := instance + "._googlecast._tcp.local."
	m := new(dns.Msg)
	m.Response = true
	m.Answer = append(m.Answer, mustRR(t, "_googlecast._tcp.local. 120 IN PTR "+fqdn))
	txt := `"id=4f1c"`
	if friendlyName != "" {
		txt += ` "fn=` + friendlyName + `"`
	}
	if model != "" {
		txt += ` "md=` + model + `"`
	}
	m.Extra = append(m.Extra, mustRR(t, fqdn+" 4500 IN TXT "+txt))
	m.Extra = append(m.Extra, mustRR(t, fqdn+" 120 IN SRV 0 0 8009 "+instance+".local."))
	for _, addr := range addrs {
		kind := "A"
		if containsColon(addr) {
			kind = "AAAA"
		}
		m.Extra = append(m.Extra, mustRR(t, instance+".local. 120 IN "+kind+" "+addr))
	}
	return m
}

func containsColon(s string) bool {
	for _, c := range s {
		if c == ':' {
			return true
		}
	}
	return false
}

// fakeTransport records calls and exposes the handler to tests
type fakeTransport struct {
	mu      sync.Mutex
	handler Handler
	queries []string
	starts  int
	stops   int
}

func (f *fakeTransport) Start(_ context.Context, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	f.starts++
	return nil
}

func (f *fakeTransport) Query(service string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, service)
	return nil
}

func (f *fakeTransport) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = nil
	f.stops++
	return nil
}

func (f *fakeTransport) deliver(msg *dns.Msg) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.HandleResponse(msg)
}

func (f *fakeTransport) depart(instance string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	h.HandleDeparture(instance)
}

// startedEngine returns a running engine over a fake transport
func startedEngine(t *testing.T) (*Engine, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	e := NewEngine(ft)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Stop() })
	return e, ft
}

func runCtx(e *Engine) context.Context {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.ctx
}
