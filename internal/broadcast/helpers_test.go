package broadcast

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(Config{Host: "127.0.0.1", Ephemeral: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// eventLog records observer calls
type eventLog struct {
	mu           sync.Mutex
	connected    []ConsumerInfo
	disconnected []ConsumerInfo
}

func (l *eventLog) Connected(info ConsumerInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = append(l.connected, info)
}

func (l *eventLog) Disconnected(info ConsumerInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnected = append(l.disconnected, info)
}

func (l *eventLog) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.connected), len(l.disconnected)
}

var errSinkBroken = errors.New("broken pipe")

// fakeSink is an in-memory consumer sink
type fakeSink struct {
	mu      sync.Mutex
	data    []byte
	fail    bool
	closed  bool
	block   bool
	entered chan struct{}
	release chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (f *fakeSink) Write(p []byte) (int, error) {
	f.mu.Lock()
	fail, block := f.fail, f.block
	f.mu.Unlock()

	if block {
		f.entered <- struct{}{}
		<-f.release
		return 0, net.ErrClosed
	}
	if fail {
		return 0, errSinkBroken
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, net.ErrClosed
	}
	f.data = append(f.data, p...)
	return len(p), nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.release)
	}
	return nil
}

func (f *fakeSink) bytes() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.data)
}

func (f *fakeSink) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// admitFake runs a sink through the same admission steps as a GET request
func admitFake(t *testing.T, s *Server, sink *fakeSink, port int) *Consumer {
	t.Helper()
	c := newConsumer(sink, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}, nil)

	s.mu.Lock()
	s.nextID++
	c.info.ID = s.nextID
	s.mu.Unlock()

	s.notify(func(o Observer) { o.Connected(c.Info()) })
	if !s.register(c) {
		t.Fatal("register() = false on a running server")
	}
	return c
}
