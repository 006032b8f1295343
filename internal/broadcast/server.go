package broadcast

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/melchor629/chromecaster/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultPort is the first port tried when Config.Port is unset
	DefaultPort = 3000

	// DefaultContentType is served when Config.ContentType is unset
	DefaultContentType = "audio/mp3"

	// DefaultMaxPortAttempts bounds the upward port probe
	DefaultMaxPortAttempts = 1000

	// DefaultWriteTimeout is how long one consumer may take to accept a chunk
	DefaultWriteTimeout = 10 * time.Second

	// requestTimeout bounds reading the request head
	requestTimeout = 10 * time.Second

	// shutdownTimeout bounds how long Stop waits for connection handlers
	shutdownTimeout = 5 * time.Second
)

// Config holds the server configuration
type Config struct {
	Host            string        // Listen host ("" for all interfaces)
	Port            int           // First port to try (DefaultPort when 0)
	Ephemeral       bool          // Bind a kernel-assigned port and ignore Port
	ContentType     string        // Content-Type of the stream
	MaxPortAttempts int           // Ports probed upward from Port
	WriteTimeout    time.Duration // Per-consumer deadline for one chunk
}

func (c Config) withDefaults() Config {
	if c.Ephemeral {
		c.Port = 0
	} else if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.ContentType == "" {
		c.ContentType = DefaultContentType
	}
	if c.MaxPortAttempts <= 0 {
		c.MaxPortAttempts = DefaultMaxPortAttempts
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// Observer is notified when consumers come and go. Connected is called
// before the consumer receives any byte; Disconnected exactly once per
// connected consumer, never before its Connected. Events for different
// consumers may arrive concurrently.
type Observer interface {
	Connected(info ConsumerInfo)
	Disconnected(info ConsumerInfo)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnConnected    func(info ConsumerInfo)
	OnDisconnected func(info ConsumerInfo)
}

// Connected implements Observer
func (o ObserverFuncs) Connected(info ConsumerInfo) {
	if o.OnConnected != nil {
		o.OnConnected(info)
	}
}

// Disconnected implements Observer
func (o ObserverFuncs) Disconnected(info ConsumerInfo) {
	if o.OnDisconnected != nil {
		o.OnDisconnected(info)
	}
}

// Server streams one live byte stream to every connected HTTP consumer
type Server struct {
	config   Config
	listener net.Listener
	port     int
	localIP  string

	mu          sync.Mutex
	started     bool
	closed      bool
	nextID      int
	activeConns map[net.Conn]struct{}
	clients     clients

	// writeMu serializes fan-out so chunks never interleave at a consumer
	writeMu sync.Mutex
	wg      sync.WaitGroup

	observersMu sync.RWMutex
	observers   []Observer
}

// New binds the listening socket. When the configured port is taken the
// next ones are tried, up to MaxPortAttempts; running out is reported as a
// *PortError wrapping ErrNoFreePort.
func New(config Config) (*Server, error) {
	config = config.withDefaults()

	listener, port, err := listen(config.Host, config.Port, config.MaxPortAttempts)
	if err != nil {
		return nil, err
	}
	if config.Port != 0 && port != config.Port {
		logging.Warn("Configured port busy, using next free port",
			zap.Int("configured", config.Port),
			zap.Int("port", port),
		)
	}

	return &Server{
		config:      config,
		listener:    listener,
		port:        port,
		localIP:     localIPv4(),
		activeConns: make(map[net.Conn]struct{}),
	}, nil
}

// Start begins accepting consumers in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	s.started = true

	logging.Info("Broadcast server listening",
		zap.String("addr", s.listener.Addr().String()),
		zap.String("url", s.URL()),
		zap.String("content_type", s.config.ContentType),
	)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptConnections()
	}()
	return nil
}

// Subscribe registers an observer for consumer events
func (s *Server) Subscribe(o Observer) {
	s.observersMu.Lock()
	defer s.observersMu.Unlock()
	s.observers = append(s.observers, o)
}

// LocalIP returns the first non-loopback IPv4 address of the host, or ""
func (s *Server) LocalIP() string {
	return s.localIP
}

// Port returns the bound port
func (s *Server) Port() int {
	return s.port
}

// ContentType returns the Content-Type sent to consumers
func (s *Server) ContentType() string {
	return s.config.ContentType
}

// URL returns the address receivers should fetch the stream from
func (s *Server) URL() string {
	return streamURL(s.localIP, s.port)
}

// ConsumerCount returns the number of consumers currently receiving the stream
func (s *Server) ConsumerCount() int {
	return s.clients.count()
}

// Consumers returns the metadata of every consumer in admission order
func (s *Server) Consumers() []ConsumerInfo {
	snapshot := s.clients.snapshot()
	infos := make([]ConsumerInfo, 0, len(snapshot))
	for _, c := range snapshot {
		infos = append(infos, c.Info())
	}
	return infos
}

// Write sends p to every consumer connected when the call starts and returns
// once each of them has taken it or been dropped. Calls are serialized, so
// the slowest consumer sets the pace of the producer.
func (s *Server) Write(p []byte) (int, error) {
	if len(p) == 0 {
		if s.isClosed() {
			return 0, ErrClosed
		}
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.isClosed() {
		return 0, ErrClosed
	}

	var wg sync.WaitGroup
	for _, c := range s.clients.snapshot() {
		wg.Add(1)
		go func(c *Consumer) {
			defer wg.Done()
			if err := c.write(p, s.config.WriteTimeout); err != nil {
				s.drop(c, &ConsumerError{ID: c.info.ID, Address: c.info.Address, Err: err})
			}
		}(c)
	}
	wg.Wait()

	return len(p), nil
}

// Stop closes the listener and every connection. Each consumer produces
// one Disconnected event. Safe to call more than once and while a Write
// is in progress.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conns := make([]net.Conn, 0, len(s.activeConns))
	for conn := range s.activeConns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	logging.Info("Stopping broadcast server...")

	var err error
	if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = cerr
	}

	for _, c := range s.clients.snapshot() {
		s.drop(c, nil)
	}
	for _, conn := range conns {
		_ = conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Info("All connections closed")
	case <-time.After(shutdownTimeout):
		logging.Warn("Shutdown timeout, abandoning connection handlers")
	}

	logging.Sync()
	return err
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// acceptConnections accepts and handles incoming connections
func (s *Server) acceptConnections() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.isClosed() {
				return
			}
			logging.Error("Failed to accept connection", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.activeConns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.activeConns, conn)
	s.mu.Unlock()
}

// handleConnection reads one request and either answers it or turns the
// connection into a consumer
func (s *Server) handleConnection(conn net.Conn) {
	remoteAddr := conn.RemoteAddr().String()
	logging.LogConnection(remoteAddr, "connection_accepted")

	_ = conn.SetReadDeadline(time.Now().Add(requestTimeout))
	req, reader, err := readRequest(conn)
	if err != nil {
		logging.Debug("Failed to read HTTP request",
			zap.String("remote_addr", remoteAddr),
			zap.Error(err),
		)
		_ = conn.Close()
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	logRequestDetails(req, remoteAddr)

	switch classifyRequest(req) {
	case requestStream:
		s.serveConsumer(conn, req, reader)
		return
	case requestProbe:
		if err := writeStreamHeaders(conn, remoteAddr, s.config.ContentType); err != nil {
			logging.Debug("HEAD response failed", zap.String("remote_addr", remoteAddr), zap.Error(err))
		}
	default:
		discardBody(req)
		if err := writeBadRequest(conn, remoteAddr); err != nil {
			logging.Debug("400 response failed", zap.String("remote_addr", remoteAddr), zap.Error(err))
		}
	}

	_ = conn.Close()
	logging.LogConnection(remoteAddr, "connection_closed")
}

// serveConsumer admits a GET request and blocks until the peer goes away or
// the server drops it
func (s *Server) serveConsumer(conn net.Conn, req *http.Request, reader *bufio.Reader) {
	remoteAddr := conn.RemoteAddr().String()
	c := newConsumer(conn, conn.RemoteAddr(), req.Header)

	s.mu.Lock()
	s.nextID++
	c.info.ID = s.nextID
	s.mu.Unlock()

	logging.LogConnection(remoteAddr, "consumer_connected",
		zap.Int("consumer", c.info.ID),
		zap.String("session", c.info.Session),
	)
	s.notify(func(o Observer) { o.Connected(c.Info()) })

	if err := writeStreamHeaders(conn, remoteAddr, s.config.ContentType); err != nil {
		s.drop(c, err)
		return
	}
	if !s.register(c) {
		s.drop(c, ErrClosed)
		return
	}

	// Consumers never send anything we need; reading only tells us when
	// the peer closes.
	_, err := io.Copy(io.Discard, reader)
	s.drop(c, err)
}

// register adds c to the fan-out set unless the server is stopping
func (s *Server) register(c *Consumer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients.add(c)
	return true
}

// drop removes c, closes its sink and fires Disconnected. Only the first
// call for a consumer has any effect.
func (s *Server) drop(c *Consumer, cause error) {
	if !c.gone.CompareAndSwap(false, true) {
		return
	}
	s.clients.remove(c)
	_ = c.sink.Close()

	fields := []zap.Field{
		zap.Int("consumer", c.info.ID),
		zap.String("session", c.info.Session),
	}
	if cause != nil && !errors.Is(cause, net.ErrClosed) {
		fields = append(fields, zap.Error(cause))
	}
	logging.LogConnection(net.JoinHostPort(c.info.Address, strconv.Itoa(c.info.Port)), "consumer_disconnected", fields...)

	s.notify(func(o Observer) { o.Disconnected(c.Info()) })
}

func (s *Server) notify(fn func(Observer)) {
	s.observersMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.observersMu.RUnlock()

	for _, o := range observers {
		fn(o)
	}
}
