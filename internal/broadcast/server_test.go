package broadcast

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestServer_HeadReturnsHeadersOnly(t *testing.T) {
	s := newTestServer(t)
	events := &eventLog{}
	s.Subscribe(events)

	resp, err := http.Head("http://" + s.listener.Addr().String() + "/")
	if err != nil {
		t.Fatalf("HEAD error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	tests := map[string]string{
		"Content-Type":  "audio/mp3",
		"Cache-Control": "no-cache, no-store, must-revalidate",
		"Pragma":        "no-cache",
		"Expires":       "0",
	}
	for header, want := range tests {
		if got := resp.Header.Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	if resp.Header.Get("Content-Length") != "" {
		t.Errorf("Content-Length = %q, want none", resp.Header.Get("Content-Length"))
	}

	body, _ := io.ReadAll(resp.Body)
	if len(body) != 0 {
		t.Errorf("body = %q, want empty", body)
	}
	if connected, _ := events.counts(); connected != 0 {
		t.Errorf("Connected events = %d, want 0", connected)
	}
	if n := s.ConsumerCount(); n != 0 {
		t.Errorf("ConsumerCount() = %d, want 0", n)
	}
}

func TestServer_RejectsOtherRequests(t *testing.T) {
	s := newTestServer(t)
	base := "http://" + s.listener.Addr().String()

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/", "chunk"},
		{http.MethodPut, "/", ""},
		{http.MethodDelete, "/", ""},
		{http.MethodGet, "/stream.mp3", ""},
		{http.MethodHead, "/favicon.ico", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, base+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("NewRequest() error = %v", err)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("StatusCode = %d, want 400", resp.StatusCode)
			}
		})
	}

	if n := s.ConsumerCount(); n != 0 {
		t.Errorf("ConsumerCount() = %d, want 0", n)
	}
}

func TestServer_StreamsChunksInOrder(t *testing.T) {
	s := newTestServer(t)
	url := "http://" + s.listener.Addr().String() + "/"

	var bodies []io.ReadCloser
	for i := 0; i < 2; i++ {
		resp, err := http.Get(url)
		if err != nil {
			t.Fatalf("GET error = %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
		}
		if resp.ContentLength != -1 {
			t.Errorf("ContentLength = %d, want -1 (unknown)", resp.ContentLength)
		}
		if got := resp.Header.Get("Content-Type"); got != "audio/mp3" {
			t.Errorf("Content-Type = %q, want audio/mp3", got)
		}
		bodies = append(bodies, resp.Body)
	}
	waitFor(t, "two consumers", func() bool { return s.ConsumerCount() == 2 })

	chunks := []string{"ID3-frame-X", "frame-Y"}
	for _, chunk := range chunks {
		n, err := s.Write([]byte(chunk))
		if err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		if n != len(chunk) {
			t.Errorf("Write() = %d, want %d", n, len(chunk))
		}
	}

	want := strings.Join(chunks, "")
	for i, body := range bodies {
		buf := make([]byte, len(want))
		if _, err := io.ReadFull(body, buf); err != nil {
			t.Fatalf("consumer %d read error = %v", i, err)
		}
		if string(buf) != want {
			t.Errorf("consumer %d got %q, want %q", i, buf, want)
		}
	}
}

func TestServer_WriteBarrierDropsFailingConsumer(t *testing.T) {
	s := newTestServer(t)
	events := &eventLog{}
	s.Subscribe(events)

	sinks := []*fakeSink{newFakeSink(), newFakeSink(), newFakeSink()}
	sinks[1].fail = true
	var consumers []*Consumer
	for i, sink := range sinks {
		consumers = append(consumers, admitFake(t, s, sink, 40000+i))
	}

	if _, err := s.Write([]byte("X")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if n := s.ConsumerCount(); n != 2 {
		t.Errorf("ConsumerCount() = %d, want 2", n)
	}
	_, disconnected := events.counts()
	if disconnected != 1 {
		t.Fatalf("Disconnected events = %d, want 1", disconnected)
	}
	if id := events.disconnected[0].ID; id != consumers[1].info.ID {
		t.Errorf("Disconnected ID = %d, want %d", id, consumers[1].info.ID)
	}
	if !sinks[1].isClosed() {
		t.Error("failing sink not closed")
	}

	if _, err := s.Write([]byte("Y")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	for _, i := range []int{0, 2} {
		if got := sinks[i].bytes(); got != "XY" {
			t.Errorf("sink %d got %q, want XY", i, got)
		}
	}

	infos := s.Consumers()
	if len(infos) != 2 || infos[0].ID != consumers[0].info.ID || infos[1].ID != consumers[2].info.ID {
		t.Errorf("Consumers() = %+v, want consumers 1 and 3 in admission order", infos)
	}
}

func TestServer_EmptyWrite(t *testing.T) {
	s := newTestServer(t)
	sink := newFakeSink()
	admitFake(t, s, sink, 40000)

	n, err := s.Write(nil)
	if n != 0 || err != nil {
		t.Errorf("Write(nil) = (%d, %v), want (0, nil)", n, err)
	}
	if got := sink.bytes(); got != "" {
		t.Errorf("sink got %q, want nothing", got)
	}
}

func TestServer_StopDuringWrite(t *testing.T) {
	s := newTestServer(t)
	events := &eventLog{}
	s.Subscribe(events)

	slow := newFakeSink()
	slow.block = true
	admitFake(t, s, slow, 40000)
	fast := newFakeSink()
	admitFake(t, s, fast, 40001)

	done := make(chan error, 1)
	go func() {
		_, err := s.Write([]byte("X"))
		done <- err
	}()
	<-slow.entered

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("in-flight Write() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight Write() did not return after Stop")
	}

	connected, disconnected := events.counts()
	if connected != 2 || disconnected != 2 {
		t.Errorf("events = (%d connected, %d disconnected), want (2, 2)", connected, disconnected)
	}
	if _, err := s.Write([]byte("Y")); !errors.Is(err, ErrClosed) {
		t.Errorf("Write() after Stop error = %v, want ErrClosed", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Stop error = %v, want ErrClosed", err)
	}
}

// dialConsumer opens a raw GET and returns once the response head is read
func dialConsumer(t *testing.T, s *Server, header string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", s.listener.Addr().String())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	request := "GET / HTTP/1.1\r\nHost: chromecast\r\nX-Receiver: " + header + "\r\n\r\n"
	if _, err := io.WriteString(conn, request); err != nil {
		t.Fatalf("write request error = %v", err)
	}

	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, nil)
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
	}
	return conn, reader
}

func TestServer_PeerCloseDisconnectsOnce(t *testing.T) {
	s := newTestServer(t)
	events := &eventLog{}
	s.Subscribe(events)

	conn, _ := dialConsumer(t, s, "kitchen")
	waitFor(t, "consumer admission", func() bool { return s.ConsumerCount() == 1 })

	events.mu.Lock()
	info := events.connected[0]
	events.mu.Unlock()

	if info.Address != "127.0.0.1" || info.Family != "IPv4" {
		t.Errorf("peer = (%s, %s), want (127.0.0.1, IPv4)", info.Address, info.Family)
	}
	localPort := conn.LocalAddr().(*net.TCPAddr).Port
	if info.Port != localPort {
		t.Errorf("Port = %d, want %d", info.Port, localPort)
	}
	if got := info.Headers.Get("X-Receiver"); got != "kitchen" {
		t.Errorf("X-Receiver = %q, want kitchen", got)
	}
	if info.Session == "" {
		t.Error("Session is empty")
	}

	_ = conn.Close()
	waitFor(t, "disconnect", func() bool { _, d := events.counts(); return d == 1 })

	// a later fan-out must not resurrect the consumer
	if _, err := s.Write([]byte("X")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	connected, disconnected := events.counts()
	if connected != 1 || disconnected != 1 {
		t.Errorf("events = (%d, %d), want (1, 1)", connected, disconnected)
	}
	if n := s.ConsumerCount(); n != 0 {
		t.Errorf("ConsumerCount() = %d, want 0", n)
	}
}

func TestServer_StopClosesConsumerSockets(t *testing.T) {
	s := newTestServer(t)
	events := &eventLog{}
	s.Subscribe(events)

	_, reader := dialConsumer(t, s, "office")
	waitFor(t, "consumer admission", func() bool { return s.ConsumerCount() == 1 })

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if _, err := io.ReadAll(reader); err != nil && !errors.Is(err, net.ErrClosed) {
		// a reset is as good as EOF here
		if !strings.Contains(err.Error(), "reset") {
			t.Errorf("read after Stop error = %v", err)
		}
	}
	if _, d := events.counts(); d != 1 {
		t.Errorf("Disconnected events = %d, want 1", d)
	}
	if n := s.ConsumerCount(); n != 0 {
		t.Errorf("ConsumerCount() = %d, want 0", n)
	}
}

func TestServer_EventBalance(t *testing.T) {
	s := newTestServer(t)
	events := &eventLog{}
	s.Subscribe(events)

	var consumers []*Consumer
	steps := []string{"add", "add", "drop0", "add", "drop0", "drop0", "add", "drop1", "add"}
	for i, step := range steps {
		if step == "add" {
			consumers = append(consumers, admitFake(t, s, newFakeSink(), 41000+i))
		} else {
			idx, _ := strconv.Atoi(strings.TrimPrefix(step, "drop"))
			s.drop(consumers[idx], nil)
		}

		connected, disconnected := events.counts()
		if connected-disconnected != s.ConsumerCount() {
			t.Fatalf("after step %d: connected %d - disconnected %d != ConsumerCount() %d",
				i, connected, disconnected, s.ConsumerCount())
		}
	}

	seen := make(map[int]bool)
	events.mu.Lock()
	defer events.mu.Unlock()
	for _, info := range events.disconnected {
		if seen[info.ID] {
			t.Errorf("consumer %d disconnected twice", info.ID)
		}
		seen[info.ID] = true
	}
}

func TestNew_ProbesNextPort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer busy.Close()
	taken := busy.Addr().(*net.TCPAddr).Port

	s, err := New(Config{Host: "127.0.0.1", Port: taken})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Stop()

	if s.Port() <= taken || s.Port() >= taken+DefaultMaxPortAttempts {
		t.Errorf("Port() = %d, want a port above %d", s.Port(), taken)
	}
	if !strings.HasSuffix(s.URL(), ":"+strconv.Itoa(s.Port())+"/") {
		t.Errorf("URL() = %v, want it to end with the bound port", s.URL())
	}
}

func TestNew_NoFreePort(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer busy.Close()
	taken := busy.Addr().(*net.TCPAddr).Port

	_, err = New(Config{Host: "127.0.0.1", Port: taken, MaxPortAttempts: 1})
	if !errors.Is(err, ErrNoFreePort) {
		t.Fatalf("New() error = %v, want ErrNoFreePort", err)
	}
	var portErr *PortError
	if !errors.As(err, &portErr) {
		t.Fatalf("New() error type = %T, want *PortError", err)
	}
	if portErr.First != taken || portErr.Attempts != 1 {
		t.Errorf("PortError = %+v, want First %d and 1 attempt", portErr, taken)
	}
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{Host: "127.0.0.1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Stop()

	if s.ContentType() != DefaultContentType {
		t.Errorf("ContentType() = %v, want %v", s.ContentType(), DefaultContentType)
	}
	if s.config.MaxPortAttempts != DefaultMaxPortAttempts {
		t.Errorf("MaxPortAttempts = %d, want %d", s.config.MaxPortAttempts, DefaultMaxPortAttempts)
	}
	// 3000 itself may be taken on the test host; probing only moves upward
	if s.Port() < DefaultPort || s.Port() >= DefaultPort+DefaultMaxPortAttempts {
		t.Errorf("Port() = %d, want %d or the next free port above it", s.Port(), DefaultPort)
	}
}

func TestConfig_WithDefaults_Port(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   int
	}{
		{"unset", Config{}, DefaultPort},
		{"explicit", Config{Port: 8080}, 8080},
		{"ephemeral", Config{Ephemeral: true}, 0},
		{"ephemeral wins over port", Config{Port: 8080, Ephemeral: true}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.withDefaults().Port; got != tt.want {
				t.Errorf("withDefaults().Port = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNew_Ephemeral(t *testing.T) {
	s, err := New(Config{Host: "127.0.0.1", Ephemeral: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Stop()

	if s.Port() == 0 {
		t.Error("Port() = 0, want the kernel-assigned port")
	}
}
