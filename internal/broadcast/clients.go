package broadcast

import (
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ConsumerInfo describes a consumer to observers. It is captured at
// admission and never changes.
type ConsumerInfo struct {
	ID      int         // Slot number, unique for the life of the server
	Session string      // Random id used to correlate log lines
	Address string      // Peer IP
	Port    int         // Peer port
	Family  string      // "IPv4" or "IPv6"
	Headers http.Header // Request headers
}

// deadliner is implemented by sinks that support write timeouts (net.Conn)
type deadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Consumer is one admitted GET request receiving the stream
type Consumer struct {
	info ConsumerInfo
	sink io.WriteCloser
	gone atomic.Bool
}

func newConsumer(sink io.WriteCloser, remote net.Addr, headers http.Header) *Consumer {
	host, port, family := peerInfo(remote)
	return &Consumer{
		info: ConsumerInfo{
			Session: uuid.NewString(),
			Address: host,
			Port:    port,
			Family:  family,
			Headers: headers.Clone(),
		},
		sink: sink,
	}
}

// Info returns the consumer's metadata
func (c *Consumer) Info() ConsumerInfo {
	info := c.info
	info.Headers = c.info.Headers.Clone()
	return info
}

// write hands one chunk to the sink. A removed consumer is skipped.
func (c *Consumer) write(p []byte, timeout time.Duration) error {
	if c.gone.Load() {
		return nil
	}
	if d, ok := c.sink.(deadliner); ok && timeout > 0 {
		_ = d.SetWriteDeadline(time.Now().Add(timeout))
	}
	_, err := c.sink.Write(p)
	return err
}

// clients is the ordered set of admitted consumers
type clients struct {
	mu   sync.RWMutex
	list []*Consumer
}

// add appends c. Iteration order is admission order.
func (cl *clients) add(c *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.list = append(cl.list, c)
}

// remove deletes c by identity, keeping the others in order.
// Returns false if c was not present.
func (cl *clients) remove(c *Consumer) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	for i, existing := range cl.list {
		if existing == c {
			cl.list = append(cl.list[:i], cl.list[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot returns a copy for iteration without holding the lock
func (cl *clients) snapshot() []*Consumer {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return append([]*Consumer(nil), cl.list...)
}

func (cl *clients) count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.list)
}
