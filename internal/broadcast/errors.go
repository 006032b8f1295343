package broadcast

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Write and Start once the server is stopped
	ErrClosed = errors.New("broadcast server closed")

	// ErrNoFreePort is returned by New when every probed port is taken
	ErrNoFreePort = errors.New("no free port")
)

// PortError reports a failed port probe
type PortError struct {
	Host     string // Listen host ("" for all interfaces)
	First    int    // First port tried
	Attempts int    // Number of ports tried
	Err      error  // ErrNoFreePort
	Last     error  // Error returned for the last port tried
}

// Error implements the error interface
func (e *PortError) Error() string {
	return fmt.Sprintf("%s: tried %d ports starting at %d (last error: %v)", e.Err, e.Attempts, e.First, e.Last)
}

// Unwrap returns the underlying error for error chain inspection
func (e *PortError) Unwrap() error {
	return e.Err
}

// ConsumerError records why a consumer was removed during fan-out
type ConsumerError struct {
	ID      int    // Consumer slot
	Address string // Peer address
	Err     error  // Write error
}

// Error implements the error interface
func (e *ConsumerError) Error() string {
	return fmt.Sprintf("consumer %d (%s): %v", e.ID, e.Address, e.Err)
}

// Unwrap returns the underlying error for error chain inspection
func (e *ConsumerError) Unwrap() error {
	return e.Err
}
