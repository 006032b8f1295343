package discovery

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound is returned when a name is not in the registry
	ErrDeviceNotFound = errors.New("device not found")

	// ErrNoAddress is returned when a device never announced an A/AAAA record
	ErrNoAddress = errors.New("device has no known address")

	// ErrUnknownTransport is returned by NewTransport for an unsupported name
	ErrUnknownTransport = errors.New("unknown discovery transport")
)

// LookupError reports a failed registry lookup
type LookupError struct {
	Name string // Requested device name
	Err  error  // ErrDeviceNotFound or ErrNoAddress
}

// Error implements the error interface
func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %q", e.Err, e.Name)
}

// Unwrap returns the underlying error for error chain inspection
func (e *LookupError) Unwrap() error {
	return e.Err
}
