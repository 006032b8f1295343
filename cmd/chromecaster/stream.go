package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/melchor629/chromecaster/internal/broadcast"
	"github.com/melchor629/chromecaster/internal/discovery"
	"github.com/melchor629/chromecaster/internal/logging"
)

// errNoDevice is returned when the search ends without a matching device
var errNoDevice = errors.New("no matching Cast device found")

// broadcastStdin copies stdin into srv until EOF or ctx is cancelled, then
// stops the server
func broadcastStdin(ctx context.Context, srv *broadcast.Server) error {
	return pump(ctx, srv, os.Stdin)
}

// pump copies in to srv. The reader goroutine may outlive the call when in
// blocks; the process exits right after in practice.
func pump(ctx context.Context, srv *broadcast.Server, in io.Reader) error {
	done := make(chan error, 1)
	go func() {
		n, err := io.Copy(srv, in)
		logging.Info("Input finished", zap.Int64("bytes", n), zap.Error(err))
		done <- err
	}()

	var copyErr error
	select {
	case copyErr = <-done:
	case <-ctx.Done():
	}

	if err := srv.Stop(); err != nil {
		logging.Warn("Stream server stop failed", zap.Error(err))
	}
	if copyErr != nil && !errors.Is(copyErr, broadcast.ErrClosed) {
		return fmt.Errorf("failed to read input: %w", copyErr)
	}
	return nil
}

// deviceSource is what waitForDevice needs from discovery.Engine
type deviceSource interface {
	Subscribe(l discovery.Listener)
	Device(name string) (discovery.Device, error)
	Devices() []discovery.Device
}

func anyDevice(discovery.Device) bool { return true }

func matchName(name string) func(discovery.Device) bool {
	return func(d discovery.Device) bool {
		return strings.EqualFold(d.Name, name)
	}
}

// waitForDevice returns the first known device accepted by match, waiting
// up to timeout for one to appear
func waitForDevice(ctx context.Context, src deviceSource, timeout time.Duration, match func(discovery.Device) bool) (discovery.Device, error) {
	up := make(chan string, 16)
	src.Subscribe(discovery.ListenerFuncs{
		Up: func(name string) {
			select {
			case up <- name:
			default:
			}
		},
	})

	// check after subscribing so nothing slips through
	for _, d := range src.Devices() {
		if match(d) {
			return d, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case name := <-up:
			d, err := src.Device(name)
			if err == nil && match(d) {
				return d, nil
			}
		case <-timer.C:
			// a dropped notification must not hide a device that did show up
			for _, d := range src.Devices() {
				if match(d) {
					return d, nil
				}
			}
			return discovery.Device{}, errNoDevice
		case <-ctx.Done():
			return discovery.Device{}, ctx.Err()
		}
	}
}
