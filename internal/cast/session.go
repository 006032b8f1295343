package cast

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/melchor629/chromecaster/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultTitle is shown on the receiver when no title is set
	DefaultTitle = "Chromecaster lib stream"

	// StreamTypeLive marks the media as a live stream without seeking
	StreamTypeLive = "LIVE"
)

var (
	// ErrNoStream is returned by Connect when no stream source was attached
	ErrNoStream = errors.New("no stream attached to session")

	// ErrNoController is returned when no control protocol implementation was set
	ErrNoController = errors.New("no controller attached to session")

	// ErrNotConnected is returned by media commands before Connect succeeds
	ErrNotConnected = errors.New("session not connected")

	// ErrClosed is returned after Close or after a controller failure
	ErrClosed = errors.New("session closed")
)

// StreamSource describes where the receiver fetches the stream from.
// broadcast.Server implements it.
type StreamSource interface {
	LocalIP() string
	Port() int
	ContentType() string
}

// StreamURL returns the URL a receiver should load for src
func StreamURL(src StreamSource) string {
	host := src.LocalIP()
	if host == "" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(src.Port())) + "/"
}

// Media is the load request handed to the controller
type Media struct {
	ContentID   string
	ContentType string
	StreamType  string
	Title       string
}

// Volume is the receiver volume state
type Volume struct {
	Level float64 // 0.0 - 1.0
	Muted bool
}

// Controller is the Cast v2 control-protocol collaborator
type Controller interface {
	// Launch connects to address, starts the default media receiver and
	// loads media with autoplay.
	Launch(ctx context.Context, address string, media Media) error
	Volume(ctx context.Context) (Volume, error)
	SetVolume(ctx context.Context, v Volume) (Volume, error)
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Close() error
}

// Session is a control handle bound to one receiver
type Session struct {
	// Name is the device friendly name
	Name string

	// Address is the device address the controller connects to
	Address string

	mu         sync.Mutex
	stream     StreamSource
	controller Controller
	title      string
	connected  bool
	closed     bool
}

// NewSession creates a session for the device at address
func NewSession(name, address string) *Session {
	return &Session{
		Name:    name,
		Address: address,
		title:   DefaultTitle,
	}
}

// SetStream attaches the stream the receiver will be told to play
func (s *Session) SetStream(src StreamSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = src
}

// SetController attaches the control protocol implementation
func (s *Session) SetController(c Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controller = c
}

// SetTitle sets the title shown on the receiver; empty restores the default
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if title == "" {
		title = DefaultTitle
	}
	s.title = title
}

// Title returns the stream title
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// StreamURL returns the URL the receiver will load, or "" without a stream
func (s *Session) StreamURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stream == nil {
		return ""
	}
	return StreamURL(s.stream)
}

// Media returns the load request Connect would send
func (s *Session) Media() (Media, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return Media{}, ErrNoStream
	}
	return Media{
		ContentID:   StreamURL(s.stream),
		ContentType: s.stream.ContentType(),
		StreamType:  StreamTypeLive,
		Title:       s.title,
	}, nil
}

// Connect launches the default media receiver on the device and loads the
// attached stream
func (s *Session) Connect(ctx context.Context) error {
	media, err := s.Media()
	if err != nil {
		return err
	}

	c, err := s.active(false)
	if err != nil {
		return err
	}

	logging.Info("Casting stream",
		zap.String("device", s.Name),
		zap.String("address", s.Address),
		zap.String("url", media.ContentID),
		zap.String("title", media.Title),
	)

	if err := c.Launch(ctx, s.Address, media); err != nil {
		return s.fail("launch", err)
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	return nil
}

// Volume returns the current volume level (0.0 - 1.0)
func (s *Session) Volume(ctx context.Context) (float64, error) {
	c, err := s.active(true)
	if err != nil {
		return 0, err
	}
	v, err := c.Volume(ctx)
	if err != nil {
		return 0, s.fail("get volume", err)
	}
	return v.Level, nil
}

// SetVolume sets the volume level, clamped to 0.0 - 1.0, and returns the
// level the receiver reports back
func (s *Session) SetVolume(ctx context.Context, level float64) (float64, error) {
	c, err := s.active(true)
	if err != nil {
		return 0, err
	}
	v, err := c.SetVolume(ctx, Volume{Level: clamp(level)})
	if err != nil {
		return 0, s.fail("set volume", err)
	}
	return v.Level, nil
}

// Muted reports whether the receiver is muted
func (s *Session) Muted(ctx context.Context) (bool, error) {
	c, err := s.active(true)
	if err != nil {
		return false, err
	}
	v, err := c.Volume(ctx)
	if err != nil {
		return false, s.fail("get mute", err)
	}
	return v.Muted, nil
}

// SetMuted mutes or unmutes the receiver, keeping the current level
func (s *Session) SetMuted(ctx context.Context, muted bool) (bool, error) {
	c, err := s.active(true)
	if err != nil {
		return false, err
	}
	current, err := c.Volume(ctx)
	if err != nil {
		return false, s.fail("get volume", err)
	}
	v, err := c.SetVolume(ctx, Volume{Level: current.Level, Muted: muted})
	if err != nil {
		return false, s.fail("set mute", err)
	}
	return v.Muted, nil
}

// Play resumes playback
func (s *Session) Play(ctx context.Context) error {
	return s.command(ctx, "play", Controller.Play)
}

// Pause pauses playback
func (s *Session) Pause(ctx context.Context) error {
	return s.command(ctx, "pause", Controller.Pause)
}

// Stop stops playback on the receiver without closing the session
func (s *Session) Stop(ctx context.Context) error {
	return s.command(ctx, "stop", Controller.Stop)
}

// Close stops playback and releases the controller. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	c := s.controller
	connected := s.connected
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	if connected {
		if err := c.Stop(context.Background()); err != nil {
			logging.Debug("Stop on close failed", zap.String("device", s.Name), zap.Error(err))
		}
	}
	if err := c.Close(); err != nil {
		return fmt.Errorf("failed to close session with %s: %w", s.Name, err)
	}
	return nil
}

func (s *Session) command(ctx context.Context, name string, fn func(Controller, context.Context) error) error {
	c, err := s.active(true)
	if err != nil {
		return err
	}
	if err := fn(c, ctx); err != nil {
		return s.fail(name, err)
	}
	return nil
}

// active returns the controller if the session can take commands
func (s *Session) active(needConnected bool) (Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return nil, ErrClosed
	case s.controller == nil:
		return nil, ErrNoController
	case needConnected && !s.connected:
		return nil, ErrNotConnected
	}
	return s.controller, nil
}

// fail tears the session down after a controller error
func (s *Session) fail(op string, err error) error {
	s.mu.Lock()
	c := s.controller
	already := s.closed
	s.closed = true
	s.connected = false
	s.mu.Unlock()

	logging.Error("Control session failed",
		zap.String("device", s.Name),
		zap.String("op", op),
		zap.Error(err),
	)
	if !already && c != nil {
		_ = c.Close()
	}
	return fmt.Errorf("%s on %s: %w", op, s.Name, err)
}

func clamp(level float64) float64 {
	if level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}
