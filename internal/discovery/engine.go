package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/melchor629/chromecaster/internal/cast"
	"github.com/melchor629/chromecaster/internal/logging"
	"github.com/miekg/dns"
	"go.uber.org/zap"
)

// inboxSize bounds how many responses may queue up behind a slow listener
const inboxSize = 64

// Listener is notified about registry changes. Calls are made one at a time
// from the engine's event loop, in the order the network delivered them.
type Listener interface {
	DeviceUp(name string)
	DeviceDown(name string)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Up   func(name string)
	Down func(name string)
}

// DeviceUp implements Listener
func (l ListenerFuncs) DeviceUp(name string) {
	if l.Up != nil {
		l.Up(name)
	}
}

// DeviceDown implements Listener
func (l ListenerFuncs) DeviceDown(name string) {
	if l.Down != nil {
		l.Down(name)
	}
}

// Engine keeps a live Registry of Cast receivers fed by a Transport
type Engine struct {
	transport Transport
	registry  *Registry
	service   string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	// stateMu orders registry mutations against Stop and guards service
	stateMu sync.Mutex
	ctx     context.Context

	listenersMu sync.RWMutex
	listeners   []Listener
	notifyMu    sync.Mutex
}

// event is one item in the engine's inbox
type event struct {
	msg       *dns.Msg
	departure string
}

// inbox funnels transport callbacks into the engine's event loop
type inbox struct {
	ctx    context.Context
	events chan event
}

func (in *inbox) HandleResponse(msg *dns.Msg) {
	select {
	case in.events <- event{msg: msg}:
	case <-in.ctx.Done():
	}
}

func (in *inbox) HandleDeparture(instance string) {
	select {
	case in.events <- event{departure: instance}:
	case <-in.ctx.Done():
	}
}

// NewEngine creates an engine that discovers googlecast services over t
func NewEngine(t Transport) *Engine {
	return &Engine{
		transport: t,
		registry:  NewRegistry(),
		service:   ServiceName(),
	}
}

// Subscribe registers a listener for DeviceUp/DeviceDown notifications
func (e *Engine) Subscribe(l Listener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, l)
}

// SetService changes the service type queried by the next Start.
// An empty name restores the googlecast service.
func (e *Engine) SetService(service string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if service == "" {
		service = ServiceName()
	}
	e.stateMu.Lock()
	e.service = service
	e.stateMu.Unlock()
}

// Start empties the registry, opens the transport sessions and sends the
// initial PTR query. Calling Start on a running engine does nothing.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)

	e.stateMu.Lock()
	e.registry.Reset()
	e.ctx = runCtx
	e.stateMu.Unlock()

	in := &inbox{ctx: runCtx, events: make(chan event, inboxSize)}
	go e.loop(runCtx, in.events)

	if err := e.transport.Start(runCtx, in); err != nil {
		cancel()
		return fmt.Errorf("failed to start discovery transport: %w", err)
	}

	if err := e.transport.Query(e.service); err != nil {
		// partial failure: the sessions that did send keep discovering
		logging.Warn("Discovery query failed on some sessions", zap.Error(err))
	}

	e.cancel = cancel
	e.running = true
	logging.Info("Discovery started", zap.String("service", e.service))
	return nil
}

// Stop closes every transport session and clears the registry.
// Stopping an engine that is not running does nothing.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false
	e.cancel()

	e.stateMu.Lock()
	e.registry.Reset()
	e.stateMu.Unlock()

	if err := e.transport.Stop(); err != nil {
		return fmt.Errorf("failed to stop discovery transport: %w", err)
	}
	logging.Info("Discovery stopped")
	return nil
}

// Running reports whether Start has been called without a matching Stop
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *Engine) loop(ctx context.Context, events <-chan event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.msg != nil {
				e.handleResponse(ctx, ev.msg)
			} else {
				e.handleDeparture(ctx, ev.departure)
			}
		}
	}
}

// handleResponse parses one response into the registry and fires DeviceUp
func (e *Engine) handleResponse(ctx context.Context, msg *dns.Msg) {
	e.stateMu.Lock()
	if ctx.Err() != nil || ctx != e.ctx {
		e.stateMu.Unlock()
		return
	}
	device, ok := parseResponse(msg, e.service)
	if !ok {
		e.stateMu.Unlock()
		return
	}
	added := e.registry.Put(device)
	e.stateMu.Unlock()

	if added {
		logging.LogDevice("up", device.Name, device.Type, device.Addresses)
	} else {
		logging.LogDevice("refresh", device.Name, device.Type, device.Addresses)
	}
	e.notify(func(l Listener) { l.DeviceUp(device.Name) })
}

// handleDeparture removes the device announced under instance
func (e *Engine) handleDeparture(ctx context.Context, instance string) {
	e.stateMu.Lock()
	if ctx.Err() != nil || ctx != e.ctx {
		e.stateMu.Unlock()
		return
	}
	name, ok := e.registry.RemoveInstance(instance)
	e.stateMu.Unlock()

	if !ok {
		return
	}
	logging.LogDevice("down", name, "", nil)
	e.notify(func(l Listener) { l.DeviceDown(name) })
}

func (e *Engine) notify(fn func(Listener)) {
	e.listenersMu.RLock()
	listeners := append([]Listener(nil), e.listeners...)
	e.listenersMu.RUnlock()

	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()
	for _, l := range listeners {
		fn(l)
	}
}

// DeviceAddress returns the preferred address of a known device
func (e *Engine) DeviceAddress(name string) (string, error) {
	d, ok := e.registry.Get(name)
	if !ok {
		return "", &LookupError{Name: name, Err: ErrDeviceNotFound}
	}
	if d.PreferredAddress() == "" {
		return "", &LookupError{Name: name, Err: ErrNoAddress}
	}
	return d.PreferredAddress(), nil
}

// DeviceNameForNumber returns the name at position i. Positions shift down
// when an earlier device is removed.
func (e *Engine) DeviceNameForNumber(i int) (string, bool) {
	return e.registry.NameAt(i)
}

// Device returns a copy of a known device
func (e *Engine) Device(name string) (Device, error) {
	d, ok := e.registry.Get(name)
	if !ok {
		return Device{}, &LookupError{Name: name, Err: ErrDeviceNotFound}
	}
	return d, nil
}

// FindDevice looks a device up by name ignoring case
func (e *Engine) FindDevice(name string) (Device, error) {
	d, ok := e.registry.Find(name)
	if !ok {
		return Device{}, &LookupError{Name: name, Err: ErrDeviceNotFound}
	}
	return d, nil
}

// Devices returns every known device in registry order
func (e *Engine) Devices() []Device {
	return e.registry.Devices()
}

// ForEachDevice calls fn once per known device name, in registry order
func (e *Engine) ForEachDevice(fn func(name string)) {
	for _, name := range e.registry.Names() {
		fn(name)
	}
}

// CreateClient returns a control session bound to the named device
func (e *Engine) CreateClient(name string) (*cast.Session, error) {
	d, err := e.Device(name)
	if err != nil {
		return nil, err
	}
	return e.CreateClientFor(d)
}

// CreateClientFor returns a control session bound to d, which does not need
// to be in the registry
func (e *Engine) CreateClientFor(d Device) (*cast.Session, error) {
	addr := d.PreferredAddress()
	if addr == "" {
		return nil, &LookupError{Name: d.Name, Err: ErrNoAddress}
	}
	return cast.NewSession(d.Name, addr), nil
}
