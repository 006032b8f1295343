package discovery

import (
	"strings"
	"sync"
)

// Registry holds the currently known devices keyed by friendly name, plus the
// order in which names were first seen.
//
// Positions are only stable across additions: Remove shifts every later name
// down by one.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device
	order   []string
	seq     int
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]*Device),
	}
}

// Put inserts or replaces a device. A replaced device keeps its position and
// AddedAt; its type, addresses and instance come from d.
// Returns true when the name was not present before.
func (r *Registry) Put(d Device) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.devices[d.Name]; ok {
		existing.Type = d.Type
		existing.Addresses = append([]string(nil), d.Addresses...)
		if d.Instance != "" {
			existing.Instance = d.Instance
		}
		return false
	}

	stored := d.clone()
	stored.AddedAt = r.seq
	r.seq++
	r.devices[d.Name] = &stored
	r.order = append(r.order, d.Name)
	return true
}

// Remove deletes a device by name. Returns false if it was not present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(name)
}

// RemoveInstance deletes the device announced under the given mDNS instance
// name and returns its friendly name.
func (r *Registry) RemoveInstance(instance string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		if strings.EqualFold(r.devices[name].Instance, instance) {
			r.removeLocked(name)
			return name, true
		}
	}
	return "", false
}

func (r *Registry) removeLocked(name string) bool {
	if _, ok := r.devices[name]; !ok {
		return false
	}
	delete(r.devices, name)

	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the device stored under name
func (r *Registry) Get(name string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[name]
	if !ok {
		return Device{}, false
	}
	return d.clone(), true
}

// Find looks a device up ignoring case
func (r *Registry) Find(name string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.devices[name]; ok {
		return d.clone(), true
	}
	for _, n := range r.order {
		if strings.EqualFold(n, name) {
			return r.devices[n].clone(), true
		}
	}
	return Device{}, false
}

// NameAt returns the name at position i in insertion order
func (r *Registry) NameAt(i int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.order) {
		return "", false
	}
	return r.order[i], true
}

// Names returns all names in registry order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Devices returns copies of all devices in registry order
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	devices := make([]Device, 0, len(r.order))
	for _, name := range r.order {
		devices = append(devices, r.devices[name].clone())
	}
	return devices
}

// Len returns the number of known devices
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Reset empties the registry
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices = make(map[string]*Device)
	r.order = nil
	r.seq = 0
}
