package discovery

import (
	"fmt"
	"strings"
)

// Device represents a Cast receiver seen on the network
type Device struct {
	// Name is the friendly name from the "fn=" TXT entry (e.g., "Kitchen").
	// It is the registry key.
	Name string

	// Type is the model from the "md=" TXT entry (e.g., "Chromecast Audio")
	Type string

	// Addresses holds IP literals in the order they were announced.
	// The first one is preferred.
	Addresses []string

	// Instance is the mDNS service instance name
	// (e.g., "Chromecast-Audio-4f1c._googlecast._tcp.local.")
	Instance string

	// AddedAt is the registry sequence number assigned on first insertion
	AddedAt int
}

// PreferredAddress returns the first announced address, or "" if none
func (d Device) PreferredAddress() string {
	if len(d.Addresses) == 0 {
		return ""
	}
	return d.Addresses[0]
}

// IsAudioOnly reports whether the model string names an audio-only receiver
func (d Device) IsAudioOnly() bool {
	return strings.Contains(strings.ToLower(d.Type), "audio")
}

// String returns a human-readable string representation of the device
func (d Device) String() string {
	if d.Type == "" {
		return fmt.Sprintf("%s at %s", d.Name, d.PreferredAddress())
	}
	return fmt.Sprintf("%s (%s) at %s", d.Name, d.Type, d.PreferredAddress())
}

func (d Device) clone() Device {
	c := d
	c.Addresses = append([]string(nil), d.Addresses...)
	return c
}
