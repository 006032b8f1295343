package discovery

import "testing"

func TestDevice_String(t *testing.T) {
	tests := []struct {
		name     string
		device   Device
		expected string
	}{
		{
			name:     "with model",
			device:   Device{Name: "Kitchen", Type: "Chromecast Audio", Addresses: []string{"10.0.0.5"}},
			expected: "Kitchen (Chromecast Audio) at 10.0.0.5",
		},
		{
			name:     "without model",
			device:   Device{Name: "Office", Addresses: []string{"10.0.0.7", "fe80::1"}},
			expected: "Office at 10.0.0.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.String(); got != tt.expected {
				t.Errorf("Device.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDevice_PreferredAddress(t *testing.T) {
	d := Device{Name: "Kitchen"}
	if got := d.PreferredAddress(); got != "" {
		t.Errorf("PreferredAddress() = %q, want empty", got)
	}

	d.Addresses = []string{"fe80::1", "10.0.0.5"}
	if got := d.PreferredAddress(); got != "fe80::1" {
		t.Errorf("PreferredAddress() = %v, want fe80::1", got)
	}
}

func TestDevice_IsAudioOnly(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"Chromecast Audio", true},
		{"Google Cast Group", false},
		{"Chromecast", false},
		{"", false},
	}

	for _, tt := range tests {
		d := Device{Type: tt.model}
		if got := d.IsAudioOnly(); got != tt.want {
			t.Errorf("IsAudioOnly(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestDevice_CloneIsIndependent(t *testing.T) {
	d := Device{Name: "Kitchen", Addresses: []string{"10.0.0.5"}}
	c := d.clone()
	c.Addresses[0] = "10.0.0.9"

	if d.Addresses[0] != "10.0.0.5" {
		t.Errorf("original Addresses[0] = %v, want 10.0.0.5", d.Addresses[0])
	}
}
