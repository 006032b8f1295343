package config

import (
	"fmt"
	"time"
)

// CurrentVersion is the only config file version understood
const CurrentVersion = 1

// Defaults applied to missing values
const (
	DefaultPort                  = 3000
	DefaultContentType           = "audio/mp3"
	DefaultTitle                 = "Chromecaster lib stream"
	DefaultWriteTimeoutMs        = 10000
	DefaultMaxPortAttempts       = 1000
	DefaultTransport             = "native"
	DefaultSearchDurationSeconds = 5
	DefaultService               = "_googlecast._tcp.local."
	DefaultLogLevel              = "info"
)

// transports lists the accepted discovery.transport values
var transports = map[string]bool{
	"native":    true,
	"zeroconf":  true,
	"hashicorp": true,
}

// Config represents the entire user configuration file
type Config struct {
	Version   int             `yaml:"version"`
	LogLevel  string          `yaml:"log_level,omitempty"` // debug, info, warn, error
	Stream    StreamConfig    `yaml:"stream"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Cast      CastConfig      `yaml:"cast,omitempty"`
}

// StreamConfig configures the broadcast server
type StreamConfig struct {
	Port            int    `yaml:"port"`                        // First port tried
	ContentType     string `yaml:"content_type"`                // Content-Type of the stream (e.g., "audio/mp3")
	Title           string `yaml:"title"`                       // Media title shown on the receiver
	WriteTimeoutMs  int    `yaml:"write_timeout_ms"`            // Per-consumer chunk deadline
	MaxPortAttempts int    `yaml:"max_port_attempts,omitempty"` // Ports probed upward from Port
}

// DiscoveryConfig configures device discovery
type DiscoveryConfig struct {
	Transport             string `yaml:"transport"`               // native, zeroconf or hashicorp
	SearchDurationSeconds int    `yaml:"search_duration_seconds"` // How long "list" waits for answers
	Service               string `yaml:"service,omitempty"`       // Service name queried with PTR
}

// CastConfig holds casting preferences
type CastConfig struct {
	Device string `yaml:"device,omitempty"` // Friendly name cast to when no flag is given
}

// Default returns a configuration with every default filled in
func Default() *Config {
	cfg := &Config{Version: CurrentVersion}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero values. Version is left alone so Validate can
// reject unknown files.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Stream.Port == 0 {
		c.Stream.Port = DefaultPort
	}
	if c.Stream.ContentType == "" {
		c.Stream.ContentType = DefaultContentType
	}
	if c.Stream.Title == "" {
		c.Stream.Title = DefaultTitle
	}
	if c.Stream.WriteTimeoutMs == 0 {
		c.Stream.WriteTimeoutMs = DefaultWriteTimeoutMs
	}
	if c.Stream.MaxPortAttempts == 0 {
		c.Stream.MaxPortAttempts = DefaultMaxPortAttempts
	}
	if c.Discovery.Transport == "" {
		c.Discovery.Transport = DefaultTransport
	}
	if c.Discovery.SearchDurationSeconds == 0 {
		c.Discovery.SearchDurationSeconds = DefaultSearchDurationSeconds
	}
	if c.Discovery.Service == "" {
		c.Discovery.Service = DefaultService
	}
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if c.Stream.Port < 0 || c.Stream.Port > 65535 {
		return fmt.Errorf("stream.port out of range: %d", c.Stream.Port)
	}
	if c.Stream.WriteTimeoutMs < 0 {
		return fmt.Errorf("stream.write_timeout_ms must not be negative: %d", c.Stream.WriteTimeoutMs)
	}
	if c.Stream.MaxPortAttempts < 0 {
		return fmt.Errorf("stream.max_port_attempts must not be negative: %d", c.Stream.MaxPortAttempts)
	}
	if !transports[c.Discovery.Transport] {
		return fmt.Errorf("unknown discovery.transport: %q (expected native, zeroconf or hashicorp)", c.Discovery.Transport)
	}
	if c.Discovery.SearchDurationSeconds < 0 {
		return fmt.Errorf("discovery.search_duration_seconds must not be negative: %d", c.Discovery.SearchDurationSeconds)
	}
	return nil
}

// WriteTimeout returns the per-consumer chunk deadline
func (s StreamConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutMs) * time.Millisecond
}

// SearchDuration returns how long a listing waits for devices
func (d DiscoveryConfig) SearchDuration() time.Duration {
	return time.Duration(d.SearchDurationSeconds) * time.Second
}
