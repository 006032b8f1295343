// Package config provides user configuration management for chromecaster.
//
// This package manages a YAML configuration file holding the defaults for
// the stream server, device discovery and casting. Command line flags take
// precedence over anything stored here. The configuration follows
// OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/chromecaster/config.yaml or $HOME/.config/chromecaster/config.yaml
//   - macOS: $HOME/.config/chromecaster/config.yaml
//   - Windows: %LOCALAPPDATA%\chromecaster\config.yaml
//
// # File Format
//
//	version: 1
//	log_level: info
//	stream:
//	    port: 3000
//	    content_type: audio/mp3
//	    title: Chromecaster lib stream
//	    write_timeout_ms: 10000
//	discovery:
//	    transport: native
//	    search_duration_seconds: 5
//	cast:
//	    device: Kitchen
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Stream.Port)
//
// Missing files and missing keys fall back to the defaults. Saves are
// atomic (write to a temporary file, then rename).
package config
