// Package logging provides structured logging for chromecaster.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the discovery engine and the broadcast server.
//
// # Log Levels
//
//   - Debug: raw mDNS packets, HTTP response headers, per-chunk fan-out
//   - Info: devices appearing and leaving, consumers connecting
//   - Warn: dropped consumers, unusable interfaces
//   - Error: listener and transport failures
//
// # Configuration
//
// Initialize logging once at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// An empty level falls back to the CHROMECASTER_LOG_LEVEL environment
// variable; when that is unset too the logger is a no-op. Output goes to
// stderr so that stdout stays free for command output.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
