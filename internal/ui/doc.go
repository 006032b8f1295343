// Package ui provides terminal output for the chromecaster CLI.
//
// This package uses Bubble Tea and Lipgloss. Most output follows a "print
// and move on" pattern through a Printer (header box, result boxes, device
// listing). The one interactive component is the device picker, which
// lists Cast receivers as discovery finds them and returns the chosen name.
//
// # Architecture
//
//   - Printer: header, success and error boxes, numbered device list
//   - PickerModel: Bubble Tea model fed by DeviceUpMsg / DeviceDownMsg
//   - PickDevice: runs the picker against a discovery engine
//
// Example:
//
//	name, err := ui.PickDevice(ctx, engine, os.Stderr)
//	if errors.Is(err, ui.ErrPickerCancelled) {
//	    return nil
//	}
//
// # Terminal Input
//
// The picker reads keys from the controlling terminal rather than stdin,
// because stdin usually carries the audio stream being cast.
//
// # Logging Integration
//
// This package expects logging to be controlled via the CHROMECASTER_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, allowing
// the curated UI output to be displayed cleanly.
package ui
