// Package logging provides structured logging for the edgent binaries.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the provisioning engine: mode transitions, provisioning
// messages crossing a transport and raw GATT chunks.
//
// # Log Levels
//
//   - Debug: message payloads, raw chunk dumps, wait loop details
//   - Info: mode transitions, transport attach/detach, handshakes
//   - Warn: dropped messages, retries, recoverable radio failures
//   - Error: startup failures, persistence failures
//
// # Configuration
//
// Logging is silent unless a level is given explicitly or through the
// EDGENT_LOG_LEVEL environment variable:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// # Secrets
//
// Wi-Fi passwords and cloud tokens pass through the provisioning transports.
// LogCommand masks them before they reach the log; use Secret when logging a
// credential field directly.
package logging
