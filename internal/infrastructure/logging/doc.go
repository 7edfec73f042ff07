// Package logging provides structured logging for the Creality bridge.
//
// It wraps log/slog so every component logs with the same handler,
// level filter and default fields (service, version).
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("printer connected", "ip", "192.168.1.50")
//
// Printer passwords and JWT secrets must never be logged.
package logging
