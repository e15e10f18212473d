// Package logging provides structured logging for womgr.
//
// This package wraps Go's standard log/slog package so every component logs
// through the same handler with the same default fields.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//	  add_source: false
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("device registered", "device", name)
//	registry.SetLogger(logger.With("component", "registry"))
//
// Dashboard tokens must never be passed as log attributes.
package logging
