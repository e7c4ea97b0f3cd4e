// Package logging provides structured logging for droidprobe.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and level filter.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("extraction finished", "serial", serial, "duration_ms", 812)
package logging
