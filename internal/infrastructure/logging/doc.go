// Package logging provides structured logging for Gray Logic Node.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the node firmware.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - "none" output to silence a headless battery node entirely
//   - Default fields (service, node_id, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, none
//
// # Usage
//
//	logger := logging.New(cfg.Logging, cfg.Node.ID, "1.0.0")
//	logger.Info("cycle started", "wake_interval", cfg.Node.WakeInterval)
//	logger.Error("connect failed", "error", err)
//
// # Security
//
// Never log secrets, tokens, passwords, or API keys.
package logging
