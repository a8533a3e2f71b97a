// Package logging provides structured logging for the edge agent.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across every task of the agent.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering, adjustable at runtime
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("connecting to platform", "host", cfg.ThingsBoard.Host)
//	logger.Error("failed to save credentials", "error", err)
//
// # Security
//
// Never log provisioning secrets, access tokens or WiFi passphrases.
package logging
