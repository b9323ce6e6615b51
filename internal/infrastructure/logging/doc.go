// Package logging provides structured logging for Hostel Gate.
//
// It wraps log/slog so that every component logs with the same default
// fields (service, version) and the same level filtering.
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
//	logger.Info("starting service", "port", 8080)
//	logger.Error("check-in failed", "roll_no", rollNo, "error", err)
//
// # Security
//
// Never log role credentials, identity tokens or the JWT secret. Log the
// device id and role instead.
package logging
