// Package logging provides structured logging for the KNXnet/IP daemon.
//
// It is a thin wrapper over log/slog that stamps every record with the
// service name and build version and selects handler and level from
// the config file:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// The wrapper's embedded slog methods satisfy the narrow Logger
// interfaces declared by the knxip, mqtt, and bridge packages, so one
// configured *Logger serves the whole daemon:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("tunnel established", "gateway", gw)
//
// Keep secrets out of log fields. When something sensitive must be
// referenced, log a truncated prefix, never the value.
package logging
