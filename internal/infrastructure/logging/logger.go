package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-knxip/internal/infrastructure/config"
)

// Logger wraps slog.Logger so every record carries the daemon identity.
//
// The embedded Debug/Info/Warn/Error methods satisfy the small Logger
// interfaces declared by the knxip, mqtt, and bridge packages, so a
// single *Logger can be handed to all of them.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of the config file.
//
// Format selects the handler: "text" for human-readable development
// output, anything else gets JSON for log shippers. Output is "stderr"
// or "stdout" (default). Every record is stamped with the service name
// and the build version.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Build version stamped onto every record
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "knxipd"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel maps a config level string onto slog.Level.
// Unrecognised values fall back to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger carrying additional default attributes.
//
// Parameters:
//   - args: Key-value pairs added to every record
//
// Returns:
//   - *Logger: New logger with added attributes
//
// Example:
//
//	tunnelLog := logger.With("component", "tunnel")
//	tunnelLog.Info("connected") // Includes component=tunnel
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default returns the logger used before the config file has been read.
// JSON to stdout at info level, version "dev". Replace it with New as
// soon as the config is loaded.
//
// Returns:
//   - *Logger: Default logger
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
