// Package logger provides structured logging for the application, built on
// log/slog with a JSON handler and context propagation helpers.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// contextKey is the private type for context values stored by this package.
type contextKey struct{}

// loggerKey is the context key under which a request-scoped logger is stored.
var loggerKey = contextKey{}

// Setup initializes the application logger based on the configured level,
// sets it as the process default, and returns it. Unknown levels fall back
// to info with a warning.
func Setup(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	parsed, ok := parseLevel(level)
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parsed})
	log := slog.New(handler)
	slog.SetDefault(log)

	if !ok {
		log.Warn("invalid log level configured, using default",
			slog.String("configured_level", level),
			slog.String("default_level", "info"))
	}

	return log
}

// parseLevel maps a config string to a slog.Level. The second return value
// reports whether the input was recognized.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// WithContext returns a context carrying the given logger. Handlers attach
// request-scoped attributes (trace ID, user ID) this way so downstream code
// logs with full correlation fields.
func WithContext(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in the context, or the process
// default logger when none is present.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if log, ok := ctx.Value(loggerKey).(*slog.Logger); ok && log != nil {
			return log
		}
	}
	return slog.Default()
}
