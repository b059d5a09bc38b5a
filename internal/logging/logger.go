// Package logging wraps slog.Logger with gozwave-specific defaults: handler
// format and level come from configuration, and every record carries
// service and version attributes.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gozwave/internal/config"
)

// Logger wraps slog.Logger. Its Debug/Info/Warn/Error methods already match
// the zwave.Logger interface signature, so a *Logger can be passed anywhere
// the driver expects one.
//
// Thread Safety: all methods are safe for concurrent use from multiple
// goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the given LoggingConfig. version is stamped onto
// every record alongside the service name.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	case "", "stdout":
		output = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			output = os.Stdout
		} else {
			output = f
		}
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "gozwave"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

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

// With returns a Logger with additional default attributes, used to tag a
// sub-component (e.g. the receive loop or a single adapter) with its own
// logging namespace.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a stdout JSON info-level logger, for use before config is
// loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
