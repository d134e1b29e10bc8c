package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/rainbridge/internal/infrastructure/config"
)

// supportHint is appended to per-controller failures so users know where to go.
const supportHint = "if this persists, open an issue with the log output at https://github.com/nerrad567/rainbridge/issues"

// Logger is a slog.Logger carrying the service attributes. Safe for
// concurrent use.
type Logger struct {
	*slog.Logger
}

// New returns a Logger writing to stdout, or stderr when cfg.Output says so.
func New(cfg config.LoggingConfig, version string) *Logger {
	w := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return newWithWriter(w, cfg, version)
}

// newWithWriter builds the handler chain on top of an arbitrary writer.
func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}
	h = h.WithAttrs([]slog.Attr{
		slog.String("service", "rainbridge"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

// parseLevel maps debug, warn(ing) and error; anything else is info.
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

// With returns a child Logger, typically scoped to one controller address.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Emit logs msg at a level given by name. Controllers report their own
// log lines this way ("error", "warn", "debug", "info").
func (l *Logger) Emit(level, msg string, args ...any) {
	l.Log(context.Background(), parseLevel(level), msg, args...)
}

// Failure logs a per-controller error together with the support hint.
func (l *Logger) Failure(msg string, err error, args ...any) {
	args = append(args, "error", err, "hint", supportHint)
	l.Error(msg, args...)
}

// Default is the info-level JSON logger used until the config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info"}, "dev")
}
