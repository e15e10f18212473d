package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/womgr-core/internal/infrastructure/config"
)

// ServiceName is the service attribute on every entry.
const ServiceName = "womgr"

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is the slog logger shared by every womgr component. It satisfies
// the Logger interfaces of the device, dashboard, monitor and mqtt
// packages.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of womgr.yaml. Output
// "stderr" writes to stderr; anything else goes to stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	out := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return newWithWriter(out, cfg, version)
}

func newWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	h := handlerFor(w, cfg).WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

// handlerFor picks text or JSON; JSON is the default so log shippers get
// structured lines unless someone asks otherwise.
func handlerFor(w io.Writer, cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel maps a config level name to slog, falling back to info.
func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a child logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags entries with the emitting subsystem, e.g. "registry".
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used until the config file has been read.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}
