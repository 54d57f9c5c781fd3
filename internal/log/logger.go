// Package log is the process-wide slog logger for wmai, plus the HTTP
// request middleware that tags every line with a request id.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Config selects the level ("debug", "info", "warn", "error"), the format
// ("text", "json") and the stream ("stderr", "stdout") of the logger.
type Config struct {
	Level  string
	Format string
	Output string
}

func DefaultConfig() *Config {
	return &Config{Level: "info", Format: "text", Output: "stderr"}
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return slog.LevelInfo
}

var current atomic.Pointer[slog.Logger]

// Init installs the logger described by cfg as the process default.
func Init(cfg *Config) error {
	switch cfg.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", cfg.Format)
	}

	var w io.Writer = os.Stderr
	if cfg.Output == "stdout" {
		w = os.Stdout
	}
	SetLogger(slog.New(NewConsoleHandler(w, cfg, ParseLevel(cfg.Level))))
	return nil
}

func SetLogger(l *slog.Logger) {
	current.Store(l)
	slog.SetDefault(l)
}

// Logger returns the installed logger, or slog's default before Init.
func Logger() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	return slog.Default()
}

func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }

// DebugContext, InfoContext and WarnContext log through FromContext(ctx) and
// hand ctx to the handler, so lines inside a span carry its trace ids.
func DebugContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).DebugContext(ctx, msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).WarnContext(ctx, msg, args...)
}

// FromContext returns the logger tagged with the request id in ctx, if any.
func FromContext(ctx context.Context) *slog.Logger {
	if id := GetRequestID(ctx); id != "" {
		return Logger().With("request_id", id)
	}
	return Logger()
}
