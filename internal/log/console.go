package log

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// redacted replaces the value of attributes that may carry credentials.
const redacted = "[redacted]"

var secretKeys = map[string]bool{
	"key":           true,
	"apikey":        true,
	"api_key":       true,
	"service_key":   true,
	"authorization": true,
	"password":      true,
	"secret":        true,
	"jwt_secret":    true,
}

// NewConsoleHandler creates a handler that writes to w.
// Format can be "text" or "json". Credential attributes are redacted and
// records logged with a traced context carry trace_id and span_id.
func NewConsoleHandler(w io.Writer, cfg *Config, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	}

	if cfg.Format == "json" {
		return traceHandler{slog.NewJSONHandler(w, opts)}
	}
	return traceHandler{slog.NewTextHandler(w, opts)}
}

func redact(groups []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] && a.Value.Kind() == slog.KindString && a.Value.String() != "" {
		return slog.String(a.Key, redacted)
	}
	return a
}

// traceHandler adds the active span's ids to each record.
type traceHandler struct {
	slog.Handler
}

func (h traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return traceHandler{h.Handler.WithAttrs(attrs)}
}

func (h traceHandler) WithGroup(name string) slog.Handler {
	return traceHandler{h.Handler.WithGroup(name)}
}
