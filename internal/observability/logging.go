// Package observability provides structured logging with secret redaction
// and Prometheus metrics for the runtime.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// defaultRedactPatterns match common secret shapes. Model prompts and tool
// arguments flow through logs at debug level, so keys must never survive
// into log output.
var defaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{95,}`,
	`sk-[a-zA-Z0-9]{48,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

// LoggerOptions configures NewLogger.
type LoggerOptions struct {
	// Level is "debug", "info", "warn", or "error". Default "info".
	Level string

	// Format is "json" or "text". Default "json".
	Format string

	// Output defaults to os.Stderr.
	Output io.Writer

	// ExtraRedactPatterns adds regexes to the built-in secret patterns.
	ExtraRedactPatterns []string
}

// NewLogger builds a structured logger whose string values pass through
// secret redaction.
func NewLogger(opts LoggerOptions) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := slog.LevelInfo
	switch strings.ToLower(opts.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var inner slog.Handler
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(opts.Format) == "text" {
		inner = slog.NewTextHandler(out, handlerOpts)
	} else {
		inner = slog.NewJSONHandler(out, handlerOpts)
	}

	patterns := make([]*regexp.Regexp, 0, len(defaultRedactPatterns)+len(opts.ExtraRedactPatterns))
	for _, p := range append(append([]string{}, defaultRedactPatterns...), opts.ExtraRedactPatterns...) {
		if re, err := regexp.Compile(p); err == nil {
			patterns = append(patterns, re)
		}
	}

	return slog.New(&redactingHandler{inner: inner, patterns: patterns})
}

// redactingHandler rewrites string attribute values and the message text
// before delegating to the wrapped handler.
type redactingHandler struct {
	inner    slog.Handler
	patterns []*regexp.Regexp
}

func (h *redactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *redactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *redactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &redactingHandler{inner: h.inner.WithAttrs(redacted), patterns: h.patterns}
}

func (h *redactingHandler) WithGroup(name string) slog.Handler {
	return &redactingHandler{inner: h.inner.WithGroup(name), patterns: h.patterns}
}

func (h *redactingHandler) redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindString {
		return slog.String(a.Key, h.redact(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		out := make([]any, 0, len(group))
		for _, g := range group {
			out = append(out, h.redactAttr(g))
		}
		return slog.Group(a.Key, out...)
	}
	return a
}

func (h *redactingHandler) redact(s string) string {
	for _, re := range h.patterns {
		s = re.ReplaceAllString(s, "[REDACTED]")
	}
	return s
}
