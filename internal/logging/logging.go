// Package logging provides the structured logger used across orderhook.
//
// Components depend on the glog.Logger contract from go-logger; this package
// supplies the concrete sink, a log/slog handler whose records are tagged with
// the facility name the logger was requested for.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	levelTrace = slog.Level(-8)
	levelFatal = slog.Level(12)
)

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)

// Options configures the slog sink.
type Options struct {
	Level  string    // trace | debug | info | warn | error (default info)
	Format string    // json | text (default json)
	Output io.Writer // default os.Stderr
}

// Provider hands out loggers named after their facility.
type Provider struct {
	base *slog.Logger
}

// New creates a Provider writing to opts.Output.
func New(opts Options) *Provider {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}
	return &Provider{base: slog.New(handler)}
}

// GetLogger returns a logger whose records carry facility=name.
func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.base == nil {
		return glog.Nop()
	}
	return &Logger{l: p.base.With("facility", name)}
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return levelTrace
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

// Logger is a glog.Logger backed by slog.
type Logger struct {
	l   *slog.Logger
	ctx context.Context
}

func (l *Logger) Trace(msg string, args ...any) { l.log(levelTrace, msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

// Fatal logs and terminates the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.log(levelFatal, msg, args)
	os.Exit(1)
}

// WithContext binds ctx to subsequent records so handlers can read trace data.
func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	return &Logger{l: l.l, ctx: ctx}
}

// WithFields returns a logger that always carries fields.
func (l *Logger) WithFields(fields map[string]any) glog.Logger {
	return &Logger{l: l.l.With(Fields(fields)...), ctx: l.ctx}
}

func (l *Logger) log(level slog.Level, msg string, args []any) {
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	l.l.Log(ctx, level, msg, expandErrors(args)...)
}

// Fields flattens a map into alternating key/value arguments.
func Fields(fields map[string]any) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

// expandErrors renders error values as strings and appends the go-errors
// envelope (category, text code, metadata) when one is present.
func expandErrors(args []any) []any {
	out := make([]any, 0, len(args))
	for i := 0; i < len(args); i++ {
		err, ok := args[i].(error)
		if !ok || err == nil {
			out = append(out, args[i])
			continue
		}
		out = append(out, err.Error())
		if attrs := goerrors.ToSlogAttributes(err); len(attrs) > 0 {
			group := make([]any, len(attrs))
			for j, a := range attrs {
				group[j] = a
			}
			out = append(out, slog.Group("error_detail", group...))
		}
	}
	return out
}
