// Package health provides errors that carry slog-style attributes, and helpers that log an error and return it in one step.
//
// A typical call site in docstringify wraps a per-file failure with the file's path so that both the log line and the final error message name it:
//
//	return health.LogErr(logger, health.Wrap("splice failed", err, "path", path))
package health

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
)

// Err is an error with a message, optional attributes (in the format of slog's args to Info), and an optional wrapped cause.
type Err struct {
	Message string
	wrapped error
	attrs   []any
}

// Error serializes the message, attrs, and wrapped error. Ex: `splice failed[path=a.py] via no insertion point`.
func (e *Err) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)

	if len(e.attrs) > 0 {
		b.WriteString("[")
		writeAttrs(&b, e.attrs)
		b.WriteString("]")
	}

	if e.wrapped != nil {
		b.WriteString(" via ")
		b.WriteString(e.wrapped.Error())
	}

	return b.String()
}

func (e *Err) Unwrap() error {
	return e.wrapped
}

// Wrap returns a new error that wraps cause. errors.Is and errors.As see through it.
func Wrap(msg string, cause error, args ...any) error {
	if cause == nil {
		cause = errors.New("nil cause passed to health.Wrap")
	}
	return &Err{Message: msg, wrapped: cause, attrs: args}
}

// LogErr logs err at error level (if logger and err are non-nil) and returns err, so callers can log and return in one line.
//
// A *Err is logged with its own message, then its attrs, then a "via" attr for the wrapped cause, then args.
func LogErr(logger *slog.Logger, err error, args ...any) error {
	if logger == nil || err == nil {
		return err
	}

	h, ok := err.(*Err)
	if !ok {
		logger.Error(err.Error(), args...)
		return err
	}

	all := make([]any, 0, len(h.attrs)+len(args)+2)
	all = append(all, h.attrs...)
	if h.wrapped != nil {
		all = append(all, slog.String("via", h.wrapped.Error()))
	}
	all = append(all, args...)
	logger.Error(h.Message, all...)
	return err
}

// Ctx bundles a logger for embedding into option structs.
type Ctx struct {
	Logger *slog.Logger
}

// NewCtx returns a Ctx. A nil logger is replaced with one that discards everything.
func NewCtx(logger *slog.Logger) Ctx {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return Ctx{Logger: logger}
}

func (c Ctx) Log(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Info(msg, args...)
	}
}

func (c Ctx) Debug(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Debug(msg, args...)
	}
}

// LogWrappedErr wraps cause with msg and args, logs it with c.Logger, and returns it.
func (c Ctx) LogWrappedErr(msg string, cause error, args ...any) error {
	return LogErr(c.Logger, Wrap(msg, cause, args...))
}

// writeAttrs writes attrs the way slog's text handler would (`num=3 str="hi"`), without time, level, or message.
func writeAttrs(b *strings.Builder, attrs []any) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.MessageKey {
				return slog.Attr{}
			}
			return a
		},
	}
	logger := slog.New(slog.NewTextHandler(&trimNewline{w: b}, opts))
	logger.Log(context.Background(), slog.LevelDebug, "", attrs...)
}

// trimNewline drops the single trailing newline the text handler writes.
type trimNewline struct {
	w io.Writer
}

func (t *trimNewline) Write(p []byte) (int, error) {
	if n := len(p); n > 0 && p[n-1] == '\n' {
		if _, err := t.w.Write(p[:n-1]); err != nil {
			return 0, err
		}
		return n, nil
	}
	return t.w.Write(p)
}
