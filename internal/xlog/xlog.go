// Package xlog wraps an optional *slog.Logger with the level helpers used
// throughout the scheduling packages. The zero Logger discards everything, so
// components that were configured without a logger pay a nil check only.
package xlog

import (
	"context"
	"log/slog"
)

// LevelTrace is below Debug and is used on interrupt-context paths
// (ticks, dispatches, posts) which would otherwise flood the output.
const LevelTrace slog.Level = slog.LevelDebug - 1

type Logger struct {
	logger       *slog.Logger
	traceEnabled bool
}

// New returns a Logger writing to l. A nil l yields a discarding Logger.
func New(l *slog.Logger) Logger {
	return Logger{
		logger:       l,
		traceEnabled: l != nil && l.Handler().Enabled(context.Background(), LevelTrace),
	}
}

// TraceEnabled reports whether trace records would be emitted. Callers on
// hot paths check it before building attributes.
func (l Logger) TraceEnabled() bool { return l.traceEnabled }

func (l Logger) Error(msg string, attrs ...slog.Attr) {
	l.logattrs(slog.LevelError, msg, attrs...)
}

func (l Logger) Warn(msg string, attrs ...slog.Attr) {
	l.logattrs(slog.LevelWarn, msg, attrs...)
}

func (l Logger) Info(msg string, attrs ...slog.Attr) {
	l.logattrs(slog.LevelInfo, msg, attrs...)
}

func (l Logger) Debug(msg string, attrs ...slog.Attr) {
	l.logattrs(slog.LevelDebug, msg, attrs...)
}

func (l Logger) Trace(msg string, attrs ...slog.Attr) {
	if !l.traceEnabled {
		return
	}
	l.logattrs(LevelTrace, msg, attrs...)
}

func (l Logger) logattrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if l.logger == nil {
		return
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// ReplaceLevel names LevelTrace "TRACE" in handler output. Install it with
// slog.HandlerOptions.ReplaceAttr.
func ReplaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey || len(groups) != 0 {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}
