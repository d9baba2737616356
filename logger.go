package paycore

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the minimal structured logging interface used across the
// resilience layers. Key/value pairs alternate, slog style.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, keysAndValues ...any) { s.l.Debug(msg, keysAndValues...) }
func (s *slogLogger) Info(msg string, keysAndValues ...any)  { s.l.Info(msg, keysAndValues...) }
func (s *slogLogger) Warn(msg string, keysAndValues ...any)  { s.l.Warn(msg, keysAndValues...) }
func (s *slogLogger) Error(msg string, keysAndValues ...any) { s.l.Error(msg, keysAndValues...) }

// NewJSONLogger returns a Logger emitting one JSON record per line to w.
func NewJSONLogger(w io.Writer, level slog.Level) Logger {
	return &slogLogger{l: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))}
}

// NewSimpleLogger returns a human-readable Logger on stderr. Intended for
// examples and local debugging.
func NewSimpleLogger() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}

// WrapSlog adapts an existing *slog.Logger.
func WrapSlog(l *slog.Logger) Logger {
	return &slogLogger{l: l}
}

// NopLogger discards all records.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any) {}
func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
