package statfile

import (
	"log/slog"
)

// Logger is the external collaborator contract of spec.md §6.2: leveled
// info/warn/err sinks taking a formatted string. The default implementation
// wraps log/slog the way github.com/SharedCode/sop's logger.go configures
// the stdlib structured logger — no third-party logging dependency is
// pulled in because the pack itself reaches for log/slog, not an external
// logging library, for this concern (see DESIGN.md).
type Logger interface {
	Info(msg string)
	Warn(msg string)
	Err(msg string)
}

// slogLogger adapts an *slog.Logger to the Logger interface.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps l (or slog.Default() if l is nil) as a Logger.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}

	return &slogLogger{l: l}
}

func (s *slogLogger) Info(msg string) { s.l.Info(msg) }
func (s *slogLogger) Warn(msg string) { s.l.Warn(msg) }
func (s *slogLogger) Err(msg string)  { s.l.Error(msg) }

// noopLogger discards everything; used when callers pass a nil Logger to
// NewPool and don't want default stderr output.
type noopLogger struct{}

func (noopLogger) Info(string) {}
func (noopLogger) Warn(string) {}
func (noopLogger) Err(string)  {}

// NoopLogger returns a Logger that discards all messages.
func NoopLogger() Logger { return noopLogger{} }
