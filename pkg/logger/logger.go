// Package logger sets up structured logging and the terminal reporter.
package logger

import (
	"io"
	"log/slog"
)

// Options controls verbosity. Verbose wins over Quiet. By default only
// warnings are logged; results are shown through the Reporter.
type Options struct {
	Quiet   bool
	Verbose bool
}

func (o Options) Level() slog.Level {
	switch {
	case o.Verbose:
		return slog.LevelDebug
	case o.Quiet:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// New returns a text logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level()}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
