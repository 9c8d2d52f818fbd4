package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns a slog.Logger configured for structured, JSON-oriented output.
// Output goes to stderr because stdout carries the editor protocol.
func New(subsystem string) *slog.Logger {
	return NewWithLevel(subsystem, "info")
}

// NewWithLevel is New with an explicit level name (debug, info, warn, error).
func NewWithLevel(subsystem, level string) *slog.Logger {
	return newLogger(os.Stderr, subsystem, level)
}

func newLogger(w io.Writer, subsystem, level string) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{AddSource: true, Level: ParseLevel(level)})
	return slog.New(handler).With("subsystem", subsystem)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
