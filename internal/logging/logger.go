// Package logging defines a minimal structured-logging interface used across
// the project. Implementations wrap slog (default) and zerolog.
package logging

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "reservation denied", "visitor_id", id, "state", state)
type Logger interface {
	// Debug logs verbose diagnostics, normally disabled in production.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Backend names accepted by New.
const (
	BackendSlog    = "slog"
	BackendZerolog = "zerolog"
)

// New builds a JSON logger writing to w. Unknown backends fall back to slog;
// unknown levels fall back to info.
func New(w io.Writer, backend, level string) Logger {
	switch strings.ToLower(backend) {
	case BackendZerolog:
		zl := zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger()
		return NewZerologLogger(zl)
	default:
		return NewSlogJSON(w, level)
	}
}

func zerologLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}
