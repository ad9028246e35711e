// Package logging configures the process-wide zerolog logger and carries
// request-scoped loggers through contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the log output encoding.
type Format string

const (
	// FormatConsole writes human-readable output for interactive runs.
	FormatConsole Format = "console"
	// FormatJSON writes structured output for log collectors.
	FormatJSON Format = "json"
)

// New builds a logger writing to w with the given level and format.
func New(w io.Writer, level string, format Format) (zerolog.Logger, error) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("logging: parse level %q: %w", level, err)
	}
	if parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	switch format {
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case FormatJSON, "":
	default:
		return zerolog.Logger{}, fmt.Errorf("logging: unknown format %q", format)
	}

	return zerolog.New(w).Level(parsed).With().Timestamp().Logger(), nil
}

// NewDefault builds a console logger on stderr at info level.
func NewDefault() zerolog.Logger {
	logger, _ := New(os.Stderr, "info", FormatConsole)
	return logger
}

type contextKey struct{}

// ContextWithLogger stores the logger in the context.
func ContextWithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in the context, or a disabled logger
// when none was stored.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}
