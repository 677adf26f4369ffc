package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

const (
	// LoggerKey is the context key for the logger instance
	LoggerKey ContextKey = "logger"
)

// Options controls how a logger is built.
type Options struct {
	// Level is a zerolog level name ("debug", "info", "warn", ...). Empty means info.
	Level string
	// Format is "console" (default) or "json".
	Format string
	// Out defaults to os.Stdout.
	Out io.Writer
}

// New creates a console logger at info level.
func New() zerolog.Logger {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a logger with the given level and output format.
func NewWithOptions(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if strings.EqualFold(opts.Format, "json") {
		return zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()
	}

	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(output).Level(level).With().Timestamp().Caller().Logger()
}

// NewWithWriter creates a JSON logger writing to w
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// Nop returns a disabled logger for tests and library defaults.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from the context or returns a default logger
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithFields adds structured fields to a logger
func WithFields(logger zerolog.Logger, fields map[string]interface{}) zerolog.Logger {
	ctx := logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}

// ForTurn tags a logger with the tenant and conversation a chat turn belongs to.
func ForTurn(logger zerolog.Logger, tenant, conversationID string) zerolog.Logger {
	return logger.With().
		Str("tenant", tenant).
		Str("conversation_id", conversationID).
		Logger()
}
