package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ContextKey is a type for context keys used by the logger
type ContextKey string

const (
	// RequestIDKey is the context key for request IDs
	RequestIDKey ContextKey = "request_id"
	// ViewKey is the context key for the display view being rendered
	ViewKey ContextKey = "view"
)

var defaultLogger *slog.Logger

// Init initializes the global logger with the specified log level.
// JSON output is used when ENV=production, text otherwise.
func Init(levelStr string) {
	defaultLogger = New(os.Stdout, levelStr, os.Getenv("ENV") == "production")
	slog.SetDefault(defaultLogger)
}

// New builds a logger writing to w without touching the global default.
func New(w io.Writer, levelStr string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(levelStr)}
	if json {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseLevel converts a string log level to slog.Level
func parseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the default logger
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init("info")
	}
	return defaultLogger
}

// WithContext returns a logger carrying the request ID and view found in ctx.
func WithContext(ctx context.Context) *slog.Logger {
	l := Get()
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok && reqID != "" {
		l = l.With("request_id", reqID)
	}
	if view, ok := ctx.Value(ViewKey).(string); ok && view != "" {
		l = l.With("view", view)
	}
	return l
}

// WithComponent returns a logger with a component label
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// ContextWithView tags ctx with the view key so log lines can be correlated with renders.
func ContextWithView(ctx context.Context, view string) context.Context {
	return context.WithValue(ctx, ViewKey, view)
}

func Debug(msg string, args ...any) { Get().Debug(msg, args...) }
func Info(msg string, args ...any)  { Get().Info(msg, args...) }
func Warn(msg string, args ...any)  { Get().Warn(msg, args...) }
func Error(msg string, args ...any) { Get().Error(msg, args...) }

// DebugContext logs a debug message with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Debug(msg, args...)
}

// InfoContext logs an info message with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Info(msg, args...)
}

// WarnContext logs a warning message with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Warn(msg, args...)
}

// ErrorContext logs an error message with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	WithContext(ctx).Error(msg, args...)
}
