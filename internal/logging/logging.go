// Package logging provides structured logging for camstats.
//
// This package wraps the standard library's log/slog package so every
// component logs through one configured handler. It supports text and JSON
// output, configurable levels, and component-scoped loggers.
//
// Usage:
//
//	// Initialize at startup
//	logging.Init(slog.LevelInfo, false)
//
//	// Get a component logger
//	log := logging.Component("registry")
//	log.Warn("no header row", "path", path)
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu sync.RWMutex

	// Logger is the global logger instance.
	Logger *slog.Logger
)

// Init initializes the global logger with the specified level and format.
// If jsonFormat is true, logs are output as JSON; otherwise, human-readable text.
func Init(level slog.Level, jsonFormat bool) {
	InitWriter(os.Stdout, level, jsonFormat)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	InitWithHandler(handler)
}

// InitWithHandler initializes the global logger with a custom handler.
// This is useful for testing or custom output destinations.
func InitWithHandler(handler slog.Handler) {
	l := slog.New(handler)

	mu.Lock()
	Logger = l
	mu.Unlock()

	slog.SetDefault(l)
}

// ParseLevel converts a config level name (debug, info, warn, error) to a
// slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

func get() *slog.Logger {
	mu.RLock()
	l := Logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	Init(slog.LevelInfo, false)
	mu.RLock()
	defer mu.RUnlock()
	return Logger
}

// Component returns a logger for a specific component.
// The component name is added as an attribute to all log entries.
//
// Example:
//
//	log := logging.Component("tick")
//	log.Info("flushed") // Output: time=... level=INFO component=tick msg=flushed
func Component(name string) *slog.Logger {
	return get().With("component", name)
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Context key types for type-safe context value extraction.
type contextKey int

const (
	contextKeyCamera contextKey = iota
	contextKeyDate
)

// ContextWithCamera adds a camera short name to the context for logging.
func ContextWithCamera(ctx context.Context, camera string) context.Context {
	return context.WithValue(ctx, contextKeyCamera, camera)
}

// ContextWithDate adds a table date to the context for logging.
func ContextWithDate(ctx context.Context, date string) context.Context {
	return context.WithValue(ctx, contextKeyDate, date)
}

// WithContext returns a logger that includes the camera and date carried by
// ctx, if any.
func WithContext(ctx context.Context) *slog.Logger {
	logger := get()

	if camera, ok := ctx.Value(contextKeyCamera).(string); ok {
		logger = logger.With("camera", camera)
	}
	if date, ok := ctx.Value(contextKeyDate).(string); ok {
		logger = logger.With("date", date)
	}

	return logger
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Debug logs at debug level.
func Debug(msg string, args ...any) { get().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { get().Info(msg, args...) }

// Warn logs at warning level.
func Warn(msg string, args ...any) { get().Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { get().Error(msg, args...) }
