// Package logger provides component-scoped structured logging for the whole
// process. It is the operator-visible reporting sink: dispatch, streaming and
// delivery failures all land here.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	level   = new(slog.LevelVar)
	current atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelInfo)
	current.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// SetLevel changes the global log level ("debug", "info", "warn", "error").
func SetLevel(name string) {
	switch name {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// SetOutput redirects all log output, mainly for tests.
func SetOutput(w io.Writer) {
	current.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func log(lvl slog.Level, component, msg string, fields map[string]interface{}) {
	args := make([]any, 0, 2+2*len(fields))
	args = append(args, "component", component)
	for k, v := range fields {
		args = append(args, k, v)
	}
	current.Load().Log(context.Background(), lvl, msg, args...)
}

// DebugC logs a debug message for a component.
func DebugC(component, msg string) { log(slog.LevelDebug, component, msg, nil) }

// DebugCF logs a debug message with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelDebug, component, msg, fields)
}

// InfoC logs an info message for a component.
func InfoC(component, msg string) { log(slog.LevelInfo, component, msg, nil) }

// InfoCF logs an info message with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelInfo, component, msg, fields)
}

// WarnC logs a warning for a component.
func WarnC(component, msg string) { log(slog.LevelWarn, component, msg, nil) }

// WarnCF logs a warning with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelWarn, component, msg, fields)
}

// ErrorC logs an error for a component.
func ErrorC(component, msg string) { log(slog.LevelError, component, msg, nil) }

// ErrorCF logs an error with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelError, component, msg, fields)
}
