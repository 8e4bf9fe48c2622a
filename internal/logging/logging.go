// Package logging provides structured logging using Go's slog package.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

var (
	// defaultLogger is the global logger instance.
	defaultLogger *slog.Logger
)

func init() {
	// Initialize with a default logger (text format, Info level)
	InitLogger(LevelInfo, FormatText)
}

// Level represents a log level.
type Level int

const (
	// LevelDebug is for debug messages.
	LevelDebug Level = iota
	// LevelInfo is for informational messages.
	LevelInfo
	// LevelWarn is for warning messages.
	LevelWarn
	// LevelError is for error messages.
	LevelError
)

// Format represents a log output format.
type Format int

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON Format = iota
	// FormatText outputs logs in human-readable text format.
	FormatText
)

// ParseLevel converts a level name (debug, info, warn, error) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// ParseFormat converts a format name (json, text) to a Format. An empty
// name selects text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "", "text":
		return FormatText, nil
	}
	return FormatText, fmt.Errorf("unknown log format %q", s)
}

// InitLogger initializes the global logger with the specified level and
// format. Logs go to stderr; stdout is reserved for converted documents.
func InitLogger(level Level, format Format) {
	InitLoggerWriter(os.Stderr, level, format)
}

// InitLoggerWriter initializes the global logger writing to w.
func InitLoggerWriter(w io.Writer, level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Customize timestamp format
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// GetLogger returns the global logger instance.
func GetLogger() *slog.Logger {
	return defaultLogger
}

// Helper functions for common logging patterns

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// Conversion logs a full tree/standoff conversion.
func Conversion(direction string, annotations, chars int, args ...any) {
	allArgs := []any{
		"direction", direction,
		"annotations", annotations,
		"chars", chars,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("conversion", allArgs...)
}

// EditApplied logs a committed incremental edit. rebuilt is the number of
// annotations in the replaced subtree.
func EditApplied(operation, tag string, begin, end, rebuilt int, args ...any) {
	allArgs := []any{
		"operation", operation,
		"tag", tag,
		"begin", begin,
		"end", end,
		"rebuilt", rebuilt,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("edit_applied", allArgs...)
}

// EditRejected logs an incremental edit refused before any change was made.
func EditRejected(operation, tag string, begin, end int, err error, args ...any) {
	allArgs := []any{
		"operation", operation,
		"tag", tag,
		"begin", begin,
		"end", end,
		"error", err.Error(),
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("edit_rejected", allArgs...)
}

// DuplicateSuppressed logs an add that matched an existing annotation.
func DuplicateSuppressed(tag string, begin, end int, args ...any) {
	allArgs := []any{
		"tag", tag,
		"begin", begin,
		"end", end,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Debug("duplicate_suppressed", allArgs...)
}

// SpanReconciled logs an annotation whose span was corrected to match the
// rebuilt tree.
func SpanReconciled(tag string, oldBegin, oldEnd, newBegin, newEnd int, args ...any) {
	allArgs := []any{
		"tag", tag,
		"old_begin", oldBegin,
		"old_end", oldEnd,
		"new_begin", newBegin,
		"new_end", newEnd,
	}
	allArgs = append(allArgs, args...)
	defaultLogger.Warn("span_reconciled", allArgs...)
}
