// Package logging provides a context.Context-carried logging facility used
// throughout the harness instead of the standard log package. Components
// never hold a logger as a field; they log through the context they were
// given, so a Driver run and everything it spawns shares one sink.
package logging

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Level indicates a logging level. A larger value is more severe.
type Level int

const (
	// LevelDebug represents the DEBUG level.
	LevelDebug Level = iota
	// LevelInfo represents the INFO level.
	LevelInfo
	// LevelWarn represents the WARN level, used for non-fatal conditions
	// such as a broken monitor forwarder or malformed wire XML.
	LevelWarn
	// LevelError represents the ERROR level.
	LevelError
)

// String returns a short uppercase label for the level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Logger defines the interface for loggers that consume logs sent via
// context.Context.
type Logger interface {
	// Log gets called for a log entry.
	Log(level Level, ts time.Time, msg string)
}

type loggerKey struct{}

type pKey int

const prefixKey pKey = iota

// AttachLogger creates a new context with logger attached. Logs emitted via
// the new context are propagated to any logger already attached to ctx.
func AttachLogger(ctx context.Context, logger Logger) context.Context {
	if parent, ok := loggerFromContext(ctx); ok {
		logger = NewMultiLogger(logger, parent)
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// AttachLoggerNoPropagation is like AttachLogger but does not propagate logs
// to a logger already attached to ctx.
func AttachLoggerNoPropagation(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// HasLogger reports whether any logger is attached to ctx.
func HasLogger(ctx context.Context) bool {
	_, ok := loggerFromContext(ctx)
	return ok
}

// SetLogPrefix attaches a prefix to prepend to all logs emitted via ctx.
func SetLogPrefix(ctx context.Context, prefix string) context.Context {
	return context.WithValue(ctx, prefixKey, prefix)
}

func loggerFromContext(ctx context.Context) (Logger, bool) {
	logger, ok := ctx.Value(loggerKey{}).(Logger)
	return logger, ok
}

// Info emits a log with info level.
func Info(ctx context.Context, args ...interface{}) { log(ctx, LevelInfo, args...) }

// Infof is similar to Info but formats its arguments using fmt.Sprintf.
func Infof(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, LevelInfo, format, args...)
}

// Debug emits a log with debug level.
func Debug(ctx context.Context, args ...interface{}) { log(ctx, LevelDebug, args...) }

// Debugf is similar to Debug but formats its arguments using fmt.Sprintf.
func Debugf(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, LevelDebug, format, args...)
}

// Warn emits a log with warn level, used for non-fatal conditions that the
// caller recovers from (broken forwarders, malformed wire XML, and so on).
func Warn(ctx context.Context, args ...interface{}) { log(ctx, LevelWarn, args...) }

// Warnf is similar to Warn but formats its arguments using fmt.Sprintf.
func Warnf(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, LevelWarn, format, args...)
}

// Error emits a log with error level.
func Error(ctx context.Context, args ...interface{}) { log(ctx, LevelError, args...) }

// Errorf is similar to Error but formats its arguments using fmt.Sprintf.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, LevelError, format, args...)
}

func log(ctx context.Context, level Level, args ...interface{}) {
	ts := time.Now() // capture as early as possible
	logger, ok := loggerFromContext(ctx)
	if !ok {
		return
	}
	logger.Log(level, ts, replaceInvalidUTF8(getPrefix(ctx)+fmt.Sprint(args...)))
}

func logf(ctx context.Context, level Level, format string, args ...interface{}) {
	ts := time.Now()
	logger, ok := loggerFromContext(ctx)
	if !ok {
		return
	}
	logger.Log(level, ts, replaceInvalidUTF8(getPrefix(ctx)+fmt.Sprintf(format, args...)))
}

func getPrefix(ctx context.Context) string {
	if pf := ctx.Value(prefixKey); pf != nil {
		return pf.(string)
	}
	return ""
}

func replaceInvalidUTF8(msg string) string {
	return strings.ToValidUTF8(msg, "")
}
