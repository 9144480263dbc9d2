package logstore

import (
	"log/slog"
)

// Logger wraps log/slog with durable storage: every Info/Warn/Error
// call both writes to the wrapped slog.Logger (console output, per the
// teacher's agent package style) and persists an Entry to Store. A
// Logger is hierarchical: Child merges its fixed fields into every
// entry it writes, so a request's logger can bind trace_id once.
type Logger struct {
	store     *Store
	console   *slog.Logger
	component string
	fields    Entry // reused as a field template; Message/Level/CreatedAt ignored
}

// New creates a root logger for component, writing through console and
// persisting to store (store may be nil to disable durable writes,
// useful in tests).
func New(store *Store, console *slog.Logger, component string) *Logger {
	if console == nil {
		console = slog.Default()
	}
	return &Logger{store: store, console: console, component: component}
}

// Child returns a logger that merges traceID/conversationID/tokenID
// into every entry it writes, in addition to this logger's own bound
// fields. Empty arguments leave the parent's value untouched.
func (l *Logger) Child(traceID, conversationID, tokenID string) *Logger {
	fields := l.fields
	if traceID != "" {
		fields.TraceID = traceID
	}
	if conversationID != "" {
		fields.ConversationID = conversationID
	}
	if tokenID != "" {
		fields.TokenID = tokenID
	}
	return &Logger{store: l.store, console: l.console, component: l.component, fields: fields}
}

func (l *Logger) log(level Level, event, message string, errorCode, hint string, statusCode int, data string) {
	e := l.fields
	e.Level = level
	e.Component = l.component
	e.Event = event
	e.Message = message
	if errorCode != "" {
		e.ErrorCode = errorCode
	}
	if hint != "" {
		e.Hint = hint
	}
	if statusCode != 0 {
		e.StatusCode = statusCode
	}
	if data != "" {
		e.Data = data
	}

	switch level {
	case LevelError:
		l.console.Error(message, "event", event, "trace_id", e.TraceID, "error_code", e.ErrorCode)
	case LevelWarn:
		l.console.Warn(message, "event", event, "trace_id", e.TraceID)
	case LevelDebug, LevelTrace:
		l.console.Debug(message, "event", event, "trace_id", e.TraceID)
	default:
		l.console.Info(message, "event", event, "trace_id", e.TraceID)
	}

	if l.store != nil {
		if _, err := l.store.Append(e); err != nil {
			l.console.Error("failed to persist log entry", "error", err)
		}
	}
}

// Info logs at info level.
func (l *Logger) Info(event, message string) { l.log(LevelInfo, event, message, "", "", 0, "") }

// Warn logs at warn level.
func (l *Logger) Warn(event, message string) { l.log(LevelWarn, event, message, "", "", 0, "") }

// Error logs at error level with a structured error code and hint.
func (l *Logger) Error(event, message, errorCode, hint string) {
	l.log(LevelError, event, message, errorCode, hint, 0, "")
}

// ErrorWithStatus is Error plus an HTTP status code, for request
// handlers.
func (l *Logger) ErrorWithStatus(event, message, errorCode, hint string, statusCode int) {
	l.log(LevelError, event, message, errorCode, hint, statusCode, "")
}

// Debug logs at debug level.
func (l *Logger) Debug(event, message string) { l.log(LevelDebug, event, message, "", "", 0, "") }
