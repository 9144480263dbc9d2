// Package logstore implements the durable, filterable log stream and
// the hierarchical logger wrapping log/slog that every request's
// trace binds a child of, per the teacher's slog.Info/Warn/Error
// key-value idiom seen across internal/agent.
package logstore

import "time"

// Level mirrors the five levels the spec's trace store indexes on.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one durable log record.
type Entry struct {
	ID             int64
	CreatedAt      time.Time
	Level          Level
	Component      string
	Event          string
	Message        string
	TraceID        string
	ConversationID string
	TokenID        string
	RequestID      string
	StatusCode     int
	ErrorCode      string
	Hint           string
	Data           string // opaque JSON, caller-serialized
}

// ListOptions filters List.
type ListOptions struct {
	Limit          int
	Level          Level
	Component      string
	Event          string
	ErrorCode      string
	StatusCode     int
	TraceID        string
	ConversationID string
	TokenID        string
	Search         string
	From           *time.Time
	To             *time.Time
	SortDesc       bool // ascending (oldest-first) unless set
}

// Stats is the aggregate result of Store.Stats.
type Stats struct {
	Total    int
	ByLevel  map[Level]int
}
