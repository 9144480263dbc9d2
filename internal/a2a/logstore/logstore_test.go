package logstore

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS log_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at DATETIME NOT NULL,
	level TEXT NOT NULL,
	component TEXT NOT NULL,
	event TEXT NOT NULL,
	message TEXT NOT NULL,
	trace_id TEXT,
	conversation_id TEXT,
	token_id TEXT,
	request_id TEXT,
	status_code INTEGER,
	error_code TEXT,
	hint TEXT,
	data TEXT
);
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "logs.db")
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewFromDB(db)
}

func TestAppendAndList(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Append(Entry{Level: LevelInfo, Component: "server", Event: "invoke", Message: "ok", TraceID: "t1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.Append(Entry{Level: LevelError, Component: "server", Event: "invoke", Message: "bad", TraceID: "t2", ErrorCode: "unauthorized"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	entries, err := s.List(ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}

func TestListFiltersByLevelAndErrorCode(t *testing.T) {
	s := newTestStore(t)
	s.Append(Entry{Level: LevelInfo, Component: "server", Event: "invoke", Message: "ok"})
	s.Append(Entry{Level: LevelError, Component: "server", Event: "invoke", Message: "bad", ErrorCode: "rate_limited"})

	entries, err := s.List(ListOptions{Level: LevelError})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].ErrorCode != "rate_limited" {
		t.Fatalf("unexpected filtered entries: %+v", entries)
	}
}

func TestGetTraceOrdersAscendingByID(t *testing.T) {
	s := newTestStore(t)
	s.Append(Entry{Level: LevelInfo, Component: "server", Event: "start", Message: "m1", TraceID: "trace_x"})
	s.Append(Entry{Level: LevelInfo, Component: "server", Event: "end", Message: "m2", TraceID: "trace_x"})
	s.Append(Entry{Level: LevelInfo, Component: "server", Event: "other", Message: "m3", TraceID: "trace_y"})

	entries, err := s.GetTrace("trace_x", 0)
	if err != nil {
		t.Fatalf("get trace: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries for trace_x, got %d", len(entries))
	}
	if entries[0].ID >= entries[1].ID {
		t.Fatalf("expected ascending id order, got %+v", entries)
	}
}

func TestStatsCountsPerLevel(t *testing.T) {
	s := newTestStore(t)
	s.Append(Entry{Level: LevelInfo, Component: "server", Event: "a", Message: "m"})
	s.Append(Entry{Level: LevelInfo, Component: "server", Event: "b", Message: "m"})
	s.Append(Entry{Level: LevelError, Component: "server", Event: "c", Message: "m"})

	stats, err := s.Stats(nil, nil)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("expected total=3, got %d", stats.Total)
	}
	if stats.ByLevel[LevelInfo] != 2 || stats.ByLevel[LevelError] != 1 {
		t.Fatalf("unexpected per-level counts: %+v", stats.ByLevel)
	}
}

func TestLoggerChildMergesFields(t *testing.T) {
	s := newTestStore(t)
	root := New(s, nil, "server")
	child := root.Child("trace_123", "conv_1", "tok_1")
	child.Info("invoke", "handled request")

	entries, err := s.GetTrace("trace_123", 0)
	if err != nil {
		t.Fatalf("get trace: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].ConversationID != "conv_1" || entries[0].TokenID != "tok_1" {
		t.Fatalf("expected merged fields, got %+v", entries[0])
	}
}

func TestLoggerWithNilStoreDoesNotPanic(t *testing.T) {
	l := New(nil, nil, "server")
	l.Info("event", "message")
	l.Error("event", "message", "some_error", "a hint")
}
