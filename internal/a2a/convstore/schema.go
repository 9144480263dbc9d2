package convstore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "modernc.org/sqlite"
)

// schema is applied with CREATE TABLE IF NOT EXISTS on every open, the
// way internal/timeline's service.go bootstraps its database. There is
// no in-place column migration: schemaProbeColumns below decides
// whether an existing file is stale and must be reset instead.
const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	contact_id TEXT,
	contact_name TEXT,
	token_id TEXT,
	direction TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'active',
	message_count INTEGER NOT NULL DEFAULT 0,
	summary TEXT DEFAULT '',
	owner_summary TEXT DEFAULT '',
	owner_relevance REAL DEFAULT 0,
	owner_goals_touched TEXT DEFAULT '[]',
	owner_action_items TEXT DEFAULT '[]',
	caller_action_items TEXT DEFAULT '[]',
	joint_action_items TEXT DEFAULT '[]',
	collaboration_opportunity TEXT DEFAULT '',
	owner_follow_up TEXT DEFAULT '',
	owner_notes TEXT DEFAULT '',
	collab_phase TEXT DEFAULT 'handshake',
	started_at DATETIME NOT NULL,
	last_message_at DATETIME NOT NULL,
	ended_at DATETIME
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	direction TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	metadata TEXT DEFAULT '',
	compressed INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS collab_states (
	conversation_id TEXT PRIMARY KEY,
	phase TEXT NOT NULL DEFAULT 'handshake',
	turn_count INTEGER NOT NULL DEFAULT 0,
	overlap_score REAL NOT NULL DEFAULT 0,
	confidence REAL NOT NULL DEFAULT 0,
	active_threads TEXT DEFAULT '[]',
	candidate_collaborations TEXT DEFAULT '[]',
	open_questions TEXT DEFAULT '[]',
	close_signal INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL
);

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
CREATE INDEX IF NOT EXISTS idx_log_trace ON log_entries(trace_id);
CREATE INDEX IF NOT EXISTS idx_log_conversation ON log_entries(conversation_id);
CREATE INDEX IF NOT EXISTS idx_log_created ON log_entries(created_at);
`

// schemaProbeColumns are the canonical "is this schema current" probes
// from spec §4.3: if any of these columns is missing, the file is
// renamed aside as a timestamped backup and recreated empty.
var schemaProbeColumns = []struct {
	table  string
	column string
}{
	{"conversations", "joint_action_items"},
	{"conversations", "collaboration_opportunity"},
	{"conversations", "collab_phase"},
}

// Store is the durable conversation, message, and collaboration-state
// store. All writes go through db, which modernc.org/sqlite serialises
// internally; readers observe the effects of completed writes.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Open opens (creating if absent) the SQLite file at path, applying
// schema and resetting it if stale per schemaProbeColumns.
func Open(path string) (*Store, error) {
	log := slog.Default().With("component", "convstore")

	if err := resetIfStale(path, log); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open conversation db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply conversation schema: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("chmod conversation db: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the shared *sql.DB so logstore.NewFromDB can attach to the
// same connection and its log_entries table, rather than opening a
// second handle onto the same file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// resetIfStale opens path (if it exists) to probe for the
// canonical columns. A missing file is left alone — schema.go's
// CREATE TABLE IF NOT EXISTS will populate it fresh. A file missing a
// probe column is prototype-mode: rename aside, let the caller start
// clean. This mirrors internal/timeline's best-effort ALTER pattern,
// but spec §4.3 asks for reset rather than migration.
func resetIfStale(path string, log *slog.Logger) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return fmt.Errorf("open conversation db for schema probe: %w", err)
	}
	defer db.Close()

	stale := false
	for _, probe := range schemaProbeColumns {
		rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", probe.table))
		if err != nil {
			// Table itself doesn't exist yet; not stale, just new.
			continue
		}
		found := false
		sawColumns := false
		for rows.Next() {
			var cid int
			var name, colType string
			var notNull, pk int
			var dflt sql.NullString
			if scanErr := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); scanErr != nil {
				continue
			}
			sawColumns = true
			if name == probe.column {
				found = true
			}
		}
		rows.Close()
		if !sawColumns {
			// PRAGMA table_info yields no rows for a missing table: not
			// stale, just new.
			continue
		}
		if !found {
			stale = true
			break
		}
	}

	if !stale {
		return nil
	}

	backup := fmt.Sprintf("%s.stale.%d", path, time.Now().UnixNano())
	log.Warn("conversation db schema stale, resetting", "error_code", "schema_stale", "hint", "backing up and starting empty", "path", path, "backup", backup)
	if err := os.Rename(path, backup); err != nil {
		return fmt.Errorf("rename stale conversation db: %w", err)
	}
	return nil
}
