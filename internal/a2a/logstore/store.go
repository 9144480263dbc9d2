package logstore

import (
	"database/sql"
	"fmt"
	"time"
)

// Store persists log entries to the shared conversation database (the
// same *sql.DB opened by internal/a2a/convstore.Open — see
// NewFromDB), and serves the query primitives the dashboard needs.
// Writing to stdout is handled separately by Logger; storage here is
// authoritative.
type Store struct {
	db *sql.DB
}

// NewFromDB wraps an already-open *sql.DB (expected to already carry
// the log_entries table from convstore's schema).
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes one entry and returns it with its assigned ID.
func (s *Store) Append(e Entry) (Entry, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO log_entries (created_at, level, component, event, message,
			trace_id, conversation_id, token_id, request_id, status_code, error_code, hint, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.CreatedAt, string(e.Level), e.Component, e.Event, e.Message,
		nullableString(e.TraceID), nullableString(e.ConversationID), nullableString(e.TokenID),
		nullableString(e.RequestID), nullableInt(e.StatusCode), nullableString(e.ErrorCode),
		nullableString(e.Hint), nullableString(e.Data))
	if err != nil {
		return Entry{}, fmt.Errorf("append log entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Entry{}, fmt.Errorf("read log entry id: %w", err)
	}
	e.ID = id
	return e, nil
}

// List returns entries matching opts, oldest-first unless SortDesc is
// set.
func (s *Store) List(opts ListOptions) ([]Entry, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, created_at, level, component, event, message, trace_id,
		conversation_id, token_id, request_id, status_code, error_code, hint, data
		FROM log_entries WHERE 1=1`
	var args []any

	appendFilter := func(clause string, val any) {
		query += clause
		args = append(args, val)
	}
	if opts.Level != "" {
		appendFilter(" AND level = ?", string(opts.Level))
	}
	if opts.Component != "" {
		appendFilter(" AND component = ?", opts.Component)
	}
	if opts.Event != "" {
		appendFilter(" AND event = ?", opts.Event)
	}
	if opts.ErrorCode != "" {
		appendFilter(" AND error_code = ?", opts.ErrorCode)
	}
	if opts.StatusCode != 0 {
		appendFilter(" AND status_code = ?", opts.StatusCode)
	}
	if opts.TraceID != "" {
		appendFilter(" AND trace_id = ?", opts.TraceID)
	}
	if opts.ConversationID != "" {
		appendFilter(" AND conversation_id = ?", opts.ConversationID)
	}
	if opts.TokenID != "" {
		appendFilter(" AND token_id = ?", opts.TokenID)
	}
	if opts.Search != "" {
		appendFilter(" AND message LIKE ?", "%"+opts.Search+"%")
	}
	if opts.From != nil {
		appendFilter(" AND created_at >= ?", *opts.From)
	}
	if opts.To != nil {
		appendFilter(" AND created_at <= ?", *opts.To)
	}

	order := "DESC"
	if !opts.SortDesc {
		order = "ASC"
	}
	query += fmt.Sprintf(" ORDER BY id %s LIMIT ?", order)
	args = append(args, limit)

	return s.query(query, args...)
}

// GetTrace returns every entry for traceID ordered by id ascending.
func (s *Store) GetTrace(traceID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 1000
	}
	return s.query(`
		SELECT id, created_at, level, component, event, message, trace_id,
			conversation_id, token_id, request_id, status_code, error_code, hint, data
		FROM log_entries WHERE trace_id = ? ORDER BY id ASC LIMIT ?
	`, traceID, limit)
}

// Stats returns totals and per-level counts, optionally windowed.
func (s *Store) Stats(from, to *time.Time) (Stats, error) {
	query := `SELECT level, COUNT(*) FROM log_entries WHERE 1=1`
	var args []any
	if from != nil {
		query += " AND created_at >= ?"
		args = append(args, *from)
	}
	if to != nil {
		query += " AND created_at <= ?"
		args = append(args, *to)
	}
	query += " GROUP BY level"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return Stats{}, fmt.Errorf("log stats: %w", err)
	}
	defer rows.Close()

	stats := Stats{ByLevel: make(map[Level]int)}
	for rows.Next() {
		var level string
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return Stats{}, fmt.Errorf("scan log stats: %w", err)
		}
		stats.ByLevel[Level(level)] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

func (s *Store) query(query string, args ...any) ([]Entry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var level string
		var traceID, conversationID, tokenID, requestID, errorCode, hint, data sql.NullString
		var statusCode sql.NullInt64

		if err := rows.Scan(&e.ID, &e.CreatedAt, &level, &e.Component, &e.Event, &e.Message,
			&traceID, &conversationID, &tokenID, &requestID, &statusCode, &errorCode, &hint, &data); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		e.Level = Level(level)
		e.TraceID = traceID.String
		e.ConversationID = conversationID.String
		e.TokenID = tokenID.String
		e.RequestID = requestID.String
		e.StatusCode = int(statusCode.Int64)
		e.ErrorCode = errorCode.String
		e.Hint = hint.String
		e.Data = data.String
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
