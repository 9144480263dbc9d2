package convstore

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// StartConversation creates a conversation if absent, otherwise marks
// it active and touches last_message_at.
func (s *Store) StartConversation(in StartConversationInput) (StartConversationResult, error) {
	id := in.ID
	if id == "" {
		var err error
		id, err = newConversationID()
		if err != nil {
			return StartConversationResult{}, err
		}
	}

	now := time.Now().UTC()
	existing, err := s.getConversationRow(id)
	if err != nil && err != sql.ErrNoRows {
		return StartConversationResult{}, err
	}
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(`
			INSERT INTO conversations (id, contact_id, contact_name, token_id, direction, status, started_at, last_message_at)
			VALUES (?, ?, ?, ?, ?, 'active', ?, ?)
		`, id, in.ContactID, in.ContactName, in.TokenID, string(in.Direction), now, now)
		if err != nil {
			return StartConversationResult{}, fmt.Errorf("insert conversation: %w", err)
		}
		return StartConversationResult{ID: id, Resumed: false}, nil
	}

	_, err = s.db.Exec(`
		UPDATE conversations SET status = 'active', last_message_at = ? WHERE id = ?
	`, now, id)
	if err != nil {
		return StartConversationResult{}, fmt.Errorf("resume conversation: %w", err)
	}
	_ = existing
	return StartConversationResult{ID: id, Resumed: true}, nil
}

// AddMessage inserts a message and bumps message_count/last_message_at
// on the parent conversation in the same transaction.
func (s *Store) AddMessage(conversationID string, in NewMessageInput) (Message, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Message{}, fmt.Errorf("begin add_message tx: %w", err)
	}
	defer tx.Rollback()

	id, err := newMessageID()
	if err != nil {
		return Message{}, err
	}
	now := time.Now().UTC()

	if _, err := tx.Exec(`
		INSERT INTO messages (id, conversation_id, direction, role, content, metadata, compressed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
	`, id, conversationID, string(in.Direction), in.Role, in.Content, in.Metadata, now); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	res, err := tx.Exec(`
		UPDATE conversations SET message_count = message_count + 1, last_message_at = ? WHERE id = ?
	`, now, conversationID)
	if err != nil {
		return Message{}, fmt.Errorf("update conversation on add_message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Message{}, fmt.Errorf("conversation %s not found", conversationID)
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit add_message tx: %w", err)
	}

	return Message{
		ID: id, ConversationID: conversationID, Direction: in.Direction,
		Role: in.Role, Content: in.Content, Metadata: in.Metadata, CreatedAt: now,
	}, nil
}

// GetConversation fetches a conversation, optionally hydrating the most
// recent N messages in chronological order.
func (s *Store) GetConversation(id string, opts GetConversationOptions) (*Conversation, []Message, error) {
	conv, err := s.getConversationRow(id)
	if err != nil {
		return nil, nil, err
	}
	if !opts.IncludeMessages {
		return conv, nil, nil
	}
	limit := opts.MessageLimit
	if limit <= 0 {
		limit = 50
	}
	msgs, err := s.recentMessages(id, limit)
	if err != nil {
		return nil, nil, err
	}
	return conv, msgs, nil
}

// ListConversations returns conversations ordered by last_message_at
// descending, optionally filtered. opts.IncludeMessages is not read:
// the returned conversations never carry their messages (use
// GetConversation for those).
func (s *Store) ListConversations(opts ListConversationsOptions) ([]Conversation, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE 1=1`
	var args []any
	if opts.ContactID != "" {
		query += " AND contact_id = ?"
		args = append(args, opts.ContactID)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY last_message_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// TimeoutConversation sets status='timeout' with ended_at=now.
func (s *Store) TimeoutConversation(id string) error {
	now := time.Now().UTC()
	res, err := s.db.Exec(`UPDATE conversations SET status = 'timeout', ended_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("timeout conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conversation %s not found", id)
	}
	return nil
}

// GetActiveConversations returns active conversations whose
// last_message_at is older than idleThreshold.
func (s *Store) GetActiveConversations(idleThreshold time.Duration) ([]Conversation, error) {
	cutoff := time.Now().UTC().Add(-idleThreshold)
	rows, err := s.db.Query(`
		SELECT `+conversationColumns+` FROM conversations
		WHERE status = 'active' AND last_message_at < ?
		ORDER BY last_message_at ASC
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("get active conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// GetConversationContext returns the dashboard-facing projection.
func (s *Store) GetConversationContext(id string, recentN int) (*ConversationContext, error) {
	conv, err := s.getConversationRow(id)
	if err != nil {
		return nil, err
	}
	if recentN <= 0 {
		recentN = 10
	}
	msgs, err := s.recentMessages(id, recentN)
	if err != nil {
		return nil, err
	}
	contact := conv.ContactName
	if contact == "" {
		contact = conv.ContactID
	}
	return &ConversationContext{
		ID:             conv.ID,
		Contact:        contact,
		Summary:        conv.Summary,
		RecentMessages: msgs,
		MessageCount:   conv.MessageCount,
		StartedAt:      conv.StartedAt,
		EndedAt:        conv.EndedAt,
		Status:         conv.Status,
	}, nil
}

const conversationColumns = `id, contact_id, contact_name, token_id, direction, status, message_count,
	summary, owner_summary, owner_relevance, owner_goals_touched, owner_action_items,
	caller_action_items, joint_action_items, collaboration_opportunity, owner_follow_up,
	owner_notes, collab_phase, started_at, last_message_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) getConversationRow(id string) (*Conversation, error) {
	row := s.db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func scanConversation(r rowScanner) (Conversation, error) {
	var c Conversation
	var direction, status string
	var ownerGoalsJSON, ownerActionItemsJSON, callerActionItemsJSON, jointActionItemsJSON string
	var endedAt sql.NullTime

	if err := r.Scan(&c.ID, &c.ContactID, &c.ContactName, &c.TokenID, &direction, &status,
		&c.MessageCount, &c.Summary, &c.OwnerSummary, &c.OwnerRelevance, &ownerGoalsJSON,
		&ownerActionItemsJSON, &callerActionItemsJSON, &jointActionItemsJSON, &c.CollaborationOpportunity,
		&c.OwnerFollowUp, &c.OwnerNotes, &c.CollabPhase, &c.StartedAt, &c.LastMessageAt, &endedAt); err != nil {
		if err == sql.ErrNoRows {
			return Conversation{}, sql.ErrNoRows
		}
		return Conversation{}, fmt.Errorf("scan conversation: %w", err)
	}
	c.Direction = Direction(direction)
	c.Status = Status(status)
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	_ = json.Unmarshal([]byte(ownerGoalsJSON), &c.OwnerGoalsTouched)
	_ = json.Unmarshal([]byte(ownerActionItemsJSON), &c.OwnerActionItems)
	_ = json.Unmarshal([]byte(callerActionItemsJSON), &c.CallerActionItems)
	_ = json.Unmarshal([]byte(jointActionItemsJSON), &c.JointActionItems)
	return c, nil
}

func (s *Store) recentMessages(conversationID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, direction, role, content, metadata, compressed, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(s, rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func newConversationID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate conversation id: %w", err)
	}
	return fmt.Sprintf("conv_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b)), nil
}

func newMessageID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate message id: %w", err)
	}
	return fmt.Sprintf("msg_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(b)), nil
}
