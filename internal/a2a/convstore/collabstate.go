package convstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SaveCollabState persists a collaboration state snapshot, and mirrors
// its phase/joint-action summary fields onto the parent conversation
// row so list/get queries don't need a join.
func (s *Store) SaveCollabState(conversationID string, state CollabStateRecord) error {
	threads, err := json.Marshal(state.ActiveThreads)
	if err != nil {
		return fmt.Errorf("marshal active_threads: %w", err)
	}
	candidates, err := json.Marshal(state.CandidateCollaborations)
	if err != nil {
		return fmt.Errorf("marshal candidate_collaborations: %w", err)
	}
	questions, err := json.Marshal(state.OpenQuestions)
	if err != nil {
		return fmt.Errorf("marshal open_questions: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save_collab_state tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO collab_states (conversation_id, phase, turn_count, overlap_score, confidence,
			active_threads, candidate_collaborations, open_questions, close_signal, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			phase = excluded.phase,
			turn_count = excluded.turn_count,
			overlap_score = excluded.overlap_score,
			confidence = excluded.confidence,
			active_threads = excluded.active_threads,
			candidate_collaborations = excluded.candidate_collaborations,
			open_questions = excluded.open_questions,
			close_signal = excluded.close_signal,
			updated_at = excluded.updated_at
	`, conversationID, state.Phase, state.TurnCount, state.OverlapScore, state.Confidence,
		string(threads), string(candidates), string(questions), state.CloseSignal, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert collab_state: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE conversations SET collab_phase = ?, collaboration_opportunity = ? WHERE id = ?
	`, state.Phase, firstOrEmpty(state.CandidateCollaborations), conversationID)
	if err != nil {
		return fmt.Errorf("mirror collab phase onto conversation: %w", err)
	}

	return tx.Commit()
}

// LoadCollabState reads a persisted collaboration state, or nil if
// none has been saved yet for this conversation.
func (s *Store) LoadCollabState(conversationID string) (*CollabStateRecord, error) {
	row := s.db.QueryRow(`
		SELECT conversation_id, phase, turn_count, overlap_score, confidence,
			active_threads, candidate_collaborations, open_questions, close_signal, updated_at
		FROM collab_states WHERE conversation_id = ?
	`, conversationID)

	var rec CollabStateRecord
	var threadsJSON, candidatesJSON, questionsJSON string
	var closeSignal int
	if err := row.Scan(&rec.ConversationID, &rec.Phase, &rec.TurnCount, &rec.OverlapScore, &rec.Confidence,
		&threadsJSON, &candidatesJSON, &questionsJSON, &closeSignal, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load collab_state: %w", err)
	}
	rec.CloseSignal = closeSignal != 0
	_ = json.Unmarshal([]byte(threadsJSON), &rec.ActiveThreads)
	_ = json.Unmarshal([]byte(candidatesJSON), &rec.CandidateCollaborations)
	_ = json.Unmarshal([]byte(questionsJSON), &rec.OpenQuestions)
	return &rec, nil
}

// ConcludeConversation fetches the conversation with its messages,
// optionally runs a summarizer, and marks the conversation concluded.
// Concluding an already-concluded conversation is a no-op success.
func (s *Store) ConcludeConversation(id string, opts ConcludeOptions) (*Conversation, error) {
	conv, msgs, err := s.GetConversation(id, GetConversationOptions{IncludeMessages: true, MessageLimit: 1000})
	if err != nil {
		return nil, err
	}
	if conv.Status == StatusConcluded {
		return conv, nil
	}

	now := time.Now().UTC()

	if opts.Summarizer != nil && len(msgs) > 0 {
		summary, sumErr := opts.Summarizer(msgs, opts.OwnerContext)
		if sumErr == nil {
			goalsJSON, _ := json.Marshal(summary.OwnerGoalsTouched)
			ownerItemsJSON, _ := json.Marshal(summary.OwnerActionItems)
			callerItemsJSON, _ := json.Marshal(summary.CallerActionItems)
			jointItemsJSON, _ := json.Marshal(summary.JointActionItems)
			_, err := s.db.Exec(`
				UPDATE conversations SET status = 'concluded', ended_at = ?,
					summary = ?, owner_summary = ?, owner_relevance = ?,
					owner_goals_touched = ?, owner_action_items = ?, caller_action_items = ?,
					joint_action_items = ?, collaboration_opportunity = ?,
					owner_follow_up = ?, owner_notes = ?
				WHERE id = ?
			`, now, summary.Text, summary.OwnerSummary, summary.OwnerRelevance,
				string(goalsJSON), string(ownerItemsJSON), string(callerItemsJSON),
				string(jointItemsJSON), summary.CollaborationOpportunity,
				summary.OwnerFollowUp, summary.OwnerNotes, id)
			if err != nil {
				return nil, fmt.Errorf("conclude conversation with summary: %w", err)
			}
			conv.Status = StatusConcluded
			conv.EndedAt = &now
			conv.Summary = summary.Text
			conv.OwnerSummary = summary.OwnerSummary
			conv.OwnerRelevance = summary.OwnerRelevance
			conv.OwnerGoalsTouched = summary.OwnerGoalsTouched
			conv.OwnerActionItems = summary.OwnerActionItems
			conv.CallerActionItems = summary.CallerActionItems
			conv.JointActionItems = summary.JointActionItems
			conv.CollaborationOpportunity = summary.CollaborationOpportunity
			conv.OwnerFollowUp = summary.OwnerFollowUp
			conv.OwnerNotes = summary.OwnerNotes
			return conv, nil
		}
		s.log.Error("summarizer failed, concluding without summary", "error_code", "summarizer_failed", "hint", sumErr.Error(), "conversation_id", id)
	}

	if _, err := s.db.Exec(`UPDATE conversations SET status = 'concluded', ended_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("conclude conversation: %w", err)
	}
	conv.Status = StatusConcluded
	conv.EndedAt = &now
	return conv, nil
}

func firstOrEmpty(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return items[0]
}
