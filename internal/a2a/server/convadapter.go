package server

import (
	"time"

	"github.com/KafClaw/KafClaw/internal/a2a/collab"
	"github.com/KafClaw/KafClaw/internal/a2a/convstore"
)

// collabPersister adapts *convstore.Store to collab.Persister,
// translating between convstore.CollabStateRecord and
// collab.PersistedState at the boundary so neither package needs to
// import the other's types.
type collabPersister struct {
	store *convstore.Store
}

func newCollabPersister(store *convstore.Store) *collabPersister {
	return &collabPersister{store: store}
}

func (p *collabPersister) LoadCollabState(conversationID string) (*collab.PersistedState, error) {
	rec, err := p.store.LoadCollabState(conversationID)
	if err != nil || rec == nil {
		return nil, err
	}
	return &collab.PersistedState{
		Phase:                   rec.Phase,
		TurnCount:               rec.TurnCount,
		OverlapScore:            rec.OverlapScore,
		Confidence:              rec.Confidence,
		ActiveThreads:           rec.ActiveThreads,
		CandidateCollaborations: rec.CandidateCollaborations,
		OpenQuestions:           rec.OpenQuestions,
		CloseSignal:             rec.CloseSignal,
		UpdatedAt:               rec.UpdatedAt,
	}, nil
}

func (p *collabPersister) SaveCollabState(conversationID string, state collab.PersistedState) error {
	return p.store.SaveCollabState(conversationID, convstore.CollabStateRecord{
		ConversationID:          conversationID,
		Phase:                   state.Phase,
		TurnCount:               state.TurnCount,
		OverlapScore:            state.OverlapScore,
		Confidence:              state.Confidence,
		ActiveThreads:           state.ActiveThreads,
		CandidateCollaborations: state.CandidateCollaborations,
		OpenQuestions:           state.OpenQuestions,
		CloseSignal:             state.CloseSignal,
		UpdatedAt:               updatedAtOrNow(state.UpdatedAt),
	})
}

func updatedAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
