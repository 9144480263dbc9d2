package collab

import "time"

// Persister is the durable half of collaboration state: the hot cache
// in this package is a read-through/write-through layer over it. The
// concrete implementation is internal/a2a/convstore.Store.
type Persister interface {
	LoadCollabState(conversationID string) (*PersistedState, error)
	SaveCollabState(conversationID string, state PersistedState) error
}

// PersistedState is the wire shape shared with convstore, kept
// independent of convstore.CollabStateRecord so this package has no
// import-time dependency on the storage layer's types.
type PersistedState struct {
	Phase                   string
	TurnCount               int
	OverlapScore            float64
	Confidence              float64
	ActiveThreads           []string
	CandidateCollaborations []string
	OpenQuestions           []string
	CloseSignal             bool
	UpdatedAt               time.Time
}

func toPersisted(s State) PersistedState {
	return PersistedState{
		Phase: string(s.Phase), TurnCount: s.TurnCount, OverlapScore: s.OverlapScore,
		Confidence: s.Confidence, ActiveThreads: s.ActiveThreads,
		CandidateCollaborations: s.CandidateCollaborations, OpenQuestions: s.OpenQuestions,
		CloseSignal: s.CloseSignal, UpdatedAt: s.UpdatedAt,
	}
}

func fromPersisted(conversationID string, p PersistedState) State {
	return State{
		ConversationID: conversationID, Phase: Phase(p.Phase), TurnCount: p.TurnCount,
		OverlapScore: p.OverlapScore, Confidence: p.Confidence, ActiveThreads: p.ActiveThreads,
		CandidateCollaborations: p.CandidateCollaborations, OpenQuestions: p.OpenQuestions,
		CloseSignal: p.CloseSignal, UpdatedAt: p.UpdatedAt,
	}
}

// Engine owns the hot cache and drives state updates each turn.
type Engine struct {
	cache     *cache
	persister Persister
}

// Options configures a new Engine.
type Options struct {
	CacheCapacity int
	CacheTTL      time.Duration
}

// NewEngine creates an engine backed by persister (nil is allowed for
// tests that only exercise the in-memory path).
func NewEngine(persister Persister, opts Options) *Engine {
	return &Engine{
		cache:     newCache(opts.CacheCapacity, opts.CacheTTL),
		persister: persister,
	}
}

// TurnInput is everything the engine needs for one turn's update.
type TurnInput struct {
	ConversationID  string
	InboundMessage  string
	ReplyProducerText string // raw reply producer output, possibly trailer-terminated
	TierTopics      []string
	TierGoals       []string
}

// ApplyTurn updates a conversation's collaboration state for one turn,
// persists it, and returns the cleaned outbound text (with any
// <collab_state> trailer stripped) alongside the new state.
func (e *Engine) ApplyTurn(in TurnInput) (cleanedText string, state State, err error) {
	current := e.load(in.ConversationID)

	cleaned, payload, found := ExtractTrailer(in.ReplyProducerText)

	var next State
	if found {
		if patched, ok, phaseSet := ApplyStructuredPatch(current, payload); ok {
			next = patched
			if !phaseSet {
				next.Phase = InferPhase(next)
			}
		} else {
			next = e.heuristicUpdate(current, in, cleaned)
		}
	} else {
		next = e.heuristicUpdate(current, in, cleaned)
	}
	next.ConversationID = in.ConversationID

	e.cache.put(next)
	if e.persister != nil {
		if err := e.persister.SaveCollabState(in.ConversationID, toPersisted(next)); err != nil {
			return cleaned, next, err
		}
	}
	return cleaned, next, nil
}

func (e *Engine) heuristicUpdate(current State, in TurnInput, cleanedOutbound string) State {
	keywords := BuildKeywordSet(in.TierTopics, in.TierGoals)
	return ApplyHeuristic(current, HeuristicInput{
		InboundMessage:  in.InboundMessage,
		OutboundMessage: cleanedOutbound,
		Keywords:        keywords,
	})
}

// load returns the cached state, falling back to the durable store,
// falling back to a fresh handshake state.
func (e *Engine) load(conversationID string) State {
	if s, ok := e.cache.get(conversationID); ok {
		return s
	}
	if e.persister != nil {
		if p, err := e.persister.LoadCollabState(conversationID); err == nil && p != nil {
			s := fromPersisted(conversationID, *p)
			e.cache.put(s)
			return s
		}
	}
	return State{ConversationID: conversationID, Phase: PhaseHandshake, UpdatedAt: time.Now().UTC()}
}

// Peek returns the current cached state without mutating it, for
// read-only dashboard use. ok is false if nothing is cached and no
// persister is attached (or it has no record).
func (e *Engine) Peek(conversationID string) (State, bool) {
	if s, ok := e.cache.get(conversationID); ok {
		return s, true
	}
	if e.persister == nil {
		return State{}, false
	}
	p, err := e.persister.LoadCollabState(conversationID)
	if err != nil || p == nil {
		return State{}, false
	}
	return fromPersisted(conversationID, *p), true
}
