package collab

import (
	"testing"
	"time"
)

func TestExtractTrailerStripsBlockAndParses(t *testing.T) {
	text := `Sure, happy to help with that.
<collab_state>{"phase":"explore","overlapScore":0.42,"activeThreads":["a","b"]}</collab_state>`
	cleaned, payload, found := ExtractTrailer(text)
	if !found {
		t.Fatal("expected trailer found")
	}
	if cleaned != "Sure, happy to help with that." {
		t.Fatalf("unexpected cleaned text: %q", cleaned)
	}
	if len(payload) == 0 {
		t.Fatal("expected non-empty payload")
	}
}

func TestExtractTrailerNoBlock(t *testing.T) {
	cleaned, payload, found := ExtractTrailer("just a plain reply")
	if found || payload != nil || cleaned != "just a plain reply" {
		t.Fatalf("expected no trailer, got cleaned=%q payload=%v found=%v", cleaned, payload, found)
	}
}

func TestApplyStructuredPatchS9Scenario(t *testing.T) {
	state := State{Phase: PhaseHandshake, TurnCount: 0}
	payload := []byte(`{"phase":"explore","overlapScore":0.42,"activeThreads":["a","b"]}`)

	next, ok, phaseSet := ApplyStructuredPatch(state, payload)
	if !ok {
		t.Fatal("expected successful patch")
	}
	if !phaseSet || next.Phase != PhaseExplore {
		t.Fatalf("expected phase=explore, got %q (phaseSet=%v)", next.Phase, phaseSet)
	}
	if next.OverlapScore != 0.42 {
		t.Fatalf("expected overlap_score=0.42, got %v", next.OverlapScore)
	}
	if len(next.ActiveThreads) != 2 || next.ActiveThreads[0] != "a" || next.ActiveThreads[1] != "b" {
		t.Fatalf("unexpected active_threads: %+v", next.ActiveThreads)
	}
	if next.TurnCount != 1 {
		t.Fatalf("expected turn_count=1, got %d", next.TurnCount)
	}
}

func TestApplyStructuredPatchTurnCountNeverDecrements(t *testing.T) {
	state := State{TurnCount: 10}
	next, ok, _ := ApplyStructuredPatch(state, []byte(`{"turn_count": 2}`))
	if !ok {
		t.Fatal("expected successful patch")
	}
	if next.TurnCount != 11 {
		t.Fatalf("expected turn_count to monotonically advance to 11, got %d", next.TurnCount)
	}
}

func TestApplyStructuredPatchClampsOverlapAndConfidence(t *testing.T) {
	state := State{}
	next, ok, _ := ApplyStructuredPatch(state, []byte(`{"overlap_score": 4.2, "confidence": -0.7}`))
	if !ok {
		t.Fatal("expected successful patch")
	}
	if next.OverlapScore != 1 {
		t.Fatalf("expected overlap_score clamped to 1, got %v", next.OverlapScore)
	}
	if next.Confidence != 0 {
		t.Fatalf("expected confidence clamped to 0, got %v", next.Confidence)
	}
}

func TestApplyStructuredPatchRejectsInvalidPhase(t *testing.T) {
	state := State{Phase: PhaseHandshake}
	next, ok, phaseSet := ApplyStructuredPatch(state, []byte(`{"phase": "nonsense"}`))
	if !ok {
		t.Fatal("expected patch to still apply (phase just ignored)")
	}
	if phaseSet {
		t.Fatal("expected phaseSet=false for invalid phase")
	}
	if next.Phase != PhaseHandshake {
		t.Fatalf("expected phase unchanged, got %q", next.Phase)
	}
}

func TestApplyStructuredPatchMalformedJSONLeavesStateUnchanged(t *testing.T) {
	state := State{Phase: PhaseExplore, TurnCount: 3}
	next, ok, _ := ApplyStructuredPatch(state, []byte(`{not json`))
	if ok {
		t.Fatal("expected ok=false for malformed payload")
	}
	if next.Phase != state.Phase || next.TurnCount != state.TurnCount {
		t.Fatalf("expected state unchanged on malformed payload, got %+v", next)
	}
}

func TestSanitizeListDedupesCaseInsensitivelyAndCaps(t *testing.T) {
	out := sanitizeList([]string{"Alpha", "alpha", "Beta", "gamma", "delta", "epsilon"})
	if len(out) != maxListItems {
		t.Fatalf("expected capped at %d, got %d: %+v", maxListItems, len(out), out)
	}
	if out[0] != "Alpha" || out[1] != "Beta" {
		t.Fatalf("expected first-seen order preserved, got %+v", out)
	}
}

func TestInferPhaseRules(t *testing.T) {
	cases := []struct {
		name  string
		state State
		want  Phase
	}{
		{"fresh", State{TurnCount: 0}, PhaseHandshake},
		{"first turn", State{TurnCount: 1}, PhaseExplore},
		{"deep dive", State{TurnCount: 3, OverlapScore: 0.5}, PhaseDeepDive},
		{"not deep enough", State{TurnCount: 3, OverlapScore: 0.2}, PhaseExplore},
		{"synthesize via overlap", State{TurnCount: 5, OverlapScore: 0.7}, PhaseSynthesize},
		{"synthesize via candidates", State{TurnCount: 5, CandidateCollaborations: []string{"x"}}, PhaseSynthesize},
		{"close", State{TurnCount: 5, CloseSignal: true}, PhaseClose},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := InferPhase(c.state); got != c.want {
				t.Fatalf("expected %q, got %q", c.want, got)
			}
		})
	}
}

func TestApplyHeuristicScoresOverlapAndPhase(t *testing.T) {
	keywords := BuildKeywordSet([]string{"projects", "planning"}, []string{"collaborate"})
	state := State{TurnCount: 2, Phase: PhaseExplore}
	next := ApplyHeuristic(state, HeuristicInput{
		InboundMessage:  "I'd love to collaborate on our projects and planning together.",
		OutboundMessage: "Sounds good, want to work together on the implementation details?",
		Keywords:        keywords,
	})
	if next.TurnCount != 3 {
		t.Fatalf("expected turn_count=3, got %d", next.TurnCount)
	}
	if next.OverlapScore <= state.OverlapScore {
		t.Fatalf("expected overlap_score to increase, got %v", next.OverlapScore)
	}
	if next.Phase != PhaseDeepDive {
		t.Fatalf("expected phase deep_dive, got %q", next.Phase)
	}
}

func TestApplyHeuristicCloseSignalDetection(t *testing.T) {
	state := State{TurnCount: 4}
	next := ApplyHeuristic(state, HeuristicInput{
		InboundMessage:  "Great chat!",
		OutboundMessage: "Sounds good, thanks! Let's conclude here.",
		Keywords:        map[string]struct{}{},
	})
	if !next.CloseSignal {
		t.Fatal("expected close_signal detected from regex family")
	}
}

type fakePersister struct {
	saved map[string]PersistedState
}

func newFakePersister() *fakePersister { return &fakePersister{saved: map[string]PersistedState{}} }

func (f *fakePersister) LoadCollabState(conversationID string) (*PersistedState, error) {
	p, ok := f.saved[conversationID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePersister) SaveCollabState(conversationID string, state PersistedState) error {
	f.saved[conversationID] = state
	return nil
}

func TestEngineApplyTurnStructuredPath(t *testing.T) {
	persister := newFakePersister()
	e := NewEngine(persister, Options{})

	cleaned, state, err := e.ApplyTurn(TurnInput{
		ConversationID: "conv_1",
		InboundMessage: "hi there",
		ReplyProducerText: `Hello back!
<collab_state>{"phase":"explore","overlapScore":0.42,"activeThreads":["a","b"]}</collab_state>`,
		TierTopics: []string{"projects"},
	})
	if err != nil {
		t.Fatalf("apply turn: %v", err)
	}
	if cleaned != "Hello back!" {
		t.Fatalf("expected collab_state stripped from response, got %q", cleaned)
	}
	if state.Phase != PhaseExplore || state.OverlapScore != 0.42 {
		t.Fatalf("unexpected state: %+v", state)
	}

	saved, ok := persister.saved["conv_1"]
	if !ok {
		t.Fatal("expected state persisted")
	}
	if saved.Phase != "explore" {
		t.Fatalf("expected persisted phase=explore, got %q", saved.Phase)
	}
}

func TestEngineApplyTurnHeuristicPathWhenNoTrailer(t *testing.T) {
	e := NewEngine(nil, Options{})
	cleaned, state, err := e.ApplyTurn(TurnInput{
		ConversationID:    "conv_2",
		InboundMessage:    "let's collaborate on projects",
		ReplyProducerText: "Sounds great, happy to collaborate on the implementation.",
		TierTopics:        []string{"projects", "planning"},
	})
	if err != nil {
		t.Fatalf("apply turn: %v", err)
	}
	if cleaned != "Sounds great, happy to collaborate on the implementation." {
		t.Fatalf("unexpected cleaned text: %q", cleaned)
	}
	if state.TurnCount != 1 {
		t.Fatalf("expected turn_count=1, got %d", state.TurnCount)
	}
}

func TestEngineLoadsFromPersisterWhenCacheMiss(t *testing.T) {
	persister := newFakePersister()
	persister.saved["conv_3"] = PersistedState{Phase: "deep_dive", TurnCount: 4, UpdatedAt: time.Now().UTC()}

	e := NewEngine(persister, Options{})
	state, ok := e.Peek("conv_3")
	if !ok {
		t.Fatal("expected state found via persister")
	}
	if state.Phase != PhaseDeepDive || state.TurnCount != 4 {
		t.Fatalf("unexpected state: %+v", state)
	}
}

func TestCacheEvictsOldestOverCapacity(t *testing.T) {
	c := newCache(2, time.Hour)
	c.put(State{ConversationID: "a", UpdatedAt: time.Now().UTC().Add(-2 * time.Minute)})
	c.put(State{ConversationID: "b", UpdatedAt: time.Now().UTC().Add(-1 * time.Minute)})
	c.put(State{ConversationID: "c", UpdatedAt: time.Now().UTC()})

	if _, ok := c.get("a"); ok {
		t.Fatal("expected oldest entry evicted")
	}
	if _, ok := c.get("b"); !ok {
		t.Fatal("expected b to remain")
	}
	if _, ok := c.get("c"); !ok {
		t.Fatal("expected c to remain")
	}
}

func TestCachePrunesExpiredEntries(t *testing.T) {
	c := newCache(500, time.Millisecond)
	c.put(State{ConversationID: "a", UpdatedAt: time.Now().UTC().Add(-time.Hour)})
	if _, ok := c.get("a"); ok {
		t.Fatal("expected expired entry pruned")
	}
}
