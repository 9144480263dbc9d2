package collab

import (
	"regexp"
	"strings"
	"time"
)

const maxKeywords = 48

var (
	collabRegex = regexp.MustCompile(`(?i)\b(collaborat\w*|partner\w*|joint\w*|work together|team up)\b`)
	depthRegex  = regexp.MustCompile(`(?i)\b(specific\w*|detail\w*|concrete\w*|implementation|deep dive)\b`)
	closeRegex  = regexp.MustCompile(`(?i)\b(wrap up|that's all|sounds good, thanks|no further questions|let's conclude|talk soon)\b`)

	threadRegex    = regexp.MustCompile(`(?i)\b((?:working on|interested in|focused on|goal(?:\s+is)?)[^.!?]{3,80})`)
	candidateRegex = regexp.MustCompile(`(?i)\b((?:we could|let's|propose(?:d)? to|happy to)[^.!?]{3,80}(?:collaborat\w*|partner\w*|joint\w*)[^.!?]{0,80})`)
	questionRegex  = regexp.MustCompile(`([^.!?]{3,120}\?)`)
)

// BuildKeywordSet derives the keyword set from a tier's topic and goal
// vocabulary: words of at least 4 characters, lower-cased, capped at
// maxKeywords. Tiers here carry allowed_topics/allowed_goals rather than
// separate lead_with/discuss_freely lists, so both feed the same set.
func BuildKeywordSet(topics, goals []string) map[string]struct{} {
	set := make(map[string]struct{})
	add := func(phrase string) {
		for _, word := range strings.Fields(phrase) {
			w := strings.ToLower(strings.Trim(word, ".,!?;:\"'"))
			if len(w) < 4 {
				continue
			}
			if _, ok := set[w]; !ok && len(set) < maxKeywords {
				set[w] = struct{}{}
			}
		}
	}
	for _, t := range topics {
		add(t)
	}
	for _, g := range goals {
		add(g)
	}
	return set
}

// HeuristicInput is the text available to the fallback scorer for one
// turn.
type HeuristicInput struct {
	InboundMessage  string
	OutboundMessage string
	Keywords        map[string]struct{}
}

// ApplyHeuristic derives the next state from inbound/outbound text
// when no structured trailer was present or parsing failed.
func ApplyHeuristic(state State, in HeuristicInput) State {
	combined := in.InboundMessage + " " + in.OutboundMessage

	hits := 0
	for kw := range in.Keywords {
		if strings.Contains(strings.ToLower(combined), kw) {
			hits++
		}
	}
	denom := len(in.Keywords)
	if denom < 8 {
		denom = 8
	}
	score := float64(hits) / float64(denom)

	collabHit := collabRegex.MatchString(combined)
	depthHit := depthRegex.MatchString(combined)
	closeHit := closeRegex.MatchString(combined)
	questionsPresent := questionRegex.MatchString(in.OutboundMessage)

	delta := score * 0.45
	if collabHit {
		delta += 0.12
	}
	if depthHit {
		delta += 0.08
	}
	if questionsPresent {
		delta += 0.03
	} else {
		delta -= 0.03
	}

	next := state
	next.OverlapScore = clampUnit(state.OverlapScore + delta)

	next.ActiveThreads = mergeSanitized(state.ActiveThreads, extractPhrases(threadRegex, combined))
	next.CandidateCollaborations = mergeSanitized(state.CandidateCollaborations, extractPhrases(candidateRegex, combined))
	next.OpenQuestions = mergeSanitized(state.OpenQuestions, extractPhrases(questionRegex, in.OutboundMessage))

	next.CloseSignal = state.CloseSignal || closeHit
	next.TurnCount = clampTurnCount(state.TurnCount + 1)
	next.Phase = InferPhase(next)
	next.UpdatedAt = time.Now().UTC()
	return next
}

// extractPhrases returns up to maxListItems regex matches, trimmed.
func extractPhrases(re *regexp.Regexp, text string) []string {
	matches := re.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		s := strings.TrimSpace(m)
		if s != "" {
			out = append(out, s)
		}
		if len(out) == maxListItems {
			break
		}
	}
	return out
}

// mergeSanitized merges fresh phrases onto the current list, applying
// the same trim/dedupe/cap rules as the structured patch path.
func mergeSanitized(current, fresh []string) []string {
	combined := make([]string, 0, len(current)+len(fresh))
	combined = append(combined, current...)
	combined = append(combined, fresh...)
	return sanitizeList(combined)
}

// InferPhase derives the collaboration phase from turn count, overlap
// score, candidate count, and close signal, per spec §4.4.
func InferPhase(s State) Phase {
	switch {
	case s.TurnCount >= 5 && s.CloseSignal:
		return PhaseClose
	case s.TurnCount >= 5 && (len(s.CandidateCollaborations) > 0 || s.OverlapScore >= 0.65):
		return PhaseSynthesize
	case s.TurnCount >= 3 && s.OverlapScore >= 0.4:
		return PhaseDeepDive
	case s.TurnCount >= 1:
		return PhaseExplore
	default:
		return PhaseHandshake
	}
}
