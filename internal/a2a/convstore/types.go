package convstore

import "time"

// Direction is which side originated a conversation or message.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Status is a conversation's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusConcluded Status = "concluded"
	StatusTimeout   Status = "timeout"
)

// Conversation is a durable record of one call between two agents.
type Conversation struct {
	ID                      string
	ContactID               string
	ContactName             string
	TokenID                 string
	Direction               Direction
	Status                  Status
	MessageCount            int
	Summary                 string
	OwnerSummary            string
	OwnerRelevance          float64
	OwnerGoalsTouched       []string
	OwnerActionItems        []string
	CallerActionItems       []string
	JointActionItems        []string
	CollaborationOpportunity string
	OwnerFollowUp           string
	OwnerNotes              string
	CollabPhase             string
	StartedAt               time.Time
	LastMessageAt           time.Time
	EndedAt                 *time.Time
}

// Message is one turn of a conversation.
type Message struct {
	ID             string
	ConversationID string
	Direction      Direction
	Role           string
	Content        string
	Metadata       string // free-form JSON, opaque to the store
	Compressed     bool
	CreatedAt      time.Time
}

// NewMessageInput is the input to AddMessage.
type NewMessageInput struct {
	Direction Direction
	Role      string
	Content   string
	Metadata  string
}

// StartConversationInput is the input to StartConversation.
type StartConversationInput struct {
	ID          string
	ContactID   string
	ContactName string
	TokenID     string
	Direction   Direction
}

// StartConversationResult reports whether an existing conversation was
// resumed.
type StartConversationResult struct {
	ID      string
	Resumed bool
}

// GetConversationOptions controls message hydration on read.
type GetConversationOptions struct {
	IncludeMessages bool
	MessageLimit    int
}

// ListConversationsOptions filters and paginates ListConversations.
type ListConversationsOptions struct {
	ContactID       string
	Status          Status
	Limit           int
	IncludeMessages bool
}

// Summarizer produces a structured conclusion from a conversation's
// messages; it is supplied by the caller (the reply-producer side),
// never implemented by the store itself.
type Summarizer func(messages []Message, ownerContext string) (Summary, error)

// Summary is what a Summarizer returns for ConcludeConversation to
// persist in one update. Text is the neutral summary shared with the
// peer; the Owner* fields are private to this owner and never leave
// the conversation store.
type Summary struct {
	Text                     string
	OwnerSummary             string
	OwnerRelevance           float64
	OwnerGoalsTouched        []string
	OwnerActionItems         []string
	CallerActionItems        []string
	JointActionItems         []string
	CollaborationOpportunity string
	OwnerFollowUp            string
	OwnerNotes               string
}

// ConcludeOptions configures ConcludeConversation.
type ConcludeOptions struct {
	Summarizer   Summarizer
	OwnerContext string
}

// ConversationContext is the dashboard-facing projection of a
// conversation, per spec's get_conversation_context.
type ConversationContext struct {
	ID              string
	Contact         string
	Summary         string
	OwnerContext    string
	RecentMessages  []Message
	MessageCount    int
	StartedAt       time.Time
	EndedAt         *time.Time
	Status          Status
}

// CollabStateRecord is the persisted form of a collaboration state,
// written/read by Store.SaveCollabState/LoadCollabState. The in-memory
// hot cache lives in the collab package; this is the durable copy.
type CollabStateRecord struct {
	ConversationID          string
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
