package credentials

import "time"

// Tier is a token's coarse access class.
type Tier string

const (
	TierPublic  Tier = "public"
	TierFriends Tier = "friends"
	TierFamily  Tier = "family"
	TierCustom  Tier = "custom"
)

// Disclosure controls how much owner context a token's holder may see.
type Disclosure string

const (
	DisclosureNone    Disclosure = "none"
	DisclosureMinimal Disclosure = "minimal"
	DisclosurePublic  Disclosure = "public"
)

// ContactStatus reflects the last-observed reachability of a contact.
type ContactStatus string

const (
	ContactUnknown ContactStatus = "unknown"
	ContactOnline  ContactStatus = "online"
	ContactOffline ContactStatus = "offline"
	ContactError   ContactStatus = "error"
)

// Token is an issued credential. TokenHash is the only persisted form of
// the secret; the plaintext exists only in the response to Create.
type Token struct {
	ID            string     `json:"id"`
	TokenHash     string     `json:"tokenHash"`
	Name          string     `json:"name"`
	Owner         string     `json:"owner"`
	Tier          Tier       `json:"tier"`
	Capabilities  []string   `json:"capabilities"`
	AllowedTopics []string   `json:"allowedTopics"`
	AllowedGoals  []string   `json:"allowedGoals"`
	Disclosure    Disclosure `json:"disclosure"`
	Notify        bool       `json:"notify"`
	MaxCalls      int        `json:"maxCalls"`
	CallsMade     int        `json:"callsMade"`
	ExpiresAt     *time.Time `json:"expiresAt"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastUsed      *time.Time `json:"lastUsed,omitempty"`
}

// Contact is a known remote peer.
type Contact struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Owner            string            `json:"owner"`
	Host             string            `json:"host"`
	TokenHash        string            `json:"tokenHash,omitempty"`
	TokenCiphertext  string            `json:"tokenCiphertext,omitempty"`
	Tags             []string          `json:"tags"`
	Fields           map[string]string `json:"fields"`
	LinkedTokenID    string            `json:"linkedTokenId,omitempty"`
	Status           ContactStatus     `json:"status"`
	LastSeen         *time.Time        `json:"lastSeen,omitempty"`
	LastError        string            `json:"lastError,omitempty"`
	AddedAt          time.Time         `json:"addedAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	IsMine           bool              `json:"isMine"`
}

// ValidationError is the structured, server-side-only reason a token
// failed validation. The HTTP layer must never echo this value directly
// to a caller — see server.ErrorCode and writeError.
type ValidationError string

const (
	ErrTokenNotFound      ValidationError = "token_not_found"
	ErrTokenRevoked       ValidationError = "token_revoked"
	ErrTokenExpired       ValidationError = "token_expired"
	ErrMaxCallsExceeded   ValidationError = "max_calls_exceeded"
	ErrInvalidTokenTier   ValidationError = "invalid_token_tier"
)

// ValidationResult is the outcome of Store.Validate.
type ValidationResult struct {
	Valid           bool
	Error           ValidationError
	ID              string
	Name            string
	Tier            Tier
	Capabilities    []string
	AllowedTopics   []string
	AllowedGoals    []string
	TierSettings    TierSettings
	Disclosure      Disclosure
	Notify          bool
	CallsRemaining  int
}

// TierSettings is the default topic/goal/capability bundle for a tier.
type TierSettings struct {
	Topics       []string `json:"topics"`
	Goals        []string `json:"goals"`
	Capabilities []string `json:"capabilities"`
}

// CreateTokenOptions configures token issuance.
type CreateTokenOptions struct {
	Name          string
	Owner         string
	Expires       string // duration string: "<n>h", "<n>d", or "never"
	Tier          Tier
	Disclosure    Disclosure
	Notify        bool
	MaxCalls      int
	Capabilities  []string
	AllowedTopics []string
	AllowedGoals  []string
	TierSettings  *TierSettings
}
