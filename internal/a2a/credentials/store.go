// Package credentials implements the token and contact directory: a
// single JSON file per owner, atomically replaced on every mutation, the
// way internal/secrets' local tomb file and internal/provider/credentials'
// token.json are written in this codebase.
package credentials

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KafClaw/KafClaw/internal/a2a/cryptoutil"
)

// document is the on-disk shape of the credential store file.
type document struct {
	Tokens   map[string]*Token   `json:"tokens"`   // keyed by token hash
	Contacts map[string]*Contact `json:"contacts"` // keyed by contact id
}

// Store is the credential store: tokens keyed by hash, plus the contact
// directory. All mutations go through load -> transform -> atomic
// rename, so a crash mid-write never leaves a torn file.
type Store struct {
	path string
	mu   sync.Mutex
	doc  *document
	log  *slog.Logger
}

// Open loads the credential store at path, creating an empty one if it
// doesn't exist. A corrupt file is renamed aside with a timestamp suffix
// and the store restarts empty — this is intentional "prototype mode"
// schema handling, not a bug (spec §7).
func Open(path string) (*Store, error) {
	s := &Store{
		path: path,
		log:  slog.Default().With("component", "credentials"),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.doc = &document{Tokens: map[string]*Token{}, Contacts: map[string]*Contact{}}
			return nil
		}
		return fmt.Errorf("read credential store: %w", err)
	}

	var doc document
	if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
		s.log.Error("credential store corrupt, resetting", "error_code", "store_corrupt", "hint", "backing up and starting empty", "path", s.path)
		backup := fmt.Sprintf("%s.corrupt.%d", s.path, time.Now().UnixNano())
		_ = os.Rename(s.path, backup)
		s.doc = &document{Tokens: map[string]*Token{}, Contacts: map[string]*Contact{}}
		return nil
	}
	if doc.Tokens == nil {
		doc.Tokens = map[string]*Token{}
	}
	if doc.Contacts == nil {
		doc.Contacts = map[string]*Contact{}
	}
	s.doc = &doc
	return nil
}

// persist writes the store atomically: write-to-temp in the same
// directory, then rename over the target. File mode is restricted to
// the owner (0600); the parent directory is created at 0700 if needed.
func (s *Store) persist() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential store dir: %w", err)
	}
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credential store: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".a2a-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp credential file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp credential file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp credential file: %w", err)
	}
	return nil
}

// CreateToken issues a new token, returning the plaintext token once
// (it is never persisted or retrievable again).
func (s *Store) CreateToken(opts CreateTokenOptions, provider TierDefaultsProvider) (*Token, string, error) {
	tier := canonicalTierName(string(opts.Tier))
	if tier == "" {
		tier = TierPublic
	}
	if !ValidTier(tier) {
		return nil, "", fmt.Errorf("invalid tier %q", opts.Tier)
	}
	disclosure := opts.Disclosure
	if disclosure == "" {
		disclosure = DisclosureMinimal
	}
	if !ValidDisclosure(disclosure) {
		return nil, "", fmt.Errorf("invalid disclosure %q", opts.Disclosure)
	}

	var expiresAt *time.Time
	if strings.TrimSpace(opts.Expires) != "" {
		d, never, err := cryptoutil.ParseDuration(opts.Expires)
		if err != nil {
			return nil, "", fmt.Errorf("invalid expires: %w", err)
		}
		if !never {
			t := time.Now().Add(d)
			expiresAt = &t
		}
	}

	defaults := DefaultTierSettings(provider, tier)
	topics := opts.AllowedTopics
	if len(topics) == 0 {
		topics = defaults.Topics
	}
	goals := opts.AllowedGoals
	if len(goals) == 0 {
		goals = defaults.Goals
	}
	caps := opts.Capabilities
	if len(caps) == 0 {
		caps = defaults.Capabilities
	}

	plaintext, err := cryptoutil.NewToken()
	if err != nil {
		return nil, "", err
	}
	id, err := cryptoutil.NewID("tok_")
	if err != nil {
		return nil, "", err
	}

	maxCalls := opts.MaxCalls
	if maxCalls <= 0 {
		maxCalls = 1000
	}

	tok := &Token{
		ID:            id,
		TokenHash:     cryptoutil.HashToken(plaintext),
		Name:          opts.Name,
		Owner:         opts.Owner,
		Tier:          tier,
		Capabilities:  append([]string(nil), caps...),
		AllowedTopics: append([]string(nil), topics...),
		AllowedGoals:  append([]string(nil), goals...),
		Disclosure:    disclosure,
		Notify:        opts.Notify,
		MaxCalls:      maxCalls,
		CreatedAt:     time.Now(),
	}
	tok.ExpiresAt = expiresAt

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Tokens[tok.TokenHash] = tok
	if err := s.persist(); err != nil {
		delete(s.doc.Tokens, tok.TokenHash)
		return nil, "", err
	}
	return tok, plaintext, nil
}

// Validate checks a plaintext token and, on success, atomically
// increments calls_made and updates last_used before returning. The
// increment and the validation read are serialised by s.mu together
// with the atomic file write, so concurrent validations of the same
// token cannot race past max_calls.
func (s *Store) Validate(plaintext string) ValidationResult {
	hash := cryptoutil.HashToken(plaintext)

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.doc.Tokens[hash]
	if !ok {
		return ValidationResult{Valid: false, Error: ErrTokenNotFound}
	}
	if tok.Revoked {
		return ValidationResult{Valid: false, Error: ErrTokenRevoked}
	}
	if tok.ExpiresAt != nil && time.Now().After(*tok.ExpiresAt) {
		return ValidationResult{Valid: false, Error: ErrTokenExpired}
	}
	if tok.CallsMade >= tok.MaxCalls {
		return ValidationResult{Valid: false, Error: ErrMaxCallsExceeded}
	}
	if !ValidTier(tok.Tier) {
		return ValidationResult{Valid: false, Error: ErrInvalidTokenTier}
	}

	tok.CallsMade++
	now := time.Now()
	tok.LastUsed = &now
	if err := s.persist(); err != nil {
		// Persistence failure must not grant an unrecorded call; roll back
		// the in-memory increment and surface as not-found-equivalent.
		tok.CallsMade--
		tok.LastUsed = nil
		s.log.Error("persist token usage failed", "error_code", "store_write_failed", "hint", err.Error())
		return ValidationResult{Valid: false, Error: ErrTokenNotFound}
	}

	return ValidationResult{
		Valid:          true,
		ID:             tok.ID,
		Name:           tok.Name,
		Tier:           tok.Tier,
		Capabilities:   append([]string(nil), tok.Capabilities...),
		AllowedTopics:  append([]string(nil), tok.AllowedTopics...),
		AllowedGoals:   append([]string(nil), tok.AllowedGoals...),
		Disclosure:     tok.Disclosure,
		Notify:         tok.Notify,
		CallsRemaining: tok.MaxCalls - tok.CallsMade,
	}
}

// RevokeToken marks a token revoked by id. Revocation is monotonic: once
// true it can never be unset.
func (s *Store) RevokeToken(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.doc.Tokens {
		if tok.ID == id {
			if tok.Revoked {
				return nil
			}
			tok.Revoked = true
			now := time.Now()
			tok.RevokedAt = &now
			return s.persist()
		}
	}
	return fmt.Errorf("token %s not found", id)
}

// GetToken returns a token by id.
func (s *Store) GetToken(id string) (*Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tok := range s.doc.Tokens {
		if tok.ID == id {
			return tok, true
		}
	}
	return nil, false
}

// FindByIDPrefix returns tokens whose id starts with prefix, for
// CLI/dashboard lookups only — token validation never uses prefix
// matching.
func (s *Store) FindByIDPrefix(prefix string) []*Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Token
	for _, tok := range s.doc.Tokens {
		if strings.HasPrefix(tok.ID, prefix) {
			out = append(out, tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ListTokens returns every token, sorted oldest first.
func (s *Store) ListTokens() []*Token {
	return s.FindByIDPrefix("")
}
