package credentials

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a2a.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func TestCreateTokenNeverPersistsPlaintext(t *testing.T) {
	s := newTestStore(t)
	tok, plaintext, err := s.CreateToken(CreateTokenOptions{
		Name: "Golda", Owner: "me", Tier: TierFriends, MaxCalls: 50,
	}, nil)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	if plaintext == "" {
		t.Fatal("expected plaintext token in response")
	}
	if tok.TokenHash == "" || tok.TokenHash == plaintext {
		t.Fatalf("expected stored hash distinct from plaintext, got %q", tok.TokenHash)
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read store file: %v", err)
	}
	if strings.Contains(string(data), plaintext) {
		t.Fatal("plaintext token leaked into on-disk store")
	}
}

func TestValidateSuccessIncrementsCallsMade(t *testing.T) {
	s := newTestStore(t)
	_, plaintext, err := s.CreateToken(CreateTokenOptions{
		Name: "Golda", Tier: TierFriends, MaxCalls: 50,
	}, nil)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	res := s.Validate(plaintext)
	if !res.Valid {
		t.Fatalf("expected valid, got error %q", res.Error)
	}
	if res.CallsRemaining != 49 {
		t.Fatalf("expected 49 calls remaining, got %d", res.CallsRemaining)
	}
}

func TestValidateUnknownToken(t *testing.T) {
	s := newTestStore(t)
	res := s.Validate("fed_invalid")
	if res.Valid {
		t.Fatal("expected invalid result")
	}
	if res.Error != ErrTokenNotFound {
		t.Fatalf("expected token_not_found, got %q", res.Error)
	}
}

func TestValidateRevokedToken(t *testing.T) {
	s := newTestStore(t)
	tok, plaintext, _ := s.CreateToken(CreateTokenOptions{Tier: TierPublic, MaxCalls: 10}, nil)
	if err := s.RevokeToken(tok.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	res := s.Validate(plaintext)
	if res.Valid || res.Error != ErrTokenRevoked {
		t.Fatalf("expected token_revoked, got %+v", res)
	}
}

func TestValidateMaxCallsExceeded(t *testing.T) {
	s := newTestStore(t)
	_, plaintext, _ := s.CreateToken(CreateTokenOptions{Tier: TierPublic, MaxCalls: 2}, nil)
	for i := 0; i < 2; i++ {
		if res := s.Validate(plaintext); !res.Valid {
			t.Fatalf("call %d: expected valid, got %+v", i, res)
		}
	}
	res := s.Validate(plaintext)
	if res.Valid || res.Error != ErrMaxCallsExceeded {
		t.Fatalf("expected max_calls_exceeded, got %+v", res)
	}

	tokens := s.ListTokens()
	if len(tokens) != 1 {
		t.Fatalf("expected exactly one token, got %d", len(tokens))
	}
	tok := tokens[0]
	if tok.CallsMade != 2 {
		t.Fatalf("expected calls_made=2, got %d", tok.CallsMade)
	}
	if tok.Revoked {
		t.Fatal("expected revoked=false after exhausting max_calls")
	}
}

func TestRevokeIsMonotonic(t *testing.T) {
	s := newTestStore(t)
	tok, _, _ := s.CreateToken(CreateTokenOptions{Tier: TierPublic, MaxCalls: 10}, nil)
	if err := s.RevokeToken(tok.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := s.RevokeToken(tok.ID); err != nil {
		t.Fatalf("second revoke should be a no-op, got error: %v", err)
	}
	got, _ := s.GetToken(tok.ID)
	if !got.Revoked {
		t.Fatal("expected token to remain revoked")
	}
}

func TestCorruptStoreResetsToEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a2a.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if len(s.ListTokens()) != 0 {
		t.Fatal("expected empty store after corrupt reset")
	}
}

func TestAddContactRejectsDuplicates(t *testing.T) {
	s := newTestStore(t)
	invite := BuildInviteURL("peer.example", "fed_peertoken")
	if _, err := s.AddContact(invite, AddContactOptions{Name: "Peer"}); err != nil {
		t.Fatalf("add contact: %v", err)
	}
	if _, err := s.AddContact(invite, AddContactOptions{Name: "Peer"}); err == nil {
		t.Fatal("expected duplicate contact error")
	}
}

func TestAddContactEncryptsTokenAtRest(t *testing.T) {
	s := newTestStore(t)
	invite := BuildInviteURL("peer.example", "fed_supersecret")
	c, err := s.AddContact(invite, AddContactOptions{Name: "Peer"})
	if err != nil {
		t.Fatalf("add contact: %v", err)
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatalf("read store: %v", err)
	}
	if strings.Contains(string(data), "fed_supersecret") {
		t.Fatal("peer token leaked in plaintext on disk")
	}
	if c.TokenCiphertext == "" {
		t.Fatal("expected token ciphertext to be set")
	}
}

func TestEnsureInboundContactIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	c1, err := s.EnsureInboundContact("Caller", "tok_1")
	if err != nil {
		t.Fatalf("ensure inbound: %v", err)
	}
	c2, err := s.EnsureInboundContact("Caller", "tok_1")
	if err != nil {
		t.Fatalf("ensure inbound: %v", err)
	}
	if c1.ID != c2.ID {
		t.Fatalf("expected idempotent contact, got %s vs %s", c1.ID, c2.ID)
	}
	if len(s.ListContacts()) != 1 {
		t.Fatalf("expected exactly one contact, got %d", len(s.ListContacts()))
	}
}

func TestParseInviteURLAcceptsLegacyScheme(t *testing.T) {
	host, token, err := ParseInviteURL("oclaw://old.example/fed_legacy")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if host != "old.example" || token != "fed_legacy" {
		t.Fatalf("unexpected parse result: host=%q token=%q", host, token)
	}
}

func TestParseInviteURLRejectsOtherSchemes(t *testing.T) {
	if _, _, err := ParseInviteURL("https://host/token"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
