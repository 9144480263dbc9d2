// Package cryptoutil provides the credential store's small set of
// cryptographic primitives: token generation, hashing, the documented
// XOR-with-derived-key at-rest obfuscation for stored peer tokens, and
// the duration-string parser shared by token issuance.
package cryptoutil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TokenPrefix is prepended to every issued plaintext token.
const TokenPrefix = "fed_"

// tokenBytes is the amount of random material encoded into a token.
const tokenBytes = 24

// idBytes is the amount of random material encoded into a token id.
// Token ids are generated independently of the token itself so that no
// prefix or length relationship could help an attacker enumerate tokens.
const idBytes = 16

// NewToken returns a new random plaintext token, "fed_"-prefixed and
// URL-safe base64 (no padding) encoded.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewID returns a new random opaque identifier, independent of any token.
func NewID(prefix string) (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}

// HashToken returns the hex-encoded SHA-256 hash of a plaintext token.
// This is the only form of the token ever persisted.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// DeriveXORKey derives the XOR-at-rest obfuscation key for peer tokens
// from sha256(storePath ∥ "remote-key"). This is deliberately documented
// obfuscation, not authenticated encryption: it stops a casual read of
// a2a.json from leaking a peer's token, nothing more. Any rewrite of the
// credential store must either keep this exact contract or ship an
// explicit, non-silent upgrade path — see DESIGN.md.
func DeriveXORKey(storePath string) []byte {
	sum := sha256.Sum256([]byte(storePath + "remote-key"))
	return sum[:]
}

// XORCrypt XORs data with key, repeating the key as needed. The same
// function encrypts and decrypts since XOR is its own inverse.
func XORCrypt(data, key []byte) []byte {
	if len(key) == 0 {
		return append([]byte(nil), data...)
	}
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}

// EncryptTokenAtRest XORs a plaintext peer token and returns it
// base64-encoded for storage as Contact.TokenCiphertext.
func EncryptTokenAtRest(storePath, plaintext string) string {
	key := DeriveXORKey(storePath)
	return base64.StdEncoding.EncodeToString(XORCrypt([]byte(plaintext), key))
}

// DecryptTokenAtRest reverses EncryptTokenAtRest.
func DecryptTokenAtRest(storePath, ciphertext string) (string, error) {
	key := DeriveXORKey(storePath)
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode token ciphertext: %w", err)
	}
	return string(XORCrypt(raw, key)), nil
}

// ParseDuration parses the token-expiry mini-grammar: "<n>h", "<n>d", or
// the literal "never". Any other value is a validation error.
func ParseDuration(s string) (time.Duration, bool, error) {
	s = strings.TrimSpace(s)
	if s == "never" {
		return 0, true, nil
	}
	if len(s) < 2 {
		return 0, false, fmt.Errorf("invalid duration %q", s)
	}
	unit := s[len(s)-1]
	numPart := s[:len(s)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return 0, false, fmt.Errorf("invalid duration %q", s)
	}
	switch unit {
	case 'h':
		return time.Duration(n) * time.Hour, false, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, false, nil
	default:
		return 0, false, fmt.Errorf("invalid duration %q", s)
	}
}

// FormatDuration is the inverse of ParseDuration for representable
// values (whole hours or whole days, or "never").
func FormatDuration(d time.Duration, never bool) string {
	if never {
		return "never"
	}
	if d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	}
	return fmt.Sprintf("%dh", d/time.Hour)
}
