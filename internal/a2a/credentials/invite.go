package credentials

import (
	"fmt"
	"strings"
)

// ParseInviteURL parses an "a2a://host[:port]/token" invite URL. The
// legacy "oclaw://" scheme is accepted on read but is never emitted by
// this codebase. host must not contain "/"; token is the remainder of
// the URL, treated as opaque.
func ParseInviteURL(invite string) (host string, token string, err error) {
	invite = strings.TrimSpace(invite)
	var rest string
	switch {
	case strings.HasPrefix(invite, "a2a://"):
		rest = strings.TrimPrefix(invite, "a2a://")
	case strings.HasPrefix(invite, "oclaw://"):
		rest = strings.TrimPrefix(invite, "oclaw://")
	default:
		return "", "", fmt.Errorf("malformed invite url: unsupported scheme")
	}

	idx := strings.IndexByte(rest, '/')
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", fmt.Errorf("malformed invite url: missing host or token")
	}
	host = rest[:idx]
	token = rest[idx+1:]
	if host == "" || token == "" {
		return "", "", fmt.Errorf("malformed invite url: empty host or token")
	}
	return host, token, nil
}

// BuildInviteURL renders the canonical (non-legacy) invite URL form.
func BuildInviteURL(host, token string) string {
	return fmt.Sprintf("a2a://%s/%s", host, token)
}
