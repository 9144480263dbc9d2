package credentials

import "strings"

// legacyTierAliases maps older tier names, read but never written.
var legacyTierAliases = map[Tier]Tier{
	"chat-only":  TierPublic,
	"tools-read": TierFriends,
	"tools-write": TierFamily,
}

// NormalizeTier resolves a legacy tier alias to its current name.
func NormalizeTier(t Tier) Tier {
	if canonical, ok := legacyTierAliases[t]; ok {
		return canonical
	}
	return t
}

// hardCodedTierDefaults are used when no on-disk tier-settings config is
// present (internal/config's a2a-config.json, loaded by the CLI layer
// and passed in via TierDefaultsProvider).
var hardCodedTierDefaults = map[Tier]TierSettings{
	TierPublic: {
		Topics:       []string{"general", "introductions"},
		Goals:        []string{"say-hello"},
		Capabilities: []string{},
	},
	TierFriends: {
		Topics:       []string{"general", "introductions", "projects", "context-read"},
		Goals:        []string{"say-hello", "collaborate"},
		Capabilities: []string{"context-read"},
	},
	TierFamily: {
		Topics:       []string{"general", "introductions", "projects", "context-read", "planning"},
		Goals:        []string{"say-hello", "collaborate", "coordinate"},
		Capabilities: []string{"context-read", "context-write"},
	},
	TierCustom: {
		Topics:       nil,
		Goals:        nil,
		Capabilities: nil,
	},
}

// TierDefaultsProvider supplies on-disk tier defaults. Implementations
// come from internal/config's a2a-config.json loader; a nil provider
// falls back to hardCodedTierDefaults.
type TierDefaultsProvider interface {
	TierSettings(tier Tier) (TierSettings, bool)
}

// DefaultTierSettings resolves tier defaults, preferring an on-disk
// provider over the hard-coded fallback.
func DefaultTierSettings(provider TierDefaultsProvider, tier Tier) TierSettings {
	tier = NormalizeTier(tier)
	if provider != nil {
		if s, ok := provider.TierSettings(tier); ok {
			return s
		}
	}
	if s, ok := hardCodedTierDefaults[tier]; ok {
		return s
	}
	return TierSettings{}
}

// ValidTier reports whether t (after legacy-alias normalization) is one
// of the four known tiers.
func ValidTier(t Tier) bool {
	switch NormalizeTier(t) {
	case TierPublic, TierFriends, TierFamily, TierCustom:
		return true
	default:
		return false
	}
}

// ValidDisclosure reports whether d is one of the three known levels.
func ValidDisclosure(d Disclosure) bool {
	switch d {
	case DisclosureNone, DisclosureMinimal, DisclosurePublic:
		return true
	default:
		return false
	}
}

func canonicalTierName(raw string) Tier {
	return NormalizeTier(Tier(strings.ToLower(strings.TrimSpace(raw))))
}
