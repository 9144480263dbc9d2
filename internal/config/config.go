// Package config provides configuration types and loading for the A2A
// calling runtime.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Paths, Server, RateLimit, Collab, Logging, Owner, Notify.
type Config struct {
	Paths     PathsConfig            `json:"paths"`
	Server    ServerConfig           `json:"server"`
	RateLimit RateLimitConfig        `json:"rateLimit"`
	Collab    CollabConfig           `json:"collab"`
	Logging   LoggingConfig          `json:"logging"`
	Owner     OwnerConfig            `json:"owner"`
	Notify    NotifyConfig           `json:"notify"`
	Tiers     map[string]TierSettings `json:"tiers,omitempty"`
}

// TierSettings is the on-disk tier default bundle read from
// a2a-config.json, mirroring credentials.TierSettings without this
// package importing internal/a2a/credentials.
type TierSettings struct {
	Topics       []string `json:"topics"`
	Goals        []string `json:"goals"`
	Capabilities []string `json:"capabilities"`
}

// OwnerConfig groups the owner-facing defaults the call lifecycle
// passes straight through to the conversation store's summarizer
// (owner_context in spec §4.3's conclude_conversation).
type OwnerConfig struct {
	Name    string `json:"name"`
	Context string `json:"context"`
}

// NotifyConfig groups owner-notification transport settings. Only
// Slack is wired in this core (see DESIGN.md); an empty BotToken
// leaves owner notifications a no-op.
type NotifyConfig struct {
	SlackBotToken   string `json:"slackBotToken" envconfig:"SLACK_BOT_TOKEN"`
	SlackChannelID  string `json:"slackChannelId" envconfig:"SLACK_CHANNEL_ID"`
}

// PathsConfig groups all filesystem path settings.
type PathsConfig struct {
	// ConfigDir is the directory holding a2a.json, a2a-conversations.db,
	// a2a-config.json and a2a-disclosure.json. Resolved by ConfigPath's
	// sibling helpers, not read directly from this struct at runtime.
	ConfigDir string `json:"configDir"`
}

// ServerConfig groups HTTP listener and admin settings.
type ServerConfig struct {
	Port       int    `json:"port" envconfig:"PORT"`
	AdminToken string `json:"adminToken" envconfig:"ADMIN_TOKEN"`
}

// RateLimitConfig groups per-token rate-limit defaults.
type RateLimitConfig struct {
	PerMinute int `json:"perMinute" envconfig:"RATE_LIMIT_PER_MINUTE"`
	PerHour   int `json:"perHour" envconfig:"RATE_LIMIT_PER_HOUR"`
	PerDay    int `json:"perDay" envconfig:"RATE_LIMIT_PER_DAY"`
}

// CollabConfig groups collaboration-state-engine tuning.
type CollabConfig struct {
	Mode          string        `json:"mode" envconfig:"COLLAB_MODE"`
	StateTTL      time.Duration `json:"stateTtl" envconfig:"COLLAB_STATE_TTL_MS"`
	MaxSessions   int           `json:"maxSessions" envconfig:"COLLAB_MAX_SESSIONS"`
	IdleTimeout   time.Duration `json:"idleTimeout"`
	MaxDuration   time.Duration `json:"maxDuration"`
	WatchdogEvery time.Duration `json:"watchdogEvery"`
}

// LoggingConfig groups log-store tuning.
type LoggingConfig struct {
	MinLevel string `json:"minLevel" envconfig:"LOG_LEVEL"`
}

// DefaultConfig returns a Config with sensible defaults, mirroring the
// spec's documented fallbacks (§6 Environment / config).
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 10,
			PerHour:   100,
			PerDay:    1000,
		},
		Collab: CollabConfig{
			Mode:          "adaptive",
			StateTTL:      6 * time.Hour,
			MaxSessions:   500,
			IdleTimeout:   60 * time.Second,
			MaxDuration:   300 * time.Second,
			WatchdogEvery: 10 * time.Second,
		},
		Logging: LoggingConfig{
			MinLevel: "info",
		},
	}
}
