package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// DefaultConfigDirName is the default config directory name under $HOME/.config.
	DefaultConfigDirName = "openclaw"
	// ConfigFile is the settings file name within the config directory.
	ConfigFile = "a2a-config.json"
	// CredentialFile is the credential store file name.
	CredentialFile = "a2a.json"
	// ConversationDBFile is the conversation/message/log SQLite file name.
	ConversationDBFile = "a2a-conversations.db"
	// DisclosureFile is the disclosure manifest file name.
	DisclosureFile = "a2a-disclosure.json"
)

// ConfigDir resolves the single config directory the core persists under,
// honoring A2A_CONFIG_DIR then OPENCLAW_CONFIG_DIR before falling back to
// ~/.config/openclaw.
func ConfigDir() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("A2A_CONFIG_DIR")); explicit != "" {
		return expandHome(explicit)
	}
	if explicit := strings.TrimSpace(os.Getenv("OPENCLAW_CONFIG_DIR")); explicit != "" {
		return expandHome(explicit)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", DefaultConfigDirName), nil
}

// ConfigPath returns the path to the tier/owner defaults file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFile), nil
}

// CredentialPath returns the path to the credential store file.
func CredentialPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, CredentialFile), nil
}

// ConversationDBPath returns the path to the conversation SQLite file.
func ConversationDBPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConversationDBFile), nil
}

// DisclosurePath returns the path to the disclosure manifest file.
func DisclosurePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DisclosureFile), nil
}

func expandHome(p string) (string, error) {
	if !strings.HasPrefix(p, "~") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if p == "~" {
		return home, nil
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:]), nil
	}
	return p, nil
}

// Load loads the configuration from a2a-config.json and environment
// variables. Priority: environment > file > defaults, matching every other
// config group in this codebase.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	LoadEnvFileCandidates()

	dir, err := ConfigDir()
	if err == nil {
		cfg.Paths.ConfigDir = dir
	}

	path, err := ConfigPath()
	if err == nil {
		if data, readErr := os.ReadFile(path); readErr == nil {
			if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
				return nil, jsonErr
			}
		} else if !os.IsNotExist(readErr) {
			return nil, readErr
		}
	}

	envconfig.Process("A2A", &cfg.Server)
	envconfig.Process("A2A", &cfg.RateLimit)
	envconfig.Process("A2A", &cfg.Collab)
	envconfig.Process("A2A", &cfg.Logging)
	envconfig.Process("A2A", &cfg.Notify)

	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		if n, convErr := parsePort(p); convErr == nil {
			cfg.Server.Port = n
		}
	}

	return cfg, nil
}

// Save persists the configuration to a2a-config.json, creating the config
// directory (mode 0700) if necessary.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

func parsePort(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

// ListenPortFallbacks is the ordered list of ports tried when the
// configured listen port (PORT, a2a-config.json, or `a2a serve --port`)
// cannot be bound. No positional command-line argument is read as a
// port.
var ListenPortFallbacks = []int{80, 3001, 8080, 8443, 9001}
