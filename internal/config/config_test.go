package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.RateLimit.PerMinute != 10 || cfg.RateLimit.PerHour != 100 || cfg.RateLimit.PerDay != 1000 {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
	if cfg.Collab.Mode != "adaptive" {
		t.Errorf("expected default collab mode adaptive, got %s", cfg.Collab.Mode)
	}
	if cfg.Collab.MaxSessions != 500 {
		t.Errorf("expected default max sessions 500, got %d", cfg.Collab.MaxSessions)
	}
}

func TestConfigDirRespectsA2AConfigDir(t *testing.T) {
	orig := os.Getenv("A2A_CONFIG_DIR")
	origOC := os.Getenv("OPENCLAW_CONFIG_DIR")
	defer os.Setenv("A2A_CONFIG_DIR", orig)
	defer os.Setenv("OPENCLAW_CONFIG_DIR", origOC)

	os.Setenv("A2A_CONFIG_DIR", "/srv/a2a-state")
	os.Setenv("OPENCLAW_CONFIG_DIR", "")

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("config dir: %v", err)
	}
	if dir != "/srv/a2a-state" {
		t.Fatalf("unexpected config dir: %q", dir)
	}
}

func TestConfigDirFallsBackToOpenclawConfigDir(t *testing.T) {
	origA2A := os.Getenv("A2A_CONFIG_DIR")
	origOC := os.Getenv("OPENCLAW_CONFIG_DIR")
	defer os.Setenv("A2A_CONFIG_DIR", origA2A)
	defer os.Setenv("OPENCLAW_CONFIG_DIR", origOC)

	os.Setenv("A2A_CONFIG_DIR", "")
	os.Setenv("OPENCLAW_CONFIG_DIR", "/srv/oclaw")

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("config dir: %v", err)
	}
	if dir != "/srv/oclaw" {
		t.Fatalf("unexpected config dir: %q", dir)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	origDir := os.Getenv("A2A_CONFIG_DIR")
	origMinute := os.Getenv("A2A_RATE_LIMIT_PER_MINUTE")
	defer os.Setenv("A2A_CONFIG_DIR", origDir)
	defer os.Setenv("A2A_RATE_LIMIT_PER_MINUTE", origMinute)

	os.Setenv("A2A_CONFIG_DIR", tmp)
	os.Setenv("A2A_RATE_LIMIT_PER_MINUTE", "42")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RateLimit.PerMinute != 42 {
		t.Fatalf("expected env override to apply, got %d", cfg.RateLimit.PerMinute)
	}
	if cfg.Paths.ConfigDir != tmp {
		t.Fatalf("expected config dir %q, got %q", tmp, cfg.Paths.ConfigDir)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	orig := os.Getenv("A2A_CONFIG_DIR")
	defer os.Setenv("A2A_CONFIG_DIR", orig)
	os.Setenv("A2A_CONFIG_DIR", tmp)

	cfg := DefaultConfig()
	cfg.Server.AdminToken = "s3cr3t"
	if err := Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	path := filepath.Join(tmp, ConfigFile)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file at %s: %v", path, err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Server.AdminToken != "s3cr3t" {
		t.Fatalf("expected admin token to round-trip, got %q", loaded.Server.AdminToken)
	}
}
