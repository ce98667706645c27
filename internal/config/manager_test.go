package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
general:
  database_path: /var/lib/wingman/wingman.db
github:
  enabled: true
  owner: someone
  repos: [repo-a, repo-b]
  check_interval: 30m
notify:
  telegram:
    chat_id: 12345
`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.General.DatabasePath != "/var/lib/wingman/wingman.db" {
		t.Fatalf("database_path = %q", cfg.General.DatabasePath)
	}
	if !cfg.GitHub.Enabled || len(cfg.GitHub.Repos) != 2 {
		t.Fatalf("github section = %+v", cfg.GitHub)
	}
	if cfg.Notify.Telegram.ChatID != 12345 {
		t.Fatalf("chat_id = %d", cfg.Notify.Telegram.ChatID)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, `
general:
  database_path: ./db
  database_pth: typo
`)
	if _, err := m.Load(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadExpandsEnvSecrets(t *testing.T) {
	t.Setenv("WINGMAN_TEST_TOKEN", "tok-abc")
	m := writeConfig(t, `
general:
  database_path: ./db
github:
  enabled: true
  token: ${WINGMAN_TEST_TOKEN}
`)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GitHub.Token != "tok-abc" {
		t.Fatalf("token = %q, want expanded env value", cfg.GitHub.Token)
	}
}

func TestConsoleEnabledTriState(t *testing.T) {
	t.Parallel()
	var l LoggingConfig
	if !l.ConsoleEnabled() {
		t.Fatal("unset console should default to enabled")
	}
	off := false
	l.Console = &off
	if l.ConsoleEnabled() {
		t.Fatal("explicit false ignored")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 30*time.Minute)
	if err != nil {
		t.Fatalf("ParseDurationOrDefault error: %v", err)
	}
	if d != 30*time.Minute {
		t.Fatalf("default = %v", d)
	}

	d, err = ParseDurationOrDefault("x", "90s", time.Minute)
	if err != nil {
		t.Fatalf("ParseDurationOrDefault error: %v", err)
	}
	if d != 90*time.Second {
		t.Fatalf("parsed = %v", d)
	}

	if _, err := ParseDurationField("scheduler.misfire_grace", "five minutes"); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
