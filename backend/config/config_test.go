package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected default host, got '%s'", cfg.Server.Host)
	}
	if cfg.Database.DSN != "./data/stepline.db" {
		t.Errorf("Expected default DSN, got '%s'", cfg.Database.DSN)
	}
	if cfg.Services.FetchTimeout.Std() != 10*time.Second {
		t.Errorf("Expected default fetch timeout, got %v", cfg.Services.FetchTimeout)
	}
	if cfg.Sessions.IdleTimeout.Std() != 30*time.Minute {
		t.Errorf("Expected default idle timeout, got %v", cfg.Sessions.IdleTimeout)
	}
}

func TestLoadValues(t *testing.T) {
	path := writeConfig(t, `
server:
  host: 127.0.0.1
  port: 8181
database:
  dsn: user:pass@tcp(db:3306)/stepline?parseTime=True
services:
  template_search_url: http://search:9090
  table_data_url: http://tables:9091
  fetch_timeout: 3s
sessions:
  idle_timeout: 5m
  sweep_interval: 30s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got '%s'", cfg.Server.Host)
	}
	if cfg.Services.TemplateSearchURL != "http://search:9090" {
		t.Errorf("Expected search URL, got '%s'", cfg.Services.TemplateSearchURL)
	}
	if cfg.Services.FetchTimeout.Std() != 3*time.Second {
		t.Errorf("Expected 3s fetch timeout, got %v", cfg.Services.FetchTimeout)
	}
	if cfg.Sessions.SweepInterval.Std() != 30*time.Second {
		t.Errorf("Expected 30s sweep interval, got %v", cfg.Sessions.SweepInterval)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  dsn: ./file.db\n")

	t.Setenv("DB_DSN", "override:pass@tcp(db:3306)/stepline")
	t.Setenv("PORT", "7070")
	t.Setenv("TEMPLATE_SEARCH_URL", "http://elsewhere:9999")

	cfg, err := LoadFromEnv(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Database.DSN != "override:pass@tcp(db:3306)/stepline" {
		t.Errorf("Expected DSN override, got '%s'", cfg.Database.DSN)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Expected port override 7070, got %d", cfg.Server.Port)
	}
	if cfg.Services.TemplateSearchURL != "http://elsewhere:9999" {
		t.Errorf("Expected search URL override, got '%s'", cfg.Services.TemplateSearchURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("./no-such-config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}
