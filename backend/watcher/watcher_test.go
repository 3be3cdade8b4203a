package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/andi/stepline/backend/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "server:\n  port: 8080\n")

	reloaded := make(chan *config.Config, 1)
	w, err := New(path, func(cfg *config.Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer w.Stop()

	writeFile(t, path, "server:\n  port: 9090\n")

	select {
	case cfg := <-reloaded:
		if cfg.Server.Port != 9090 {
			t.Errorf("Expected reloaded port 9090, got %d", cfg.Server.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for config reload")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "server:\n  port: 8080\n")

	reloaded := make(chan *config.Config, 1)
	w, err := New(path, func(cfg *config.Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, "other.yaml"), "server:\n  port: 7070\n")

	select {
	case <-reloaded:
		t.Error("Expected no reload for unrelated file")
	case <-time.After(1 * time.Second):
	}
}

func TestWatcherStopIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "server:\n  port: 8080\n")

	w, err := New(path, func(*config.Config) {})
	if err != nil {
		t.Fatalf("Failed to create watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Failed to start watcher: %v", err)
	}

	w.Stop()
	w.Stop()
}
