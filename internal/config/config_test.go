package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".config", "tatami")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Keymap != "us" || cfg.Card != "/dev/dri/card0" || cfg.Socket != 1 {
		t.Errorf("defaults wrong: %+v", cfg)
	}
	if cfg.SocketName() != "wayland-1" {
		t.Errorf("socket name = %q", cfg.SocketName())
	}
}

func TestLoadFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, `{"keymap": "de", "card": "/dev/dri/card1"}`)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Keymap != "de" {
		t.Errorf("keymap = %q, want de", cfg.Keymap)
	}
	if cfg.Card != "/dev/dri/card1" {
		t.Errorf("card = %q, want /dev/dri/card1", cfg.Card)
	}

	// Unset keys keep their defaults.
	if cfg.Socket != 1 {
		t.Errorf("socket = %d, want 1", cfg.Socket)
	}
}

func TestLoadInvalidFallsBack(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, `{"keymap": `)

	cfg, err := Load()
	if err == nil {
		t.Error("invalid config should report the cause")
	}
	if cfg.Keymap != "us" {
		t.Errorf("broken config did not fall back to defaults: %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, `{"card": "/dev/dri/card1"}`)
	t.Setenv("TATAMI_CARD", "/dev/dri/card2")
	t.Setenv("TATAMI_SOCKET", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Card != "/dev/dri/card2" {
		t.Errorf("env override lost: %q", cfg.Card)
	}
	if cfg.Socket != 3 || cfg.SocketName() != "wayland-3" {
		t.Errorf("socket = %d (%q)", cfg.Socket, cfg.SocketName())
	}
}
