// Package config loads the compositor configuration: defaults, then
// $HOME/.config/tatami/config.json, then TATAMI_* environment overrides.
// A watcher can report file changes so the keymap swaps at runtime.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every user-settable knob.
type Config struct {
	// Keymap is the xkb layout name.
	Keymap string `json:"keymap" envconfig:"KEYMAP"`

	// Card is the DRM device path.
	Card string `json:"card" envconfig:"CARD"`

	// Socket is the wayland-<n> socket index.
	Socket int `json:"socket" envconfig:"SOCKET"`

	// LogLevel selects the zerolog level by name.
	LogLevel string `json:"log_level" envconfig:"LOG_LEVEL"`

	// Terminal is the command bound to the spawn hotkey.
	Terminal string `json:"terminal" envconfig:"TERMINAL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Keymap:   "us",
		Card:     "/dev/dri/card0",
		Socket:   1,
		LogLevel: "info",
		Terminal: "foot",
	}
}

// Path returns the config file location under the user's home.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: no home directory: %w", err)
	}
	return filepath.Join(home, ".config", "tatami", "config.json"), nil
}

// Load reads the file and applies environment overrides. A missing file is
// not an error; an unreadable or invalid one falls back to defaults and
// reports the cause so the caller can log it.
func Load() (Config, error) {
	cfg := Default()

	var loadErr error
	if path, err := Path(); err == nil {
		if data, err := os.ReadFile(path); err == nil {
			if err := json.Unmarshal(data, &cfg); err != nil {
				cfg = Default()
				loadErr = fmt.Errorf("config: invalid %s: %w", path, err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			loadErr = fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := envconfig.Process("tatami", &cfg); err != nil {
		return cfg, fmt.Errorf("config: environment: %w", err)
	}
	return cfg, loadErr
}

// SocketName returns the wayland-<n> socket name for the configured index.
func (c Config) SocketName() string {
	return fmt.Sprintf("wayland-%d", c.Socket)
}

// Watch reports fresh configurations whenever the config file changes.
// The watcher stops when the returned closer runs.
func Watch(onChange func(Config)) (func(), error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watcher: %w", err)
	}

	// Watch the directory: editors replace the file rather than write it
	// in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if cfg, err := Load(); err == nil {
					onChange(cfg)
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return func() { _ = watcher.Close() }, nil
}
