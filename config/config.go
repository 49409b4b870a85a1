// Package config loads and validates previewd.yml.
package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/previewkit/previewd/pkg/paths"
)

// Config is the root configuration for the previewd daemon.
type Config struct {
	// Server configures the HTTP/websocket listener.
	Server ServerConfig `yaml:"server"`

	// Sessions configures session workspace creation and storage.
	Sessions SessionsConfig `yaml:"sessions"`

	// Watcher configures the per-session filesystem watcher.
	Watcher WatcherConfig `yaml:"watcher"`

	// Extensions holds tool-specific sections (e.g. "logging") that are
	// decoded on demand with UnmarshalExtension.
	Extensions map[string]interface{} `yaml:",inline"`
}

// ServerConfig configures the network listener.
type ServerConfig struct {
	// Addr is the host:port to listen on. Preview clients are remote
	// devices, so this defaults to all interfaces.
	Addr string `yaml:"addr"`
}

// SessionsConfig configures workspace creation.
type SessionsConfig struct {
	// Root is the directory that holds one subdirectory per session.
	// Defaults to the XDG data dir.
	Root string `yaml:"root"`

	// ExcludePatterns are evaluated against each path relative to the
	// copy source. Supports exact substring matches and glob-style
	// wildcards. Merged with the built-in defaults (tests, dotfiles,
	// dependency directories).
	ExcludePatterns []string `yaml:"exclude_patterns"`

	// SharedAssetDirs are sibling directories of the copy source that
	// are also copied into each workspace when present. A missing
	// directory is skipped, not an error.
	SharedAssetDirs []string `yaml:"shared_asset_dirs"`
}

// WatcherConfig configures file-change delivery.
type WatcherConfig struct {
	// DebounceMs suppresses repeat events for the same file arriving
	// within this window. Defaults to 100.
	DebounceMs int `yaml:"debounce_ms"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8790"},
		Sessions: SessionsConfig{Root: paths.SessionsRoot()},
		Watcher:  WatcherConfig{DebounceMs: 100},
	}
}

// applyDefaults fills zero-valued fields after unmarshalling.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8790"
	}
	if c.Sessions.Root == "" {
		c.Sessions.Root = paths.SessionsRoot()
	}
	if c.Watcher.DebounceMs <= 0 {
		c.Watcher.DebounceMs = 100
	}
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded previewd.yml into the provided target struct. The target must be
// a pointer. This provides a type-safe way for subsystems to access their
// custom configuration sections.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	// Use mapstructure to decode the generic map[string]interface{}
	// into the strongly-typed target struct, matching on yaml tags.
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
