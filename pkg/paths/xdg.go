// Package paths provides XDG-compliant path resolution for previewd.
//
// Resolution order:
// 1. PREVIEWD_HOME (portable root) → $PREVIEWD_HOME/{config,data,state}
// 2. XDG env vars → $XDG_*_HOME/previewd
// 3. Platform defaults → ~/.config/previewd, ~/.local/share/previewd, etc.
package paths

import (
	"os"
	"path/filepath"
)

// getConfigHome returns the base config home directory.
func getConfigHome() string {
	if home := os.Getenv("PREVIEWD_HOME"); home != "" {
		return filepath.Join(home, "config")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".config")
	}
	return ""
}

// getDataHome returns the base data home directory.
func getDataHome() string {
	if home := os.Getenv("PREVIEWD_HOME"); home != "" {
		return filepath.Join(home, "data")
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "share")
	}
	return ""
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if home := os.Getenv("PREVIEWD_HOME"); home != "" {
		return filepath.Join(home, "state")
	}
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".local", "state")
	}
	return ""
}

// ConfigDir returns the previewd config directory.
func ConfigDir() string {
	return filepath.Join(getConfigHome(), "previewd")
}

// DataDir returns the previewd data directory.
func DataDir() string {
	return filepath.Join(getDataHome(), "previewd")
}

// StateDir returns the previewd state directory (logs, runtime state).
func StateDir() string {
	return filepath.Join(getStateHome(), "previewd")
}

// SessionsRoot returns the default directory that holds one subdirectory
// per preview session.
func SessionsRoot() string {
	return filepath.Join(DataDir(), "sessions")
}

// LogDir returns the directory for previewd log files.
func LogDir() string {
	return filepath.Join(StateDir(), "logs")
}
