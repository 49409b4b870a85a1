package config

import (
	"os"
	"path/filepath"

	"github.com/previewkit/previewd/pkg/paths"
	"gopkg.in/yaml.v3"
)

const configFileName = "previewd.yml"

// Load reads the configuration from the given path. When path is empty it
// searches for previewd.yml starting at the current directory and walking
// up, then falls back to the XDG config dir; if no file is found the
// defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := findConfigFile()
		if err != nil {
			return Default(), nil
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return cfg, nil
}

// FindConfigFile searches for previewd.yml starting at dir and walking up
// to the filesystem root.
func FindConfigFile(dir string) (string, error) {
	for {
		candidate := filepath.Join(dir, configFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

func findConfigFile() (string, error) {
	cwd, err := os.Getwd()
	if err == nil {
		if found, err := FindConfigFile(cwd); err == nil {
			return found, nil
		}
	}

	// Fall back to the XDG config directory
	xdgCandidate := filepath.Join(paths.ConfigDir(), configFileName)
	if _, err := os.Stat(xdgCandidate); err == nil {
		return xdgCandidate, nil
	}

	return "", os.ErrNotExist
}
