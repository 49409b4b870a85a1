package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, configFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "sessions:\n  root: /tmp/preview-sessions\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/preview-sessions", cfg.Sessions.Root)
	require.Equal(t, ":8790", cfg.Server.Addr)
	require.Equal(t, 100, cfg.Watcher.DebounceMs)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server:
  addr: ":9000"
sessions:
  root: /var/lib/previewd/sessions
  exclude_patterns:
    - "**/*.snap"
    - generated
  shared_asset_dirs:
    - shared-assets
watcher:
  debounce_ms: 250
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, []string{"**/*.snap", "generated"}, cfg.Sessions.ExcludePatterns)
	require.Equal(t, []string{"shared-assets"}, cfg.Sessions.SharedAssetDirs)
	require.Equal(t, 250, cfg.Watcher.DebounceMs)
}

func TestUnmarshalExtension(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
logging:
  level: debug
  format:
    preset: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	var logCfg struct {
		Level  string `yaml:"level"`
		Format struct {
			Preset string `yaml:"preset"`
		} `yaml:"format"`
	}
	require.NoError(t, cfg.UnmarshalExtension("logging", &logCfg))
	require.Equal(t, "debug", logCfg.Level)
	require.Equal(t, "json", logCfg.Format.Preset)

	// A missing extension leaves the target zero-valued.
	var other struct {
		X string `yaml:"x"`
	}
	require.NoError(t, cfg.UnmarshalExtension("does-not-exist", &other))
	require.Empty(t, other.X)
}

func TestFindConfigFileWalksUp(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "server:\n  addr: \":9999\"\n")

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := FindConfigFile(nested)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, configFileName), found)
}

func TestFindConfigFileMissing(t *testing.T) {
	_, err := FindConfigFile(t.TempDir())
	require.Error(t, err)
}
