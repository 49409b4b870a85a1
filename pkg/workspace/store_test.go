package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/previewkit/previewd/config"
	"github.com/previewkit/previewd/errors"
	"github.com/previewkit/previewd/testutil"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg config.SessionsConfig) *Store {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = filepath.Join(t.TempDir(), "sessions")
	}
	store, err := NewStore(cfg)
	require.NoError(t, err)
	return store
}

func TestCreateFiltersSourceTree(t *testing.T) {
	source := testutil.SourceTree(t)
	store := newTestStore(t, config.SessionsConfig{})

	ws, err := store.Create(source)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(ws.RootPath, WorkspaceDirName), ws.Path)
	require.Equal(t, source, ws.SourcePath)

	// Only the real source files survive the copy.
	require.True(t, testutil.FileExists(filepath.Join(ws.Path, "foo.ts")))
	require.True(t, testutil.FileExists(filepath.Join(ws.Path, "screens", "Home.tsx")))
	require.False(t, testutil.FileExists(filepath.Join(ws.Path, "foo.test.ts")))
	require.False(t, testutil.FileExists(filepath.Join(ws.Path, ".DS_Store")))
	require.False(t, testutil.FileExists(filepath.Join(ws.Path, "deps")))
	require.False(t, testutil.FileExists(filepath.Join(ws.Path, "node_modules")))
}

func TestCreateSourceNotFound(t *testing.T) {
	store := newTestStore(t, config.SessionsConfig{})

	_, err := store.Create(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeSourceNotFound, errors.GetCode(err))
}

func TestCreateCopiesSharedAssets(t *testing.T) {
	source := testutil.SourceTree(t)
	assets := filepath.Join(filepath.Dir(source), "shared-assets")
	testutil.WriteTree(t, assets, map[string]string{
		"logo.png":     "png",
		"logo.test.ts": "excluded here too",
	})

	store := newTestStore(t, config.SessionsConfig{
		SharedAssetDirs: []string{"shared-assets", "not-there"},
	})

	ws, err := store.Create(source)
	require.NoError(t, err)

	require.True(t, testutil.FileExists(filepath.Join(ws.Path, "shared-assets", "logo.png")))
	// Exclusion rules apply to asset directories as well.
	require.False(t, testutil.FileExists(filepath.Join(ws.Path, "shared-assets", "logo.test.ts")))
	// A missing asset directory is a skip, not an error.
	require.False(t, testutil.FileExists(filepath.Join(ws.Path, "not-there")))
}

func TestRemoveIsIdempotent(t *testing.T) {
	source := testutil.SourceTree(t)
	store := newTestStore(t, config.SessionsConfig{})

	ws, err := store.Create(source)
	require.NoError(t, err)

	require.NoError(t, store.Remove(ws.RootPath))
	require.False(t, testutil.FileExists(ws.RootPath))

	// Already gone: logged, not an error.
	require.NoError(t, store.Remove(ws.RootPath))
}

func TestCreateDistinctIDs(t *testing.T) {
	source := testutil.SourceTree(t)
	store := newTestStore(t, config.SessionsConfig{})

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		ws, err := store.Create(source)
		require.NoError(t, err)
		require.False(t, seen[ws.ID], "duplicate session id %s", ws.ID)
		seen[ws.ID] = true
	}

	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	require.Len(t, entries, 20)
}
