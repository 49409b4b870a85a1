package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/previewkit/previewd/config"
	"github.com/previewkit/previewd/errors"
	"github.com/previewkit/previewd/pkg/watcher"
	"github.com/previewkit/previewd/pkg/workspace"
	"github.com/previewkit/previewd/testutil"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T, root string) *Registry {
	t.Helper()
	if root == "" {
		root = filepath.Join(t.TempDir(), "sessions")
	}
	store, err := workspace.NewStore(config.SessionsConfig{Root: root})
	require.NoError(t, err)

	binder := watcher.New(0)
	t.Cleanup(binder.Close)

	return NewRegistry(store, binder)
}

func TestCreateAndGet(t *testing.T) {
	source := testutil.SourceTree(t)
	reg := newTestRegistry(t, "")

	created, err := reg.Create(source)
	require.NoError(t, err)
	require.True(t, testutil.FileExists(created.WorkspacePath))

	got, err := reg.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, created, got)
}

func TestGetUnknownID(t *testing.T) {
	reg := newTestRegistry(t, "")

	_, err := reg.Get("sess-1700000000000-deadbeef")
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeSessionNotFound, errors.GetCode(err))
}

func TestDeleteRemovesWorkspace(t *testing.T) {
	source := testutil.SourceTree(t)
	reg := newTestRegistry(t, "")

	sess, err := reg.Create(source)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(sess.ID))

	_, err = reg.Get(sess.ID)
	require.Equal(t, errors.ErrCodeSessionNotFound, errors.GetCode(err))
	require.False(t, testutil.FileExists(sess.RootPath))

	// Deleting again reports not found, which is not fatal to callers.
	err = reg.Delete(sess.ID)
	require.Equal(t, errors.ErrCodeSessionNotFound, errors.GetCode(err))
}

func TestDeleteAllReportsOutcomes(t *testing.T) {
	source := testutil.SourceTree(t)
	reg := newTestRegistry(t, "")

	for i := 0; i < 3; i++ {
		_, err := reg.Create(source)
		require.NoError(t, err)
	}

	outcomes := reg.DeleteAll()
	require.Len(t, outcomes, 3)
	for _, outcome := range outcomes {
		require.NoError(t, outcome.Err)
	}
	require.Empty(t, reg.List())
}

func TestMostRecent(t *testing.T) {
	source := testutil.SourceTree(t)
	reg := newTestRegistry(t, "")

	require.Nil(t, reg.MostRecent())

	first, err := reg.Create(source)
	require.NoError(t, err)
	second, err := reg.Create(source)
	require.NoError(t, err)

	// Force distinct creation times regardless of clock resolution.
	first.CreatedAt = time.UnixMilli(100)
	second.CreatedAt = time.UnixMilli(300)
	require.Equal(t, second.ID, reg.MostRecent().ID)

	// After deleting everything and creating fresh, no stale reference
	// is returned.
	for _, outcome := range reg.DeleteAll() {
		require.NoError(t, outcome.Err)
	}
	third, err := reg.Create(source)
	require.NoError(t, err)
	require.Equal(t, third.ID, reg.MostRecent().ID)
}

func TestMostRecentTieBreak(t *testing.T) {
	source := testutil.SourceTree(t)
	reg := newTestRegistry(t, "")

	a, err := reg.Create(source)
	require.NoError(t, err)
	b, err := reg.Create(source)
	require.NoError(t, err)

	same := time.UnixMilli(500)
	a.CreatedAt = same
	b.CreatedAt = same

	want := a.ID
	if b.ID > a.ID {
		want = b.ID
	}
	require.Equal(t, want, reg.MostRecent().ID)
}

func TestStatsAt(t *testing.T) {
	source := testutil.SourceTree(t)
	reg := newTestRegistry(t, "")

	require.Equal(t, Stats{}, reg.StatsAt(time.UnixMilli(400)))

	a, err := reg.Create(source)
	require.NoError(t, err)
	b, err := reg.Create(source)
	require.NoError(t, err)

	a.CreatedAt = time.UnixMilli(100)
	b.CreatedAt = time.UnixMilli(300)

	stats := reg.StatsAt(time.UnixMilli(400))
	require.Equal(t, 2, stats.Count)
	require.Equal(t, time.UnixMilli(100), stats.Oldest)
	require.Equal(t, time.UnixMilli(300), stats.Newest)
	require.Equal(t, 200*time.Millisecond, stats.AverageAge)
}

func TestRecoverFromDisk(t *testing.T) {
	source := testutil.SourceTree(t)
	root := filepath.Join(t.TempDir(), "sessions")

	first := newTestRegistry(t, root)
	sessA, err := first.Create(source)
	require.NoError(t, err)
	sessB, err := first.Create(source)
	require.NoError(t, err)

	// A session whose workspace directory is gone is skipped silently.
	store, err := workspace.NewStore(config.SessionsConfig{Root: root})
	require.NoError(t, err)
	require.NoError(t, store.Remove(sessB.RootPath))

	second := newTestRegistry(t, root)
	recovered, err := second.Recover()
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	got, err := second.Get(sessA.ID)
	require.NoError(t, err)
	require.Equal(t, sessA.WorkspacePath, got.WorkspacePath)
	require.True(t, sessA.CreatedAt.Equal(got.CreatedAt))
}

func TestWatchLifecycle(t *testing.T) {
	source := testutil.SourceTree(t)
	reg := newTestRegistry(t, "")

	sess, err := reg.Create(source)
	require.NoError(t, err)
	require.False(t, reg.Watching(sess.ID))

	require.NoError(t, reg.Watch(sess.ID, func(watcher.Event) {}))
	require.True(t, reg.Watching(sess.ID))

	// Re-attaching replaces the old subscription instead of stacking.
	require.NoError(t, reg.Watch(sess.ID, func(watcher.Event) {}))
	require.True(t, reg.Watching(sess.ID))

	// Delete stops the watcher along with everything else.
	require.NoError(t, reg.Delete(sess.ID))
	require.False(t, reg.Watching(sess.ID))
}
