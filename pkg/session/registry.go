package session

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/previewkit/previewd/errors"
	"github.com/previewkit/previewd/logging"
	"github.com/previewkit/previewd/pkg/watcher"
	"github.com/previewkit/previewd/pkg/workspace"
	"github.com/sirupsen/logrus"
)

// Registry is the authoritative in-memory catalog of live sessions. It
// is the single owner of session metadata: the workspace store only
// executes operations the registry asks for, and the watch binder's
// per-session ownership table is driven exclusively through Watch and
// Unwatch here.
type Registry struct {
	mu       sync.Mutex
	store    *workspace.Store
	binder   *watcher.Binder
	sessions map[string]*Session
	logger   *logrus.Entry
}

// NewRegistry creates an empty registry over the given store and binder.
func NewRegistry(store *workspace.Store, binder *watcher.Binder) *Registry {
	return &Registry{
		store:    store,
		binder:   binder,
		sessions: make(map[string]*Session),
		logger:   logging.NewLogger("sessions"),
	}
}

// Recover repopulates the registry from session directories still
// present under the store root after a restart. Directories matching the
// session-id convention that still contain a workspace subdirectory are
// reconstructed without re-copying; the rest are silently skipped.
// Returns the number of sessions recovered.
func (r *Registry) Recover() (int, error) {
	entries, err := os.ReadDir(r.store.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	recovered := 0
	for _, entry := range entries {
		if !entry.IsDir() || !workspace.IsSessionID(entry.Name()) {
			continue
		}

		id := entry.Name()
		rootPath := filepath.Join(r.store.Root(), id)
		workspacePath := filepath.Join(rootPath, workspace.WorkspaceDirName)
		if info, statErr := os.Stat(workspacePath); statErr != nil || !info.IsDir() {
			// Already cleaned up, or never finished creating.
			continue
		}

		createdAt, _ := workspace.SessionTime(id)

		r.mu.Lock()
		r.sessions[id] = &Session{
			ID:            id,
			RootPath:      rootPath,
			WorkspacePath: workspacePath,
			CreatedAt:     createdAt,
		}
		r.mu.Unlock()
		recovered++
	}

	if recovered > 0 {
		r.logger.WithField("count", recovered).Info("Recovered sessions from disk")
	}
	return recovered, nil
}

// Create copies sourcePath into a new workspace and registers the
// resulting session. A copy that fails partway is removed before the
// error is returned.
func (r *Registry) Create(sourcePath string) (*Session, error) {
	ws, err := r.store.Create(sourcePath)
	if err != nil {
		r.cleanupPartial(err)
		return nil, err
	}

	sess := &Session{
		ID:            ws.ID,
		RootPath:      ws.RootPath,
		WorkspacePath: ws.Path,
		SourcePath:    ws.SourcePath,
		CreatedAt:     ws.CreatedAt,
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	return sess, nil
}

// cleanupPartial removes the invalid remains of a copy that failed
// partway through.
func (r *Registry) cleanupPartial(err error) {
	if errors.GetCode(err) != errors.ErrCodePartialCopy {
		return
	}
	previewErr, ok := err.(*errors.PreviewError)
	if !ok {
		return
	}
	wsPath, ok := previewErr.Details["workspacePath"].(string)
	if !ok || wsPath == "" {
		return
	}
	if removeErr := r.store.Remove(filepath.Dir(wsPath)); removeErr != nil {
		r.logger.Warnf("Failed to clean up partial workspace: %v", removeErr)
	}
}

// Get returns the session with the given id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	return sess, nil
}

// List returns every tracked session, newest first.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		return moreRecent(out[i], out[j])
	})
	return out
}

// MostRecent returns the most recently created session, or nil when the
// registry is empty. Creation-timestamp collisions are broken by
// comparing the full id (its random suffix), so the order is total.
func (r *Registry) MostRecent() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Session
	for _, sess := range r.sessions {
		if best == nil || moreRecent(sess, best) {
			best = sess
		}
	}
	return best
}

func moreRecent(a, b *Session) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// Watch attaches the file watch for a session, replacing any existing
// subscription for it, and delivers normalized change events to onChange.
func (r *Registry) Watch(id string, onChange func(watcher.Event)) error {
	sess, err := r.Get(id)
	if err != nil {
		return err
	}
	return r.binder.Start(sess.ID, sess.WorkspacePath, onChange)
}

// Unwatch releases a session's file watch if one is active.
func (r *Registry) Unwatch(id string) {
	r.binder.Stop(id)
}

// Watching reports whether a session has an active file watch.
func (r *Registry) Watching(id string) bool {
	return r.binder.Active(id)
}

// WatchMostRecent resumes live-reload on the most recently created
// session, typically right after startup recovery. It is a no-op when
// the registry is empty.
func (r *Registry) WatchMostRecent(onChange func(watcher.Event)) error {
	sess := r.MostRecent()
	if sess == nil {
		return nil
	}
	return r.Watch(sess.ID, onChange)
}

// Delete stops the session's watcher, removes its workspace from disk,
// and drops it from the registry. Returns SESSION_NOT_FOUND for an
// unknown id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return errors.SessionNotFound(id)
	}

	r.binder.Stop(id)

	if err := r.store.Remove(sess.RootPath); err != nil {
		return err
	}

	r.logger.WithField("session", id).Info("Deleted session")
	return nil
}

// DeleteAll deletes every tracked session and reports a per-session
// outcome. Individual failures do not abort the sweep.
func (r *Registry) DeleteAll() []DeleteOutcome {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	outcomes := make([]DeleteOutcome, 0, len(ids))
	for _, id := range ids {
		err := r.Delete(id)
		if err != nil {
			r.logger.WithField("session", id).Warnf("Delete failed: %v", err)
		}
		outcomes = append(outcomes, DeleteOutcome{SessionID: id, Err: err})
	}
	return outcomes
}

// StatsAt computes registry statistics relative to the given "now".
func (r *Registry) StatsAt(now time.Time) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{Count: len(r.sessions)}
	if stats.Count == 0 {
		return stats
	}

	var totalAge time.Duration
	for _, sess := range r.sessions {
		if stats.Oldest.IsZero() || sess.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = sess.CreatedAt
		}
		if sess.CreatedAt.After(stats.Newest) {
			stats.Newest = sess.CreatedAt
		}
		totalAge += sess.Age(now)
	}
	stats.AverageAge = totalAge / time.Duration(stats.Count)
	return stats
}

// Stats computes registry statistics as of the current time.
func (r *Registry) Stats() Stats {
	return r.StatsAt(time.Now())
}
