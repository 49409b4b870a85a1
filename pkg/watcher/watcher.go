// Package watcher attaches filesystem watches to session workspaces and
// translates raw fsnotify events into normalized change notifications.
//
// All active watches live in a single ownership table keyed by session
// id, so a session can never have more than one live subscription:
// starting a watch for a session that already has one stops the old
// subscription first.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/previewkit/previewd/errors"
	"github.com/previewkit/previewd/logging"
	"github.com/sirupsen/logrus"
)

// Event is a normalized file-change notification.
type Event struct {
	SessionID    string    `json:"sessionId"`
	RelativePath string    `json:"relativePath"`
	AbsolutePath string    `json:"absolutePath"`
	Timestamp    time.Time `json:"timestamp"`
}

// watch is one live fsnotify subscription.
type watch struct {
	fs       *fsnotify.Watcher
	root     string
	done     chan struct{}
	lastSeen map[string]time.Time
}

// Binder owns every active watch. Safe for concurrent use.
type Binder struct {
	mu       sync.Mutex
	active   map[string]*watch
	debounce time.Duration
	logger   *logrus.Entry
}

// New creates a Binder. Events for the same file arriving within the
// debounce window are collapsed into one notification.
func New(debounce time.Duration) *Binder {
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &Binder{
		active:   make(map[string]*watch),
		debounce: debounce,
		logger:   logging.NewLogger("watcher"),
	}
}

// Start attaches a watch to workspacePath for the given session and
// invokes onChange for every file modification under it. Dotfiles are
// ignored. If the session already has an active watch it is stopped
// first, so Start is safe to call repeatedly.
func (b *Binder) Start(sessionID, workspacePath string, onChange func(Event)) error {
	b.Stop(sessionID)

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WatchAttach(sessionID, err)
	}

	// fsnotify watches are not recursive: register the workspace root
	// and every existing subdirectory, then pick up new ones from
	// create events as they appear.
	err = filepath.WalkDir(workspacePath, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if rel, relErr := filepath.Rel(workspacePath, path); relErr == nil && isDotPath(rel) {
			return filepath.SkipDir
		}
		return fs.Add(path)
	})
	if err != nil {
		fs.Close()
		return errors.WatchAttach(sessionID, err)
	}

	w := &watch{
		fs:       fs,
		root:     workspacePath,
		done:     make(chan struct{}),
		lastSeen: make(map[string]time.Time),
	}

	b.mu.Lock()
	b.active[sessionID] = w
	b.mu.Unlock()

	go b.run(sessionID, w, onChange)

	b.logger.WithFields(logrus.Fields{
		"session": sessionID,
		"path":    workspacePath,
	}).Info("Watching workspace")

	return nil
}

// Stop releases the watch held for a session. Calling it for a session
// with no active watch is a no-op.
func (b *Binder) Stop(sessionID string) {
	b.mu.Lock()
	w, ok := b.active[sessionID]
	if ok {
		delete(b.active, sessionID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}

	close(w.done)
	w.fs.Close()
	b.logger.WithField("session", sessionID).Info("Stopped watching")
}

// Active reports whether a session currently has a live watch.
func (b *Binder) Active(sessionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.active[sessionID]
	return ok
}

// Close stops every active watch.
func (b *Binder) Close() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.active))
	for id := range b.active {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Stop(id)
	}
}

// run drains fsnotify events for one watch. A single goroutine per
// session keeps events for the same file in modification order.
func (b *Binder) run(sessionID string, w *watch, onChange func(Event)) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			b.handleEvent(sessionID, w, event, onChange)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			b.logger.WithField("session", sessionID).Errorf("Watcher error: %v", err)
		}
	}
}

func (b *Binder) handleEvent(sessionID string, w *watch, event fsnotify.Event, onChange func(Event)) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || isDotPath(rel) {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
			if addErr := w.fs.Add(event.Name); addErr != nil {
				b.logger.WithField("session", sessionID).Warnf("Failed to watch new directory %s: %v", rel, addErr)
			}
			return
		}
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	// Drop expired debounce entries so state for deleted or renamed
	// files does not accumulate over the life of the watch.
	now := time.Now()
	for name, last := range w.lastSeen {
		if now.Sub(last) >= b.debounce {
			delete(w.lastSeen, name)
		}
	}
	if _, ok := w.lastSeen[event.Name]; ok {
		return
	}
	w.lastSeen[event.Name] = now

	onChange(Event{
		SessionID:    sessionID,
		RelativePath: rel,
		AbsolutePath: event.Name,
		Timestamp:    now,
	})
}

// isDotPath reports whether any segment of a relative path is a dotfile.
func isDotPath(rel string) bool {
	for _, segment := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(segment, ".") {
			return true
		}
	}
	return false
}
