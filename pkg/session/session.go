// Package session tracks live preview sessions: isolated, disposable
// copies of an application source tree plus their file-watch state.
package session

import (
	"time"
)

// Session is one isolated copy of a source tree.
type Session struct {
	// ID is an opaque unique token, also used as the directory name
	// under the sessions root and as the broadcast room key.
	ID string `json:"id"`

	// RootPath is the session's private directory, destroyed with the
	// session.
	RootPath string `json:"rootPath"`

	// WorkspacePath is the filtered copy of the source tree under
	// RootPath.
	WorkspacePath string `json:"workspacePath"`

	// SourcePath is the original tree the workspace was copied from.
	// Empty for sessions recovered from disk after a restart.
	SourcePath string `json:"sourcePath,omitempty"`

	// CreatedAt is the creation time, parsed back out of the id for
	// recovered sessions.
	CreatedAt time.Time `json:"createdAt"`
}

// Age returns how long the session has existed as of now.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// Stats is a point-in-time summary over the registry, computed freshly
// on each call.
type Stats struct {
	Count      int           `json:"count"`
	Oldest     time.Time     `json:"oldest,omitzero"`
	Newest     time.Time     `json:"newest,omitzero"`
	AverageAge time.Duration `json:"averageAge"`
}

// DeleteOutcome reports the result of deleting one session during a
// bulk delete.
type DeleteOutcome struct {
	SessionID string `json:"sessionId"`
	Err       error  `json:"-"`
}
