package errors

import (
	"fmt"
)

// SourceNotFound creates an error for a missing copy source
func SourceNotFound(path string) *PreviewError {
	return New(ErrCodeSourceNotFound, fmt.Sprintf("source directory not found: %s", path)).
		WithDetail("path", path)
}

// SessionNotFound creates an error for an unknown session id
func SessionNotFound(id string) *PreviewError {
	return New(ErrCodeSessionNotFound, fmt.Sprintf("session '%s' not found", id)).
		WithDetail("sessionId", id)
}

// PartialCopy wraps an I/O error that interrupted a workspace copy.
// The workspace left behind must be treated as invalid and removed.
func PartialCopy(workspacePath string, err error) *PreviewError {
	return Wrap(err, ErrCodePartialCopy,
		fmt.Sprintf("workspace copy failed partway: %s", workspacePath)).
		WithDetail("workspacePath", workspacePath)
}

// WatchAttach wraps an OS watch-subscription failure. The session stays
// usable without live reload.
func WatchAttach(sessionID string, err error) *PreviewError {
	return Wrap(err, ErrCodeWatchAttach,
		fmt.Sprintf("failed to attach file watch for session '%s'", sessionID)).
		WithDetail("sessionId", sessionID)
}

// Protocol creates an error for a malformed realtime request
func Protocol(reason string) *PreviewError {
	return New(ErrCodeProtocol, fmt.Sprintf("malformed realtime request: %s", reason))
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *PreviewError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}
