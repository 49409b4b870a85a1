package hub

import (
	"encoding/json"
	"time"
)

// Inbound message types (client → server).
const (
	MsgJoinSession   = "join-session"
	MsgWatchScreen   = "watch-screen"
	MsgRequestReload = "request-screen-reload"
)

// Outbound event types (server → client).
const (
	EvtSessionJoined     = "session-joined"
	EvtScreenWatchStart  = "screen-watch-started"
	EvtReloadRequested   = "screen-reload-requested"
	EvtReloadRequestSent = "screen-reload-request-sent"
	EvtScreenHotReload   = "screen-hot-reload"
	EvtScreenUpdated     = "screen-updated"
	EvtScreenInjection   = "screen-injection"
	EvtNavigationUpdate  = "navigation-update"
	EvtSessionMessage    = "session-message"
	EvtError             = "error"
)

// Features enumerated in the join acknowledgment.
var sessionFeatures = []string{"hot-reload", "injection", "navigation-update", "realtime-sync"}

// Inbound is the envelope for every client request.
type Inbound struct {
	Type       string `json:"type"`
	SessionID  string `json:"sessionId"`
	ScreenID   string `json:"screenId,omitempty"`
	ClientType string `json:"clientType,omitempty"`
}

// SessionJoined acknowledges a successful join to the requester.
type SessionJoined struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	Message   string    `json:"message"`
	Features  []string  `json:"features"`
	Timestamp time.Time `json:"timestamp"`
}

// ScreenWatchStarted acknowledges a watch-screen request.
type ScreenWatchStarted struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	ScreenID  string    `json:"screenId"`
	Timestamp time.Time `json:"timestamp"`
}

// ReloadRequest is sent to session peers when a client asks for a
// reload, and echoed back to the requester under a different type tag.
type ReloadRequest struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId"`
	ScreenID  string    `json:"screenId"`
	Timestamp time.Time `json:"timestamp"`
}

// ScreenUpdate carries a server-initiated hot reload. The same shape is
// sent as screen-hot-reload to the session room and screen-updated to
// the narrower screen room.
type ScreenUpdate struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId"`
	ScreenID  string      `json:"screenId"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
}

// ScreenInjection carries an opaque screen definition owned by the
// bundle-loading collaborator.
type ScreenInjection struct {
	Type             string      `json:"type"`
	SessionID        string      `json:"sessionId"`
	ScreenDefinition interface{} `json:"screenDefinition"`
	Timestamp        time.Time   `json:"timestamp"`
	Source           string      `json:"source"`
}

// NavigationUpdate carries an opaque navigation configuration.
type NavigationUpdate struct {
	Type             string      `json:"type"`
	SessionID        string      `json:"sessionId"`
	NavigationConfig interface{} `json:"navigationConfig"`
	Timestamp        time.Time   `json:"timestamp"`
	Source           string      `json:"source"`
}

// SessionMessage is a free-form notice to everyone in a session.
type SessionMessage struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"sessionId"`
	Message     string    `json:"message"`
	MessageType string    `json:"messageType"`
	Timestamp   time.Time `json:"timestamp"`
	Source      string    `json:"source"`
}

// ErrorEvent is a scoped error reply to a single connection. It never
// terminates the connection.
type ErrorEvent struct {
	Type      string    `json:"type"`
	ErrorType string    `json:"errorType"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomKey identifies a broadcast group. A zero ScreenID addresses the
// whole session; a non-zero one addresses the listeners of a single
// screen within it. Modeling the key as a struct rather than a formatted
// string rules out collisions between ids containing separators.
type RoomKey struct {
	SessionID string
	ScreenID  string
}

// SessionRoom returns the key for a session-wide group.
func SessionRoom(sessionID string) RoomKey {
	return RoomKey{SessionID: sessionID}
}

// ScreenRoom returns the key for a screen-scoped group.
func ScreenRoom(sessionID, screenID string) RoomKey {
	return RoomKey{SessionID: sessionID, ScreenID: screenID}
}

func marshal(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}
