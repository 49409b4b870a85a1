// Package hub manages live preview-client connections and fans reload,
// injection, and navigation events out to session- and screen-scoped
// broadcast groups.
//
// Room membership is connection-driven: deleting a session does not drop
// its connections, and broadcasts for a deleted session id keep reaching
// connections that joined it until they disconnect on their own.
package hub

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/previewkit/previewd/logging"
	"github.com/sirupsen/logrus"
)

// activityWindow is how recently a connection must have sent a request
// to count as "active" in Stats.
const activityWindow = 5 * time.Minute

// listenerKey identifies one screen subscription of one connection.
// Session id is part of the key, so same-named screens in different
// sessions are distinct subscriptions.
type listenerKey struct {
	connID    string
	sessionID string
	screenID  string
}

// Stats is a point-in-time summary over the hub, computed fresh per call.
type Stats struct {
	TotalConnections   int            `json:"totalConnections"`
	ActiveConnections  int            `json:"activeConnections"`
	ScreenListeners    int            `json:"screenListeners"`
	SessionConnections map[string]int `json:"sessionConnections"`
}

// Hub owns all connection and listener state. It never touches the
// filesystem; session lifecycle lives in the registry.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	rooms     map[RoomKey]map[string]*Client
	listeners map[listenerKey]struct{}
	logger    *logrus.Entry
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		rooms:     make(map[RoomKey]map[string]*Client),
		listeners: make(map[listenerKey]struct{}),
		logger:    logging.NewLogger("hub"),
	}
}

// Register wraps a websocket connection in a Client and starts its write
// pump. The caller owns the read loop and must route each inbound frame
// through HandleInbound, then call Disconnect when the read loop ends.
func (h *Hub) Register(conn *websocket.Conn) *Client {
	c := newClient(newConnID(), conn)

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.logger.WithField("conn", c.id).Debug("Connection registered")
	return c
}

func newConnID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("conn-%d", time.Now().UnixNano())
	}
	return "conn-" + hex.EncodeToString(buf)
}

// HandleInbound parses and dispatches one client frame. A malformed
// request is answered with a scoped error event; it never terminates the
// connection or affects other connections.
func (h *Hub) HandleInbound(connID string, data []byte) {
	h.touch(connID)

	var req Inbound
	if err := json.Unmarshal(data, &req); err != nil {
		h.sendError(connID, "protocol-error", "invalid message format")
		return
	}

	switch req.Type {
	case MsgJoinSession:
		h.Join(connID, req.SessionID, req.ClientType)
	case MsgWatchScreen:
		if req.SessionID == "" || req.ScreenID == "" {
			h.sendError(connID, "protocol-error", "watch-screen requires sessionId and screenId")
			return
		}
		h.WatchScreen(connID, req.SessionID, req.ScreenID)
	case MsgRequestReload:
		if req.SessionID == "" || req.ScreenID == "" {
			h.sendError(connID, "protocol-error", "request-screen-reload requires sessionId and screenId")
			return
		}
		h.RequestReload(connID, req.SessionID, req.ScreenID)
	default:
		h.sendError(connID, "protocol-error", fmt.Sprintf("unknown message type %q", req.Type))
	}
}

// Join attaches a connection to a session group. Re-joining the same
// session updates clientType and joinedAt rather than erroring; joining
// a different session moves the connection, dropping its old group and
// screen memberships. The requester receives a session-joined
// acknowledgment, or a scoped session-join-error on failure.
func (h *Hub) Join(connID, sessionID, clientType string) {
	if sessionID == "" {
		h.sendError(connID, "session-join-error", "join-session requires sessionId")
		return
	}

	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		h.logger.WithField("conn", connID).Warn("Join from unknown connection")
		return
	}

	if c.sessionID != "" && c.sessionID != sessionID {
		h.leaveAllLocked(c)
	}

	c.sessionID = sessionID
	c.clientType = clientType
	c.joinedAt = time.Now()
	h.addToRoomLocked(SessionRoom(sessionID), c)
	h.mu.Unlock()

	h.logger.WithFields(logrus.Fields{
		"conn":       connID,
		"session":    sessionID,
		"clientType": clientType,
	}).Info("Connection joined session")

	h.sendTo(c, SessionJoined{
		Type:      EvtSessionJoined,
		SessionID: sessionID,
		Message:   "joined preview session",
		Features:  sessionFeatures,
		Timestamp: time.Now(),
	})
}

// WatchScreen subscribes a connection to updates for one screen within a
// session and acknowledges to the requester only.
func (h *Hub) WatchScreen(connID, sessionID, screenID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	h.addToRoomLocked(ScreenRoom(sessionID, screenID), c)
	h.listeners[listenerKey{connID: connID, sessionID: sessionID, screenID: screenID}] = struct{}{}
	h.mu.Unlock()

	h.sendTo(c, ScreenWatchStarted{
		Type:      EvtScreenWatchStart,
		SessionID: sessionID,
		ScreenID:  screenID,
		Timestamp: time.Now(),
	})
}

// RequestReload signals the session's peers (e.g. an editor process)
// that a reload of the screen is desired. Every other connection in the
// session group receives screen-reload-requested; the requester gets a
// separate screen-reload-request-sent acknowledgment instead.
func (h *Hub) RequestReload(connID, sessionID, screenID string) {
	now := time.Now()
	h.broadcastExcept(SessionRoom(sessionID), connID, marshal(ReloadRequest{
		Type:      EvtReloadRequested,
		SessionID: sessionID,
		ScreenID:  screenID,
		Timestamp: now,
	}))

	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c != nil {
		h.sendTo(c, ReloadRequest{
			Type:      EvtReloadRequestSent,
			SessionID: sessionID,
			ScreenID:  screenID,
			Timestamp: now,
		})
	}
}

// TriggerScreenHotReload pushes a server-initiated reload: a
// screen-hot-reload event to the whole session group, and a
// screen-updated event with the same payload to the narrower screen
// group only.
func (h *Hub) TriggerScreenHotReload(sessionID, screenID string, payload interface{}) {
	now := time.Now()
	update := ScreenUpdate{
		Type:      EvtScreenHotReload,
		SessionID: sessionID,
		ScreenID:  screenID,
		Payload:   payload,
		Timestamp: now,
		Source:    "server",
	}
	h.broadcast(SessionRoom(sessionID), marshal(update))

	update.Type = EvtScreenUpdated
	h.broadcast(ScreenRoom(sessionID, screenID), marshal(update))
}

// InjectScreen broadcasts an opaque screen definition to the session
// group. Its internal shape is owned by the bundle-loading collaborator.
func (h *Hub) InjectScreen(sessionID string, screenDefinition interface{}) {
	h.broadcast(SessionRoom(sessionID), marshal(ScreenInjection{
		Type:             EvtScreenInjection,
		SessionID:        sessionID,
		ScreenDefinition: screenDefinition,
		Timestamp:        time.Now(),
		Source:           "server",
	}))
}

// UpdateNavigation broadcasts an opaque navigation configuration to the
// session group.
func (h *Hub) UpdateNavigation(sessionID string, navigationConfig interface{}) {
	h.broadcast(SessionRoom(sessionID), marshal(NavigationUpdate{
		Type:             EvtNavigationUpdate,
		SessionID:        sessionID,
		NavigationConfig: navigationConfig,
		Timestamp:        time.Now(),
		Source:           "server",
	}))
}

// BroadcastMessage sends a free-form notice to the session group. An
// empty severity defaults to "info".
func (h *Hub) BroadcastMessage(sessionID, message, severity string) {
	if severity == "" {
		severity = "info"
	}
	h.broadcast(SessionRoom(sessionID), marshal(SessionMessage{
		Type:        EvtSessionMessage,
		SessionID:   sessionID,
		Message:     message,
		MessageType: severity,
		Timestamp:   time.Now(),
		Source:      "server",
	}))
}

// Disconnect removes a connection and every screen listener it owns.
// Nothing is emitted to other connections.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, connID)
	h.leaveAllLocked(c)
	h.mu.Unlock()

	c.close()
	h.logger.WithField("conn", connID).Debug("Connection removed")
}

// StatsAt computes hub statistics relative to the given "now".
func (h *Hub) StatsAt(now time.Time) Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := Stats{
		TotalConnections:   len(h.clients),
		ScreenListeners:    len(h.listeners),
		SessionConnections: make(map[string]int),
	}
	for _, c := range h.clients {
		if now.Sub(c.lastActivityAt) <= activityWindow {
			stats.ActiveConnections++
		}
		if c.sessionID != "" {
			stats.SessionConnections[c.sessionID]++
		}
	}
	return stats
}

// Stats computes hub statistics as of the current time.
func (h *Hub) Stats() Stats {
	return h.StatsAt(time.Now())
}

// touch bumps a connection's activity timestamp.
func (h *Hub) touch(connID string) {
	h.mu.Lock()
	if c, ok := h.clients[connID]; ok {
		c.lastActivityAt = time.Now()
	}
	h.mu.Unlock()
}

// addToRoomLocked requires h.mu held for writing.
func (h *Hub) addToRoomLocked(key RoomKey, c *Client) {
	room, ok := h.rooms[key]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[key] = room
	}
	room[c.id] = c
}

// leaveAllLocked drops a client from every room and removes its screen
// listeners. Requires h.mu held for writing.
func (h *Hub) leaveAllLocked(c *Client) {
	for key, room := range h.rooms {
		delete(room, c.id)
		if len(room) == 0 {
			delete(h.rooms, key)
		}
	}
	for key := range h.listeners {
		if key.connID == c.id {
			delete(h.listeners, key)
		}
	}
	c.sessionID = ""
}

// broadcast fans a frame out to every member of a room, fire-and-forget.
func (h *Hub) broadcast(key RoomKey, data []byte) {
	h.broadcastExcept(key, "", data)
}

// broadcastExcept fans a frame out to every room member except one
// connection id. Members that cannot keep up are dropped.
func (h *Hub) broadcastExcept(key RoomKey, exceptConnID string, data []byte) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[key]))
	for id, c := range h.rooms[key] {
		if id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.deliver(c, data)
	}
}

// sendTo marshals and delivers an event to a single connection.
func (h *Hub) sendTo(c *Client, v interface{}) {
	h.deliver(c, marshal(v))
}

func (h *Hub) deliver(c *Client, data []byte) {
	if !c.trySend(data) {
		// Client can't keep up, disconnect it
		h.logger.WithField("conn", c.id).Warn("Connection too slow, disconnecting")
		h.Disconnect(c.id)
	}
}

// sendError emits a scoped error event to one connection.
func (h *Hub) sendError(connID, errorType, message string) {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}

	h.logger.WithFields(logrus.Fields{
		"conn": connID,
		"type": errorType,
	}).Warn(message)

	h.sendTo(c, ErrorEvent{
		Type:      EvtError,
		ErrorType: errorType,
		Message:   message,
		Timestamp: time.Now(),
	})
}
