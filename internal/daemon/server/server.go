// Package server exposes the session lifecycle API and the realtime
// websocket endpoint of the previewd daemon.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/previewkit/previewd/errors"
	"github.com/previewkit/previewd/internal/daemon/hub"
	"github.com/previewkit/previewd/pkg/session"
	"github.com/previewkit/previewd/pkg/watcher"
	"github.com/sirupsen/logrus"
)

// Server wires the session registry and the broadcast hub to HTTP.
type Server struct {
	logger   *logrus.Entry
	server   *http.Server
	registry *session.Registry
	hub      *hub.Hub
	upgrader websocket.Upgrader
}

// New creates a Server over the given registry and hub.
func New(logger *logrus.Entry, registry *session.Registry, h *hub.Hub) *Server {
	return &Server{
		logger:   logger,
		registry: registry,
		hub:      h,
		upgrader: websocket.Upgrader{
			// Preview clients are mobile devices on the local network;
			// the daemon binds loopback/LAN and carries no credentials.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() http.Handler {
	router := httprouter.New()

	router.HandlerFunc(http.MethodGet, "/health", s.handleHealth)
	router.HandlerFunc(http.MethodGet, "/ws", s.handleWS)
	router.HandlerFunc(http.MethodGet, "/stats", s.handleStats)

	router.HandlerFunc(http.MethodGet, "/sessions", s.handleListSessions)
	router.HandlerFunc(http.MethodPost, "/sessions", s.handleCreateSession)
	router.HandlerFunc(http.MethodDelete, "/sessions", s.handleDeleteAll)
	router.GET("/sessions/:id", s.handleGetSession)
	router.DELETE("/sessions/:id", s.handleDeleteSession)

	router.POST("/sessions/:id/reload", s.handleTriggerReload)
	router.POST("/sessions/:id/inject", s.handleInjectScreen)
	router.POST("/sessions/:id/navigation", s.handleUpdateNavigation)
	router.POST("/sessions/:id/message", s.handleBroadcastMessage)

	return router
}

// ListenAndServe starts the daemon on the given address and blocks until
// the server stops or fails.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.WithField("addr", addr).Info("Daemon listening")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleWS upgrades the connection and runs its read loop. Every inbound
// frame goes through the hub; read errors end the connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("Websocket upgrade failed: %v", err)
		return
	}

	c := s.hub.Register(conn)
	s.logger.WithField("remote", r.RemoteAddr).Debug("Preview client connected")

	go func() {
		defer func() {
			s.hub.Disconnect(c.ID())
			s.logger.WithField("remote", r.RemoteAddr).Debug("Preview client disconnected")
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.hub.HandleInbound(c.ID(), data)
		}
	}()
}

// sessionView is the wire shape of one session in API responses.
type sessionView struct {
	ID            string    `json:"id"`
	StartTime     time.Time `json:"startTime"`
	AgeMs         int64     `json:"age"`
	WorkspacePath string    `json:"workspacePath"`
	Watching      bool      `json:"watching"`
}

func (s *Server) viewOf(sess *session.Session, now time.Time) sessionView {
	return sessionView{
		ID:            sess.ID,
		StartTime:     sess.CreatedAt,
		AgeMs:         sess.Age(now).Milliseconds(),
		WorkspacePath: sess.WorkspacePath,
		Watching:      s.registry.Watching(sess.ID),
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	sessions := s.registry.List()
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, s.viewOf(sess, now))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"stats":    s.registry.StatsAt(now),
		"sessions": views,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourcePath string `json:"sourcePath"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SourcePath == "" {
		writeError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "sourcePath is required")
		return
	}

	sess, err := s.registry.Create(req.SourcePath)
	if err != nil {
		if errors.Is(err, errors.ErrCodeSourceNotFound) {
			writeError(w, http.StatusNotFound, errors.ErrCodeSourceNotFound, messageOf(err))
			return
		}
		writeError(w, http.StatusInternalServerError, codeOf(err), messageOf(err))
		return
	}

	// Live reload wiring: workspace edits become hot-reload broadcasts
	// for the screen derived from the changed file. A failed attach
	// leaves the session usable without live reload.
	if err := s.registry.Watch(sess.ID, s.forwardChange); err != nil {
		s.logger.WithField("session", sess.ID).Warnf("Watch attach failed: %v", err)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"session": s.viewOf(sess, time.Now()),
	})
}

// ChangeHandler exposes the file-change → hot-reload coupling so the
// serve command can resume watching recovered sessions through it.
func (s *Server) ChangeHandler() func(watcher.Event) {
	return s.forwardChange
}

// forwardChange translates a file-change notification into a hot-reload
// broadcast for the screen named after the changed file.
func (s *Server) forwardChange(ev watcher.Event) {
	s.hub.TriggerScreenHotReload(ev.SessionID, screenForPath(ev.RelativePath), map[string]interface{}{
		"relativePath": ev.RelativePath,
		"timestamp":    ev.Timestamp,
	})
}

// screenForPath derives a screen id from a workspace-relative path:
// "screens/Home.tsx" → "Home".
func screenForPath(relPath string) string {
	base := path.Base(strings.ReplaceAll(relPath, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	sess, err := s.registry.Get(ps.ByName("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, errors.ErrCodeSessionNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"session": s.viewOf(sess, time.Now()),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if err := s.registry.Delete(id); err != nil {
		if errors.Is(err, errors.ErrCodeSessionNotFound) {
			writeError(w, http.StatusNotFound, errors.ErrCodeSessionNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, codeOf(err), messageOf(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Session %s deleted", id),
	})
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	outcomes := s.registry.DeleteAll()

	deleted := 0
	failures := make(map[string]string)
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failures[outcome.SessionID] = outcome.Err.Error()
		} else {
			deleted++
		}
	}

	resp := map[string]interface{}{
		"success": len(failures) == 0,
		"message": fmt.Sprintf("Deleted %d of %d sessions", deleted, len(outcomes)),
	}
	if len(failures) > 0 {
		resp["failures"] = failures
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"sessions": s.registry.Stats(),
		"realtime": s.hub.Stats(),
	})
}

func (s *Server) handleTriggerReload(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		ScreenID string      `json:"screenId"`
		Payload  interface{} `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScreenID == "" {
		writeError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "screenId is required")
		return
	}

	s.hub.TriggerScreenHotReload(ps.ByName("id"), req.ScreenID, req.Payload)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "hot reload triggered",
	})
}

func (s *Server) handleInjectScreen(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		ScreenDefinition interface{} `json:"screenDefinition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ScreenDefinition == nil {
		writeError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "screenDefinition is required")
		return
	}

	s.hub.InjectScreen(ps.ByName("id"), req.ScreenDefinition)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "screen injected",
	})
}

func (s *Server) handleUpdateNavigation(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		NavigationConfig interface{} `json:"navigationConfig"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NavigationConfig == nil {
		writeError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "navigationConfig is required")
		return
	}

	s.hub.UpdateNavigation(ps.ByName("id"), req.NavigationConfig)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "navigation updated",
	})
}

func (s *Server) handleBroadcastMessage(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var req struct {
		Message     string `json:"message"`
		MessageType string `json:"messageType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "message is required")
		return
	}

	s.hub.BroadcastMessage(ps.ByName("id"), req.Message, req.MessageType)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "message broadcast",
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the error envelope. The code travels with the
// message so API clients can rebuild the typed error on their side.
func writeError(w http.ResponseWriter, status int, code errors.ErrorCode, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"code":    string(code),
		"error":   message,
	})
}

// codeOf maps an arbitrary error to its wire code.
func codeOf(err error) errors.ErrorCode {
	if code := errors.GetCode(err); code != "" {
		return code
	}
	return errors.ErrCodeInternal
}

// messageOf strips the code prefix from typed errors; the code already
// travels in its own envelope field.
func messageOf(err error) string {
	if previewErr, ok := err.(*errors.PreviewError); ok {
		return previewErr.Message
	}
	return err.Error()
}
