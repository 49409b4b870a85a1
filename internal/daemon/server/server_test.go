package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/previewkit/previewd/config"
	"github.com/previewkit/previewd/errors"
	"github.com/previewkit/previewd/internal/daemon/hub"
	"github.com/previewkit/previewd/logging"
	"github.com/previewkit/previewd/pkg/client"
	"github.com/previewkit/previewd/pkg/session"
	"github.com/previewkit/previewd/pkg/watcher"
	"github.com/previewkit/previewd/pkg/workspace"
	"github.com/previewkit/previewd/testutil"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()

	store, err := workspace.NewStore(config.SessionsConfig{
		Root: filepath.Join(t.TempDir(), "sessions"),
	})
	require.NoError(t, err)

	binder := watcher.New(10 * time.Millisecond)
	t.Cleanup(binder.Close)

	registry := session.NewRegistry(store, binder)
	srv := New(logging.NewLogger("previewd-test"), registry, hub.New())

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, registry
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestSessionLifecycleAPI(t *testing.T) {
	ts, _ := newTestServer(t)
	api := client.New(ts.URL)
	ctx := context.Background()

	require.True(t, api.IsRunning(ctx))

	list, err := api.ListSessions(ctx)
	require.NoError(t, err)
	require.True(t, list.Success)
	require.Empty(t, list.Sessions)
	require.Equal(t, 0, list.Stats.Count)

	source := testutil.SourceTree(t)
	created, err := api.CreateSession(ctx, source)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.True(t, testutil.FileExists(created.WorkspacePath))
	// Live reload attaches on creation.
	require.True(t, created.Watching)

	got, err := api.GetSession(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	list, err = api.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, list.Sessions, 1)
	require.Equal(t, 1, list.Stats.Count)

	require.NoError(t, api.DeleteSession(ctx, created.ID))
	require.False(t, testutil.FileExists(created.WorkspacePath))

	// The envelope code makes it back as a typed error.
	_, err = api.GetSession(ctx, created.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Session not found")
	require.Equal(t, errors.ErrCodeSessionNotFound, errors.GetCode(err))
}

func TestGetUnknownSessionEnvelope(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/sessions/sess-1700000000000-deadbeef")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body.Success)
	require.Equal(t, string(errors.ErrCodeSessionNotFound), body.Code)
	require.Equal(t, "Session not found", body.Error)
}

func TestCreateSessionBadSource(t *testing.T) {
	ts, _ := newTestServer(t)
	api := client.New(ts.URL)

	_, err := api.CreateSession(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.Equal(t, errors.ErrCodeSourceNotFound, errors.GetCode(err))
}

func TestDeleteAll(t *testing.T) {
	ts, _ := newTestServer(t)
	api := client.New(ts.URL)
	ctx := context.Background()
	source := testutil.SourceTree(t)

	for i := 0; i < 3; i++ {
		_, err := api.CreateSession(ctx, source)
		require.NoError(t, err)
	}

	failures, err := api.DeleteAll(ctx)
	require.NoError(t, err)
	require.Empty(t, failures)

	list, err := api.ListSessions(ctx)
	require.NoError(t, err)
	require.Empty(t, list.Sessions)
}

func TestEditorTriggeredHotReload(t *testing.T) {
	ts, _ := newTestServer(t)

	conn := dialWS(t, ts)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":       "join-session",
		"sessionId":  "S1",
		"clientType": "mobile-app",
	}))
	require.Equal(t, hub.EvtSessionJoined, readEvent(t, conn)["type"])

	body := strings.NewReader(`{"screenId":"Home","payload":{"v":2}}`)
	resp, err := http.Post(ts.URL+"/sessions/S1/reload", "application/json", body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ev := readEvent(t, conn)
	require.Equal(t, hub.EvtScreenHotReload, ev["type"])
	require.Equal(t, "Home", ev["screenId"])
	require.Equal(t, map[string]interface{}{"v": float64(2)}, ev["payload"])
}

func TestFileChangeReachesJoinedClients(t *testing.T) {
	ts, _ := newTestServer(t)
	api := client.New(ts.URL)

	source := testutil.SourceTree(t)
	created, err := api.CreateSession(context.Background(), source)
	require.NoError(t, err)

	conn := dialWS(t, ts)
	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":       "join-session",
		"sessionId":  created.ID,
		"clientType": "mobile-app",
	}))
	require.Equal(t, hub.EvtSessionJoined, readEvent(t, conn)["type"])

	// An edit in the workspace becomes a hot reload for the screen named
	// after the file.
	target := filepath.Join(created.WorkspacePath, "screens", "Home.tsx")
	require.NoError(t, os.WriteFile(target, []byte("edited"), 0644))

	for {
		ev := readEvent(t, conn)
		if ev["type"] != hub.EvtScreenHotReload {
			continue
		}
		require.Equal(t, created.ID, ev["sessionId"])
		require.Equal(t, "Home", ev["screenId"])
		return
	}
}

func TestScreenForPath(t *testing.T) {
	tests := []struct {
		rel    string
		screen string
	}{
		{"screens/Home.tsx", "Home"},
		{"Detail.jsx", "Detail"},
		{"src/views/Checkout.vue", "Checkout"},
		{"README", "README"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.screen, screenForPath(tt.rel))
	}
}
