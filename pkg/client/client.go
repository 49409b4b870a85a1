// Package client calls the previewd daemon's session lifecycle HTTP API.
// Used by the CLI subcommands; the visual editor speaks the same surface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/previewkit/previewd/errors"
	"github.com/previewkit/previewd/pkg/session"
)

// Client is an HTTP client for a running previewd daemon.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client for the daemon at baseURL (e.g. "http://localhost:8790").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SessionView is the wire shape of one session in API responses.
type SessionView struct {
	ID            string    `json:"id"`
	StartTime     time.Time `json:"startTime"`
	AgeMs         int64     `json:"age"`
	WorkspacePath string    `json:"workspacePath"`
	Watching      bool      `json:"watching"`
}

// SessionsResponse is the GET /sessions payload.
type SessionsResponse struct {
	Success  bool          `json:"success"`
	Stats    session.Stats `json:"stats"`
	Sessions []SessionView `json:"sessions"`
}

type sessionResponse struct {
	Success bool        `json:"success"`
	Session SessionView `json:"session"`
	Code    string      `json:"code"`
	Error   string      `json:"error"`
}

type messageResponse struct {
	Success  bool              `json:"success"`
	Message  string            `json:"message"`
	Code     string            `json:"code"`
	Error    string            `json:"error"`
	Failures map[string]string `json:"failures"`
}

// ListSessions returns every tracked session with registry stats.
func (c *Client) ListSessions(ctx context.Context) (*SessionsResponse, error) {
	var out SessionsResponse
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSession returns one session by id.
func (c *Client) GetSession(ctx context.Context, id string) (*SessionView, error) {
	var out sessionResponse
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// CreateSession asks the daemon to copy sourcePath into a new session.
func (c *Client) CreateSession(ctx context.Context, sourcePath string) (*SessionView, error) {
	body := map[string]string{"sourcePath": sourcePath}
	var out sessionResponse
	if err := c.do(ctx, http.MethodPost, "/sessions", body, &out); err != nil {
		return nil, err
	}
	return &out.Session, nil
}

// DeleteSession removes one session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	var out messageResponse
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(id), nil, &out)
}

// DeleteAll removes every session. Partial failure is reported through
// the returned failure map, keyed by session id.
func (c *Client) DeleteAll(ctx context.Context) (map[string]string, error) {
	var out messageResponse
	if err := c.do(ctx, http.MethodDelete, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out.Failures, nil
}

// IsRunning reports whether the daemon answers its health check.
func (c *Client) IsRunning(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = &bytes.Buffer{}
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return err
		}
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode daemon response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if envelope, ok := out.(errEnvelope); ok && envelope.errMessage() != "" {
			// Rebuild the daemon's typed error so callers can switch on
			// the code the same way server-side code does.
			if code := envelope.errCode(); code != "" {
				return errors.New(errors.ErrorCode(code), envelope.errMessage()).
					WithDetail("status", resp.StatusCode)
			}
			return fmt.Errorf("daemon returned status %d: %s", resp.StatusCode, envelope.errMessage())
		}
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}
	return nil
}

type errEnvelope interface {
	errCode() string
	errMessage() string
}

func (r *sessionResponse) errCode() string    { return r.Code }
func (r *sessionResponse) errMessage() string { return r.Error }
func (r *messageResponse) errCode() string    { return r.Code }
func (r *messageResponse) errMessage() string { return r.Error }
