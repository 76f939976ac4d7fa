package pair

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/studyhall/pairhub/internal/model/pair"
)

type apiResponse struct {
	Success   bool            `json:"success"`
	SessionID string          `json:"session_id"`
	Session   json.RawMessage `json:"session"`
	Error     string          `json:"error"`
}

// CreateSession asks the relay for a new session hosted by the local user
// and records it as active. Any failure wraps ErrCreateFailed.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	body := map[string]any{"user_id": c.userID, "username": c.username}
	c.mu.Unlock()

	resp, err := c.doJSON(ctx, http.MethodPost, c.apiBase+"/create", body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	if !resp.Success || resp.SessionID == "" {
		reason := resp.Error
		if reason == "" {
			reason = "malformed response from server"
		}
		return "", fmt.Errorf("%w: %s", ErrCreateFailed, reason)
	}

	c.switchSession(resp.SessionID)
	c.log.Printf("[pair-client] created session %s", resp.SessionID)
	return resp.SessionID, nil
}

// JoinSession connects if needed, waiting up to the join timeout, then asks
// the relay to add this client to sessionID. The id is recorded as active
// before the relay confirms; confirmation arrives as a session snapshot.
func (c *Client) JoinSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("join session: %w", ErrSessionIDRequired)
	}
	if err := c.waitConnected(ctx, sessionID); err != nil {
		return err
	}

	c.switchSession(sessionID)
	return c.emitJoin(sessionID)
}

// LeaveSession notifies the relay and clears the active session. It is a
// no-op without an active session and does not wait for confirmation.
func (c *Client) LeaveSession() {
	c.mu.Lock()
	sessionID := c.sessionID
	c.sessionID = ""
	connected := c.conn != nil
	c.mu.Unlock()

	if sessionID == "" {
		return
	}
	if connected {
		if err := c.emit(pair.EventLeaveSession, pair.LeaveSessionRequest{SessionID: sessionID}); err != nil {
			c.log.Printf("[pair-client] leave session %s: %v", sessionID, err)
		}
	}
}

// RestoreSession checks over HTTP whether sessionID still exists. On
// success it is recorded as active, without joining the relay channel.
func (c *Client) RestoreSession(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}

	resp, err := c.doJSON(ctx, http.MethodGet, c.apiBase+"/"+url.PathEscape(sessionID), nil)
	if err != nil {
		c.log.Printf("[pair-client] failed to restore session %s: %v", sessionID, err)
		return false, fmt.Errorf("restore session: %w", err)
	}
	if !resp.Success || len(resp.Session) == 0 || string(resp.Session) == "null" {
		return false, nil
	}

	c.switchSession(sessionID)
	return true, nil
}

// ExtendSession asks the relay to keep the active session alive for hours
// more (24 when hours <= 0). Without an active session it returns false
// and sends nothing.
func (c *Client) ExtendSession(ctx context.Context, hours int) (bool, error) {
	sessionID := c.SessionID()
	if sessionID == "" {
		return false, nil
	}
	if hours <= 0 {
		hours = 24
	}

	resp, err := c.doJSON(ctx, http.MethodPost, c.apiBase+"/"+url.PathEscape(sessionID)+"/extend", map[string]int{"hours": hours})
	if err != nil {
		c.log.Printf("[pair-client] failed to extend session %s: %v", sessionID, err)
		return false, fmt.Errorf("extend session: %w", err)
	}
	return resp.Success, nil
}

// SaveSessionToStorage persists the active session id, if any.
func (c *Client) SaveSessionToStorage() error {
	sessionID := c.SessionID()
	if sessionID == "" {
		return nil
	}
	return c.store.Set(StorageKey, sessionID)
}

// LoadSessionFromStorage returns the persisted session id, or "".
func (c *Client) LoadSessionFromStorage() (string, error) {
	v, _, err := c.store.Get(StorageKey)
	return v, err
}

// ClearSessionStorage removes the persisted session id.
func (c *Client) ClearSessionStorage() error {
	return c.store.Delete(StorageKey)
}

// switchSession records sessionID as active, leaving a different active
// session first so at most one membership exists.
func (c *Client) switchSession(sessionID string) {
	c.mu.Lock()
	prev := c.sessionID
	c.mu.Unlock()

	if prev != "" && prev != sessionID {
		c.LeaveSession()
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.mu.Unlock()
}

func (c *Client) emitJoin(sessionID string) error {
	c.mu.Lock()
	req := pair.JoinSessionRequest{SessionID: sessionID, UserID: c.userID, Username: c.username}
	c.mu.Unlock()
	return c.emit(pair.EventJoinSession, req)
}

// doJSON performs a JSON request and decodes the relay's envelope. Non-2xx
// responses still decode so the relay's error message is preserved.
func (c *Client) doJSON(ctx context.Context, method, endpoint string, body any) (apiResponse, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return apiResponse{}, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	}
	if err != nil {
		return apiResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return apiResponse{}, err
	}
	defer res.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return apiResponse{}, fmt.Errorf("decode response (status %d): %w", res.StatusCode, err)
	}
	if res.StatusCode >= 300 && out.Error == "" {
		out.Error = fmt.Sprintf("unexpected status %d", res.StatusCode)
	}
	return out, nil
}
