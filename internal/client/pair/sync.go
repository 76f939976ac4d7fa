package pair

import (
	"encoding/json"

	"github.com/studyhall/pairhub/internal/model/pair"
)

// SendCodeChange publishes the full editor text. Peers see it attributed
// to the local username; the relay does not echo it back.
func (c *Client) SendCodeChange(code string) error {
	return c.sendScoped(func(sessionID, username string) (string, any) {
		return pair.EventCodeChange, pair.CodeChange{SessionID: sessionID, Code: &code, Username: username}
	})
}

// SendOutputChange publishes the latest execution output.
func (c *Client) SendOutputChange(output string) error {
	return c.sendScoped(func(sessionID, _ string) (string, any) {
		return pair.EventOutputChange, pair.OutputChange{SessionID: sessionID, Output: &output}
	})
}

// SendCursorChange publishes the local cursor position. position is
// forwarded verbatim.
func (c *Client) SendCursorChange(position any) error {
	raw, err := json.Marshal(position)
	if err != nil {
		return err
	}
	return c.sendScoped(func(sessionID, username string) (string, any) {
		return pair.EventCursorChange, pair.CursorChange{SessionID: sessionID, Position: raw, Username: username}
	})
}

// SendSelectionChange publishes the local selection; nil clears it.
func (c *Client) SendSelectionChange(selection any) error {
	raw, err := json.Marshal(selection)
	if err != nil {
		return err
	}
	return c.sendScoped(func(sessionID, username string) (string, any) {
		return pair.EventSelectionChange, pair.SelectionChange{SessionID: sessionID, Selection: raw, Username: username}
	})
}

// sendScoped emits the frame built by fn when a session is active and a
// connection exists; otherwise it does nothing.
func (c *Client) sendScoped(fn func(sessionID, username string) (string, any)) error {
	c.mu.Lock()
	sessionID, username, connected := c.sessionID, c.username, c.conn != nil
	c.mu.Unlock()

	if sessionID == "" || !connected {
		return nil
	}
	event, data := fn(sessionID, username)
	return c.emit(event, data)
}

func (c *Client) onSessionState(state pair.SessionState) {
	c.mu.Lock()
	c.mirror.Code = state.Code
	c.mirror.Output = state.Output
	c.mirror.Participants = append([]pair.Participant(nil), state.Participants...)
	c.mirror.Typing = make(map[string]bool)
	for _, p := range state.Participants {
		if p.IsTyping {
			c.mirror.Typing[p.Username] = true
		}
	}
	c.mu.Unlock()

	c.callbacks.each(func(cb Callbacks) {
		if cb.OnCodeUpdate != nil {
			cb.OnCodeUpdate(state.Code, "")
		}
		if cb.OnOutputUpdate != nil {
			cb.OnOutputUpdate(state.Output)
		}
	})
	for _, msg := range state.Messages {
		ts := msg.Timestamp
		c.deliverChat(pair.ChatReceived{ID: msg.ID, Username: msg.Username, Message: msg.Message, Timestamp: &ts})
	}
}

func (c *Client) onCodeUpdated(p pair.CodeUpdated) {
	c.mu.Lock()
	c.mirror.Code = p.Code
	c.mu.Unlock()

	c.callbacks.each(func(cb Callbacks) {
		if cb.OnCodeUpdate != nil {
			cb.OnCodeUpdate(p.Code, p.From)
		}
	})
}

func (c *Client) onOutputUpdated(p pair.OutputUpdated) {
	c.mu.Lock()
	c.mirror.Output = p.Output
	c.mu.Unlock()

	c.callbacks.each(func(cb Callbacks) {
		if cb.OnOutputUpdate != nil {
			cb.OnOutputUpdate(p.Output)
		}
	})
}

func (c *Client) onCursorUpdated(p pair.CursorUpdated) {
	c.callbacks.each(func(cb Callbacks) {
		if cb.OnCursorUpdate != nil {
			cb.OnCursorUpdate(p.Position, p.Username, p.SocketID)
		}
	})
}

func (c *Client) onSelectionUpdated(p pair.SelectionUpdated) {
	c.callbacks.each(func(cb Callbacks) {
		if cb.OnSelectionUpdate != nil {
			cb.OnSelectionUpdate(p.Selection, p.Username, p.SocketID)
		}
	})
}
