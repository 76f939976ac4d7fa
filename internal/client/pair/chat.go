package pair

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studyhall/pairhub/internal/model/pair"
)

// SendChatMessage posts a trimmed chat line to the active session. Blank
// text is ignored.
func (c *Client) SendChatMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return c.sendScoped(func(sessionID, username string) (string, any) {
		return pair.EventChatMessage, pair.ChatRequest{SessionID: sessionID, Username: username, Message: text}
	})
}

// deliverChat hands an inbound chat line to the registry. The relay mints
// ids and timestamps; they are only filled in here when missing.
func (c *Client) deliverChat(p pair.ChatReceived) {
	msg := pair.ChatMessage{
		ID:       p.ID,
		Username: p.Username,
		Message:  p.Message,
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if p.Timestamp != nil && !p.Timestamp.IsZero() {
		msg.Timestamp = *p.Timestamp
	} else {
		msg.Timestamp = time.Now().UTC()
	}

	c.callbacks.each(func(cb Callbacks) {
		if cb.OnChatMessage != nil {
			cb.OnChatMessage(msg)
		}
	})
}
