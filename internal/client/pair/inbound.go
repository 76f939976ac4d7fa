package pair

import "github.com/studyhall/pairhub/internal/model/pair"

// handleFrame decodes one inbound frame and routes it. It runs on the
// dispatch goroutine.
func (c *Client) handleFrame(frame pair.Frame) {
	var err error
	switch frame.Event {
	case pair.EventConnected:
		var p struct {
			SocketID string `json:"socket_id"`
		}
		if err = frame.Decode(&p); err == nil {
			c.mu.Lock()
			c.socketID = p.SocketID
			c.mu.Unlock()
		}
	case pair.EventSessionState:
		var p pair.SessionState
		if err = frame.Decode(&p); err == nil {
			c.onSessionState(p)
		}
	case pair.EventCodeUpdated:
		var p pair.CodeUpdated
		if err = frame.Decode(&p); err == nil {
			c.onCodeUpdated(p)
		}
	case pair.EventOutputUpdated:
		var p pair.OutputUpdated
		if err = frame.Decode(&p); err == nil {
			c.onOutputUpdated(p)
		}
	case pair.EventParticipantJoin:
		var p pair.ParticipantJoined
		if err = frame.Decode(&p); err == nil {
			c.onParticipantJoined(p)
		}
	case pair.EventParticipantLeft:
		var p pair.ParticipantLeft
		if err = frame.Decode(&p); err == nil {
			c.onParticipantLeft(p)
		}
	case pair.EventCursorUpdated:
		var p pair.CursorUpdated
		if err = frame.Decode(&p); err == nil {
			c.onCursorUpdated(p)
		}
	case pair.EventSelectionUpdated:
		var p pair.SelectionUpdated
		if err = frame.Decode(&p); err == nil {
			c.onSelectionUpdated(p)
		}
	case pair.EventTypingStart, pair.EventTypingStop:
		var p pair.TypingSignal
		if err = frame.Decode(&p); err == nil {
			c.onTyping(p.Username, frame.Event == pair.EventTypingStart)
		}
	case pair.EventChatMessage:
		var p pair.ChatReceived
		if err = frame.Decode(&p); err == nil {
			c.deliverChat(p)
		}
	case pair.EventError:
		var p pair.ErrorPayload
		if err = frame.Decode(&p); err == nil {
			c.callbacks.each(func(cb Callbacks) {
				if cb.OnError != nil {
					cb.OnError(p.Message)
				}
			})
		}
	default:
		c.log.Printf("[pair-client] ignoring unknown event %q", frame.Event)
	}

	if err != nil {
		c.log.Printf("[pair-client] dropping %s: %v", frame.Event, err)
	}
}
