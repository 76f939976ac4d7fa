package pair

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Protocol is the websocket subprotocol negotiated by relay and client.
// Version 1 carries typing state as discrete typing_start/typing_stop
// events.
const Protocol = "pair-v1"

// Client to server events.
const (
	EventJoinSession     = "join_session"
	EventLeaveSession    = "leave_session"
	EventCodeChange      = "code_change"
	EventOutputChange    = "output_change"
	EventCursorChange    = "cursor_change"
	EventSelectionChange = "selection_change"
	EventChatMessage     = "chat_message"
	EventTypingStart     = "typing_start"
	EventTypingStop      = "typing_stop"
)

// Server to client events. chat_message and the typing events reuse the
// outbound names.
const (
	EventConnected        = "connected"
	EventSessionState     = "session_state"
	EventCodeUpdated      = "code_updated"
	EventOutputUpdated    = "output_updated"
	EventParticipantJoin  = "participant_joined"
	EventParticipantLeft  = "participant_left"
	EventCursorUpdated    = "cursor_updated"
	EventSelectionUpdated = "selection_updated"
	EventError            = "error"
)

// Frame is the envelope of every websocket text message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals data into a frame for event.
func NewFrame(event string, data any) (Frame, error) {
	if data == nil {
		return Frame{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Frame{Event: event, Data: raw}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Event, err)
	}
	return nil
}

// IsEmptyJSON reports whether raw carries no usable value: nothing, null,
// an empty object, an empty array or an empty string.
func IsEmptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "{}", "[]", `""`:
		return true
	}
	return false
}

type JoinSessionRequest struct {
	SessionID string `json:"session_id"`
	UserID    *int64 `json:"user_id"`
	Username  string `json:"username"`
}

type LeaveSessionRequest struct {
	SessionID string `json:"session_id"`
}

type CodeChange struct {
	SessionID string  `json:"session_id"`
	Code      *string `json:"code"`
	Username  string  `json:"username"`
}

type OutputChange struct {
	SessionID string  `json:"session_id"`
	Output    *string `json:"output"`
}

type CursorChange struct {
	SessionID string          `json:"session_id"`
	Position  json.RawMessage `json:"position"`
	Username  string          `json:"username"`
}

type SelectionChange struct {
	SessionID string          `json:"session_id"`
	Selection json.RawMessage `json:"selection"`
	Username  string          `json:"username"`
}

type ChatRequest struct {
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
}

type TypingSignal struct {
	SessionID string `json:"session_id,omitempty"`
	Username  string `json:"username"`
}

// SessionState is the snapshot replayed to a client on (re)join.
type SessionState struct {
	Code         string                     `json:"code"`
	Output       string                     `json:"output"`
	Participants []Participant              `json:"participants"`
	Messages     []ChatMessage              `json:"messages"`
	Cursors      map[string]json.RawMessage `json:"cursors,omitempty"`
	Selections   map[string]json.RawMessage `json:"selections,omitempty"`
}

type CodeUpdated struct {
	Code string `json:"code"`
	From string `json:"from"`
}

type OutputUpdated struct {
	Output string `json:"output"`
}

type ParticipantJoined struct {
	Username     string        `json:"username"`
	Participants []Participant `json:"participants"`
}

type ParticipantLeft struct {
	Participants []Participant `json:"participants"`
}

type CursorUpdated struct {
	Position json.RawMessage `json:"position"`
	Username string          `json:"username"`
	SocketID string          `json:"socket_id"`
}

type SelectionUpdated struct {
	Selection json.RawMessage `json:"selection"`
	Username  string          `json:"username"`
	SocketID  string          `json:"socket_id"`
}

// ChatReceived is the inbound chat payload. ID and Timestamp may be absent
// when talking to older relays.
type ChatReceived struct {
	ID        string     `json:"id,omitempty"`
	Username  string     `json:"username"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
