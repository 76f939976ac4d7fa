package pair

import (
	"encoding/json"
	"time"
)

// DefaultCode seeds the editor of every new session.
const DefaultCode = `print("Hello, StudyHall!")`

// Participant is one connected actor in a session. SocketID is the
// uniqueness key; it changes across reconnects.
type Participant struct {
	UserID   *int64    `json:"user_id"`
	Username string    `json:"username"`
	SocketID string    `json:"socket_id"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
	IsTyping bool      `json:"is_typing"`
}

// Session is a server-held collaborative workspace.
type Session struct {
	ID           string                     `json:"session_id"`
	HostUserID   *int64                     `json:"host_user_id,omitempty"`
	HostUsername string                     `json:"host_username"`
	Code         string                     `json:"code"`
	Output       string                     `json:"output"`
	Participants []Participant              `json:"participants"`
	Messages     []ChatMessage              `json:"messages"`
	Cursors      map[string]json.RawMessage `json:"cursors"`
	Selections   map[string]json.RawMessage `json:"selections"`
	CreatedAt    time.Time                  `json:"created_at"`
	ExpiresAt    time.Time                  `json:"expires_at"`
}

// Clone returns a deep copy safe to hand out of a lock.
func (s Session) Clone() Session {
	out := s
	out.Participants = append([]Participant(nil), s.Participants...)
	out.Messages = append([]ChatMessage(nil), s.Messages...)
	out.Cursors = make(map[string]json.RawMessage, len(s.Cursors))
	for k, v := range s.Cursors {
		out.Cursors[k] = v
	}
	out.Selections = make(map[string]json.RawMessage, len(s.Selections))
	for k, v := range s.Selections {
		out.Selections[k] = v
	}
	return out
}

// Expired reports whether the session's time-to-live has elapsed at now.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Participant looks up a participant by connection identifier.
func (s Session) Participant(socketID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.SocketID == socketID {
			return p, true
		}
	}
	return Participant{}, false
}
