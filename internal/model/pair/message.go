package pair

import "time"

// ChatMessage is an immutable chat line scoped to a session.
type ChatMessage struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	SocketID  string    `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}
