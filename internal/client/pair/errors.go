package pair

import "errors"

var (
	ErrCreateFailed      = errors.New("failed to create session")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrNotConnected      = errors.New("not connected")
	ErrClientClosed      = errors.New("client closed")
	ErrReconnectFailed   = errors.New("reconnect attempts exhausted")
	ErrSessionIDRequired = errors.New("session id is required")
)

// Messages delivered through OnError for transport-level failures.
const (
	msgReconnectFailed = "Failed to reconnect to server. Please refresh the page."
	msgRejoinFailed    = "Failed to reconnect to session. Please refresh the page."
)
