// Package pair implements the client side of the pair-programming relay:
// connection management with reconnect, session membership, code/output
// synchronisation, presence, typing, chat and event dispatch.
//
// A Client is an explicit instance; several may coexist in one process. All
// callbacks registered on a Client run serially on a single dispatch
// goroutine, in the order events arrived.
package pair

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/studyhall/pairhub/internal/model/pair"
)

// ConnState is the transport lifecycle state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Snapshot is the client's local mirror of the shared session state.
type Snapshot struct {
	Code         string
	Output       string
	Participants []pair.Participant
	Typing       map[string]bool
}

// Client relays one user's edits, presence and chat to a session.
type Client struct {
	opts   Options
	log    *log.Logger
	http   *http.Client
	store  Store
	dialer *websocket.Dialer

	apiBase string
	wsURL   string

	mu        sync.Mutex
	state     ConnState
	conn      *websocket.Conn
	stop      chan struct{}
	socketID  string
	sessionID string
	username  string
	userID    *int64
	waiters   []joinWaiter
	mirror    Snapshot

	// writeMu serialises frames so sends reach the socket in call order.
	writeMu sync.Mutex

	callbacks registry
	events    chan func()
	closed    chan struct{}
	closeOnce sync.Once
}

type joinWaiter struct {
	sessionID string
	ch        chan error
}

// New constructs a Client. No connection is made until Connect or
// JoinSession.
func New(opts Options) (*Client, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	apiBase, wsURL, err := opts.endpoints()
	if err != nil {
		return nil, err
	}

	c := &Client{
		opts:  opts,
		log:   opts.Logger,
		http:  opts.HTTPClient,
		store: opts.Store,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.ConnectTimeout,
			Subprotocols:     []string{pair.Protocol},
		},
		apiBase:  apiBase,
		wsURL:    wsURL,
		username: opts.Username,
		userID:   opts.UserID,
		mirror:   Snapshot{Typing: make(map[string]bool)},
		events:   make(chan func(), 256),
		closed:   make(chan struct{}),
	}
	go c.dispatchLoop()
	return c, nil
}

// SetCallbacks replaces the default callback table wholesale.
func (c *Client) SetCallbacks(cb Callbacks) {
	c.callbacks.set(cb)
}

// Subscribe registers an additional callback table alongside the default
// one. The returned function removes it.
func (c *Client) Subscribe(cb Callbacks) (unsubscribe func()) {
	return c.callbacks.subscribe(cb)
}

// SetUserInfo sets the identity attached to outbound events.
func (c *Client) SetUserInfo(username string, userID *int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if username == "" {
		username = "Anonymous"
	}
	c.username = username
	c.userID = userID
}

// Username returns the local display name.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// SessionID returns the active session id, or "" when none.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SocketID returns the relay-assigned identifier of the current connection.
func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// State returns the transport state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the transport is live.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Snapshot returns a copy of the locally mirrored session state.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Snapshot{
		Code:         c.mirror.Code,
		Output:       c.mirror.Output,
		Participants: append([]pair.Participant(nil), c.mirror.Participants...),
		Typing:       make(map[string]bool, len(c.mirror.Typing)),
	}
	for k, v := range c.mirror.Typing {
		out.Typing[k] = v
	}
	return out
}

// Close disconnects and stops the dispatch goroutine. The client cannot be
// reused afterwards.
func (c *Client) Close() {
	c.Disconnect()
	c.closeOnce.Do(func() { close(c.closed) })
}

// post queues fn on the dispatch goroutine.
func (c *Client) post(fn func()) {
	select {
	case <-c.closed:
	case c.events <- fn:
	}
}

func (c *Client) dispatchLoop() {
	for {
		select {
		case <-c.closed:
			return
		case fn := <-c.events:
			fn()
		}
	}
}

func (c *Client) emitError(message string) {
	c.post(func() {
		c.callbacks.each(func(cb Callbacks) {
			if cb.OnError != nil {
				cb.OnError(message)
			}
		})
	})
}
