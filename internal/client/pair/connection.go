package pair

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/studyhall/pairhub/internal/model/pair"
)

const writeWait = 10 * time.Second

// Connect establishes the relay connection in the background. A live or
// in-progress connection is left untouched.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.closed:
		return
	default:
	}

	if c.state != StateDisconnected {
		return
	}
	c.state = StateConnecting
	stop := make(chan struct{})
	c.stop = stop
	go c.manage(stop)
}

// Disconnect leaves the active session, closes the connection and stops
// reconnecting.
func (c *Client) Disconnect() {
	c.LeaveSession()

	c.mu.Lock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.failWaitersLocked(ErrClientClosed)
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		conn.Close()
	}
}

// manage owns one connection lifecycle: dial, read until the connection
// drops, then reconnect with backoff until attempts run out or stop closes.
func (c *Client) manage(stop chan struct{}) {
	initial := true
	immediate := false
	attempt := 0

	for {
		if !initial {
			if c.opts.NoReconnect {
				c.giveUp(stop, nil)
				return
			}
			if immediate {
				immediate = false
			} else {
				attempt++
				if attempt > c.opts.ReconnectAttempts {
					c.log.Printf("[pair-client] failed to reconnect after %d attempts", c.opts.ReconnectAttempts)
					c.giveUp(stop, ErrReconnectFailed)
					return
				}
				delay := c.opts.backoff(attempt)
				c.log.Printf("[pair-client] reconnection attempt %d in %s", attempt, delay)
				select {
				case <-stop:
					return
				case <-time.After(delay):
				}
			}
		}

		conn, err := c.dial(stop)
		if err != nil {
			if isStopped(stop) {
				return
			}
			if initial {
				c.log.Printf("[pair-client] connection error: %v", err)
				c.emitError(fmt.Sprintf("Connection error: %v", err))
				if !c.toReconnecting(stop, err) {
					return
				}
				initial = false
				continue
			}
			c.log.Printf("[pair-client] reconnection error: %v", err)
			continue
		}

		if !c.attach(stop, conn) {
			conn.Close()
			return
		}
		if attempt > 0 {
			c.log.Printf("[pair-client] reconnected after %d attempts", attempt)
		} else {
			c.log.Printf("[pair-client] connected to %s", c.wsURL)
		}
		attempt = 0
		initial = false

		serverClosed := c.readLoop(conn)
		conn.Close()
		if !c.detach(stop, conn) {
			return
		}
		// A close initiated by the relay needs an explicit reconnect rather
		// than waiting out the backoff.
		immediate = serverClosed
	}
}

func (c *Client) dial(stop chan struct{}) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()

	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// attach publishes a fresh connection and re-issues the join for any
// recorded session. It reports false if Disconnect won the race.
func (c *Client) attach(stop chan struct{}, conn *websocket.Conn) bool {
	c.mu.Lock()
	if c.stop != stop {
		c.mu.Unlock()
		return false
	}
	c.conn = conn
	c.state = StateConnected

	sessionID := c.sessionID
	rejoin := sessionID != ""
	for _, w := range c.waiters {
		// the waiting JoinSession emits its own join
		if w.sessionID == sessionID {
			rejoin = false
		}
		w.ch <- nil
	}
	c.waiters = nil
	c.mu.Unlock()

	if rejoin {
		if err := c.emitJoin(sessionID); err != nil {
			c.log.Printf("[pair-client] failed to rejoin session %s after reconnect: %v", sessionID, err)
			c.emitError(msgRejoinFailed)
		} else {
			c.log.Printf("[pair-client] rejoined session %s", sessionID)
		}
	}
	return true
}

// detach clears a dropped connection. It reports false if the drop was
// caused by Disconnect.
func (c *Client) detach(stop chan struct{}, conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != stop {
		return false
	}
	if c.conn == conn {
		c.conn = nil
	}
	c.socketID = ""
	c.state = StateReconnecting
	return true
}

func (c *Client) toReconnecting(stop chan struct{}, cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != stop {
		return false
	}
	c.failWaitersLocked(fmt.Errorf("connection error: %w", cause))
	c.state = StateReconnecting
	return true
}

// giveUp moves to disconnected. A non-nil cause is reported once through
// OnError. The active session id is kept.
func (c *Client) giveUp(stop chan struct{}, cause error) {
	c.mu.Lock()
	if c.stop != stop {
		c.mu.Unlock()
		return
	}
	c.stop = nil
	c.state = StateDisconnected
	if cause != nil {
		c.failWaitersLocked(cause)
	} else {
		c.failWaitersLocked(ErrNotConnected)
	}
	c.mu.Unlock()

	if cause != nil {
		c.emitError(msgReconnectFailed)
	}
}

func (c *Client) failWaitersLocked(err error) {
	for _, w := range c.waiters {
		w.ch <- err
	}
	c.waiters = nil
}

// readLoop decodes frames until the connection fails. Frames that are not
// valid JSON envelopes are dropped. It reports whether the relay closed the
// connection deliberately.
func (c *Client) readLoop(conn *websocket.Conn) bool {
	for {
		var frame pair.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.log.Printf("[pair-client] dropping frame: %v", err)
				continue
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code != websocket.CloseAbnormalClosure {
				c.log.Printf("[pair-client] disconnected by server: %v", closeErr)
				return true
			}
			c.log.Printf("[pair-client] disconnected: %v", err)
			return false
		}
		c.post(func() { c.handleFrame(frame) })
	}
}

// emit writes one frame on the live connection.
func (c *Client) emit(event string, data any) error {
	frame, err := pair.NewFrame(event, data)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// waitConnected blocks until the connection is live, the join timeout
// elapses or ctx is done.
func (c *Client) waitConnected(ctx context.Context, sessionID string) error {
	c.Connect()

	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	select {
	case <-c.closed:
		c.mu.Unlock()
		return ErrClientClosed
	default:
	}
	ch := make(chan error, 1)
	c.waiters = append(c.waiters, joinWaiter{sessionID: sessionID, ch: ch})
	c.mu.Unlock()

	timer := time.NewTimer(c.opts.JoinTimeout)
	defer timer.Stop()

	select {
	case err := <-ch:
		return err
	case <-timer.C:
		c.dropWaiter(ch)
		return ErrConnectionTimeout
	case <-ctx.Done():
		c.dropWaiter(ch)
		return ctx.Err()
	}
}

func (c *Client) dropWaiter(ch chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w.ch == ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}

func isStopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
