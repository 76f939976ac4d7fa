package pair

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/pairhub/internal/model/pair"
)

func TestMalformedFrameKeepsConnection(t *testing.T) {
	var accepted atomic.Int32
	peerClosed := make(chan struct{}, 1)
	upgrader := websocket.Upgrader{Subprotocols: []string{pair.Protocol}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if accepted.Add(1) > 1 {
			return
		}

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"event":5}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteJSON(pair.Frame{Event: pair.EventError, Data: json.RawMessage(`{"message":"still here"}`)})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				peerClosed <- struct{}{}
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, testOptions(srv.URL, "A"))
	rec := &recorder{}
	c.SetCallbacks(rec.callbacks())
	c.Connect()

	require.Eventually(t, func() bool {
		return len(rec.snapshot().errors) == 1
	}, waitFor, tick)
	assert.Equal(t, []string{"still here"}, rec.snapshot().errors)

	assert.Never(t, func() bool { return accepted.Load() > 1 }, 300*time.Millisecond, tick, "client redialed after a bad frame")
	assert.Equal(t, StateConnected, c.State())
	select {
	case <-peerClosed:
		t.Fatal("client closed the connection after a bad frame")
	default:
	}
}

func TestDroppedConnectionIsClosedBeforeRedial(t *testing.T) {
	var accepted atomic.Int32
	firstClosed := make(chan struct{})
	upgrader := websocket.Upgrader{Subprotocols: []string{pair.Protocol}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if accepted.Add(1) > 1 {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}

		// An empty text message fails to decode with io.ErrUnexpectedEOF,
		// which the client treats as a broken stream.
		_ = conn.WriteMessage(websocket.TextMessage, nil)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(firstClosed)
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, testOptions(srv.URL, "A"))
	c.Connect()

	select {
	case <-firstClosed:
	case <-time.After(waitFor):
		t.Fatal("client never closed the abandoned connection")
	}
	require.Eventually(t, func() bool {
		return accepted.Load() == 2 && c.IsConnected()
	}, waitFor, tick)
}
