package pair

import (
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/studyhall/pairhub/internal/handler"
	relaypkg "github.com/studyhall/pairhub/internal/handler/pair"
	"github.com/studyhall/pairhub/internal/model/pair"
	pairservice "github.com/studyhall/pairhub/internal/service/pair"
)

const waitFor = 3 * time.Second
const tick = 10 * time.Millisecond

// trackingListener remembers accepted connections so tests can sever them
// the way a network drop would. httptest.Server.Close leaves hijacked
// websocket connections alone.
type trackingListener struct {
	net.Listener

	mu    sync.Mutex
	conns []net.Conn
}

func (l *trackingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.conns = append(l.conns, conn)
	l.mu.Unlock()
	return conn, nil
}

// dropAll closes every accepted connection without a websocket close frame.
func (l *trackingListener) dropAll() {
	l.mu.Lock()
	conns := l.conns
	l.conns = nil
	l.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

type testServer struct {
	*httptest.Server
	svc      *pairservice.Service
	relay    *relaypkg.Relay
	listener *trackingListener
}

func startServer(t *testing.T) *testServer {
	t.Helper()

	svc := pairservice.NewService(pairservice.DefaultConfig())
	relay := relaypkg.NewRelay(svc, nil)
	srv := httptest.NewUnstartedServer(handler.NewRouter(svc, relay, nil))
	tl := &trackingListener{Listener: srv.Listener}
	srv.Listener = tl
	srv.Start()

	ts := &testServer{Server: srv, svc: svc, relay: relay, listener: tl}
	t.Cleanup(func() {
		tl.dropAll()
		srv.Close()
	})
	return ts
}

func testOptions(serverURL, username string) Options {
	return Options{
		ServerURL:         serverURL,
		Username:          username,
		ReconnectAttempts: 3,
		ReconnectDelay:    20 * time.Millisecond,
		ReconnectDelayMax: 50 * time.Millisecond,
		ConnectTimeout:    time.Second,
		JoinTimeout:       2 * time.Second,
		Logger:            log.New(io.Discard, "", 0),
	}
}

func newTestClient(t *testing.T, opts Options) *Client {
	t.Helper()
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// recorder captures every callback for later assertions.
type recorder struct {
	mu  sync.Mutex
	got events
}

type events struct {
	codes        []codeEvent
	outputs      []string
	joined       []string
	rosters      [][]pair.Participant
	cursors      []string
	selections   []string
	typingStarts []string
	typingStops  []string
	chats        []pair.ChatMessage
	errors       []string
}

type codeEvent struct {
	code string
	from string
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnCodeUpdate: func(code, from string) {
			r.mu.Lock()
			r.got.codes = append(r.got.codes, codeEvent{code: code, from: from})
			r.mu.Unlock()
		},
		OnOutputUpdate: func(output string) {
			r.mu.Lock()
			r.got.outputs = append(r.got.outputs, output)
			r.mu.Unlock()
		},
		OnParticipantJoined: func(username string, participants []pair.Participant) {
			r.mu.Lock()
			r.got.joined = append(r.got.joined, username)
			r.got.rosters = append(r.got.rosters, participants)
			r.mu.Unlock()
		},
		OnParticipantLeft: func(participants []pair.Participant) {
			r.mu.Lock()
			r.got.rosters = append(r.got.rosters, participants)
			r.mu.Unlock()
		},
		OnCursorUpdate: func(position json.RawMessage, username, _ string) {
			r.mu.Lock()
			r.got.cursors = append(r.got.cursors, username+":"+string(position))
			r.mu.Unlock()
		},
		OnSelectionUpdate: func(selection json.RawMessage, username, _ string) {
			r.mu.Lock()
			r.got.selections = append(r.got.selections, username+":"+string(selection))
			r.mu.Unlock()
		},
		OnTypingStart: func(username string) {
			r.mu.Lock()
			r.got.typingStarts = append(r.got.typingStarts, username)
			r.mu.Unlock()
		},
		OnTypingStop: func(username string) {
			r.mu.Lock()
			r.got.typingStops = append(r.got.typingStops, username)
			r.mu.Unlock()
		},
		OnChatMessage: func(msg pair.ChatMessage) {
			r.mu.Lock()
			r.got.chats = append(r.got.chats, msg)
			r.mu.Unlock()
		},
		OnError: func(message string) {
			r.mu.Lock()
			r.got.errors = append(r.got.errors, message)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() events {
	r.mu.Lock()
	defer r.mu.Unlock()
	return events{
		codes:        append([]codeEvent(nil), r.got.codes...),
		outputs:      append([]string(nil), r.got.outputs...),
		joined:       append([]string(nil), r.got.joined...),
		rosters:      append([][]pair.Participant(nil), r.got.rosters...),
		cursors:      append([]string(nil), r.got.cursors...),
		selections:   append([]string(nil), r.got.selections...),
		typingStarts: append([]string(nil), r.got.typingStarts...),
		typingStops:  append([]string(nil), r.got.typingStops...),
		chats:        append([]pair.ChatMessage(nil), r.got.chats...),
		errors:       append([]string(nil), r.got.errors...),
	}
}

// countingServer answers every request with body and counts hits.
type countingServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits []string
}

func startCountingServer(t *testing.T, status int, body string) *countingServer {
	t.Helper()
	cs := &countingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.hits = append(cs.hits, r.Method+" "+r.URL.Path)
		cs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func (cs *countingServer) requests() []string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return append([]string(nil), cs.hits...)
}
