package pair

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/studyhall/pairhub/internal/model/pair"
)

const sendQueueSize = 64

// peer is one websocket connection attached to the relay. Only the writer
// goroutine touches ws for writes.
type peer struct {
	id   string
	ws   *websocket.Conn
	send chan pair.Frame

	closeOnce sync.Once
	done      chan struct{}
}

func newPeer(id string, ws *websocket.Conn) *peer {
	return &peer{
		id:   id,
		ws:   ws,
		send: make(chan pair.Frame, sendQueueSize),
		done: make(chan struct{}),
	}
}

// enqueue hands a frame to the writer. A peer whose queue is full is too
// slow to keep up and gets disconnected.
func (p *peer) enqueue(frame pair.Frame) {
	select {
	case <-p.done:
	case p.send <- frame:
	default:
		log.Printf("[relay] send queue full, dropping peer=%s", p.id)
		p.close()
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.ws.Close()
	})
}

// Hub tracks which peers are in which session room.
type Hub struct {
	mu    sync.RWMutex
	peers map[string]*peer
	rooms map[string]map[string]*peer
	// joined maps a peer id to the sessions it is in.
	joined map[string]map[string]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		peers:  make(map[string]*peer),
		rooms:  make(map[string]map[string]*peer),
		joined: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) register(p *peer) {
	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()
}

func (h *Hub) unregister(p *peer) {
	h.mu.Lock()
	delete(h.peers, p.id)
	h.mu.Unlock()
}

func (h *Hub) all() []*peer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*peer, 0, len(h.peers))
	for _, p := range h.peers {
		out = append(out, p)
	}
	return out
}

// Connections reports how many peers are attached.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

func (h *Hub) join(sessionID string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[string]*peer)
		h.rooms[sessionID] = room
	}
	room[p.id] = p

	sessions, ok := h.joined[p.id]
	if !ok {
		sessions = make(map[string]struct{})
		h.joined[p.id] = sessions
	}
	sessions[sessionID] = struct{}{}
}

func (h *Hub) leave(sessionID string, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, ok := h.rooms[sessionID]; ok {
		delete(room, p.id)
		if len(room) == 0 {
			delete(h.rooms, sessionID)
		}
	}
	if sessions, ok := h.joined[p.id]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.joined, p.id)
		}
	}
}

// sessionsOf returns the sessions p has joined.
func (h *Hub) sessionsOf(p *peer) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.joined[p.id]))
	for id := range h.joined[p.id] {
		out = append(out, id)
	}
	return out
}

func (h *Hub) inRoom(sessionID string, p *peer) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[sessionID][p.id]
	return ok
}

// broadcast sends frame to every peer in the room except skip (nil to
// include everyone).
func (h *Hub) broadcast(sessionID string, frame pair.Frame, skip *peer) {
	h.mu.RLock()
	targets := make([]*peer, 0, len(h.rooms[sessionID]))
	for _, p := range h.rooms[sessionID] {
		if skip != nil && p.id == skip.id {
			continue
		}
		targets = append(targets, p)
	}
	h.mu.RUnlock()

	for _, p := range targets {
		p.enqueue(frame)
	}
}

// RoomSize reports how many peers are in a session room.
func (h *Hub) RoomSize(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionID])
}
