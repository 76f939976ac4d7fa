package pair

import (
	"encoding/json"
	"sync"

	"github.com/studyhall/pairhub/internal/model/pair"
)

// Callbacks is a table of optional event handlers. Events whose handler is
// nil are dropped.
type Callbacks struct {
	OnCodeUpdate        func(code, from string)
	OnOutputUpdate      func(output string)
	OnParticipantJoined func(username string, participants []pair.Participant)
	OnParticipantLeft   func(participants []pair.Participant)
	OnCursorUpdate      func(position json.RawMessage, username, socketID string)
	OnSelectionUpdate   func(selection json.RawMessage, username, socketID string)
	OnTypingStart       func(username string)
	OnTypingStop        func(username string)
	OnChatMessage       func(msg pair.ChatMessage)
	OnError             func(message string)
}

// registry holds the default callback table plus any independent
// subscribers.
type registry struct {
	mu      sync.RWMutex
	primary Callbacks
	subs    []subscription
	nextID  int
}

type subscription struct {
	id int
	cb Callbacks
}

func (r *registry) set(cb Callbacks) {
	r.mu.Lock()
	r.primary = cb
	r.mu.Unlock()
}

func (r *registry) subscribe(cb Callbacks) func() {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscription{id: id, cb: cb})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, s := range r.subs {
				if s.id == id {
					r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// each calls fn for the default table and then every subscriber in
// registration order.
func (r *registry) each(fn func(Callbacks)) {
	r.mu.RLock()
	tables := make([]Callbacks, 0, len(r.subs)+1)
	tables = append(tables, r.primary)
	for _, s := range r.subs {
		tables = append(tables, s.cb)
	}
	r.mu.RUnlock()

	for _, cb := range tables {
		fn(cb)
	}
}
