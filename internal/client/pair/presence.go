package pair

import "github.com/studyhall/pairhub/internal/model/pair"

// SendTypingStart tells peers the local user started typing. No debounce
// is applied; callers decide when typing stops.
func (c *Client) SendTypingStart() error {
	return c.sendScoped(func(sessionID, username string) (string, any) {
		return pair.EventTypingStart, pair.TypingSignal{SessionID: sessionID, Username: username}
	})
}

// SendTypingStop tells peers the local user stopped typing.
func (c *Client) SendTypingStop() error {
	return c.sendScoped(func(sessionID, username string) (string, any) {
		return pair.EventTypingStop, pair.TypingSignal{SessionID: sessionID, Username: username}
	})
}

// Participants returns the last roster received from the relay.
func (c *Client) Participants() []pair.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]pair.Participant(nil), c.mirror.Participants...)
}

// IsTyping reports whether username is currently flagged as typing.
func (c *Client) IsTyping(username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mirror.Typing[username]
}

func (c *Client) onParticipantJoined(p pair.ParticipantJoined) {
	c.setRoster(p.Participants)
	c.callbacks.each(func(cb Callbacks) {
		if cb.OnParticipantJoined != nil {
			cb.OnParticipantJoined(p.Username, p.Participants)
		}
	})
}

func (c *Client) onParticipantLeft(p pair.ParticipantLeft) {
	c.setRoster(p.Participants)
	c.callbacks.each(func(cb Callbacks) {
		if cb.OnParticipantLeft != nil {
			cb.OnParticipantLeft(p.Participants)
		}
	})
}

// setRoster replaces the roster wholesale and forgets typing state of
// anyone no longer present.
func (c *Client) setRoster(participants []pair.Participant) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mirror.Participants = append([]pair.Participant(nil), participants...)
	present := make(map[string]bool, len(participants))
	for _, p := range participants {
		present[p.Username] = true
	}
	for name := range c.mirror.Typing {
		if !present[name] {
			delete(c.mirror.Typing, name)
		}
	}
}

func (c *Client) onTyping(username string, typing bool) {
	c.mu.Lock()
	if typing {
		c.mirror.Typing[username] = true
	} else {
		delete(c.mirror.Typing, username)
	}
	c.mu.Unlock()

	c.callbacks.each(func(cb Callbacks) {
		switch {
		case typing && cb.OnTypingStart != nil:
			cb.OnTypingStart(username)
		case !typing && cb.OnTypingStop != nil:
			cb.OnTypingStop(username)
		}
	})
}
