package pair

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studyhall/pairhub/internal/model/pair"
)

var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidHours      = errors.New("hours must be positive")
)

// Config bounds the lifetime and history size of sessions.
type Config struct {
	TTL            time.Duration
	MaxMessages    int
	ReplayMessages int
}

// DefaultConfig matches the relay's production defaults.
func DefaultConfig() Config {
	return Config{
		TTL:            24 * time.Hour,
		MaxMessages:    100,
		ReplayMessages: 50,
	}
}

// Service owns every pair-programming session held by the relay.
type Service struct {
	mu       sync.RWMutex
	cfg      Config
	now      func() time.Time
	sessions map[string]*pair.Session
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService bootstraps the in-memory session service.
func NewService(cfg Config, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.MaxMessages <= 0 {
		cfg.MaxMessages = def.MaxMessages
	}
	if cfg.ReplayMessages <= 0 || cfg.ReplayMessages > cfg.MaxMessages {
		cfg.ReplayMessages = min(def.ReplayMessages, cfg.MaxMessages)
	}

	s := &Service{
		cfg:      cfg,
		now:      time.Now,
		sessions: make(map[string]*pair.Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession provisions a session hosted by the given user.
func (s *Service) CreateSession(_ context.Context, hostUserID *int64, hostUsername string) (pair.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return pair.Session{}, err
	}

	hostUsername = strings.TrimSpace(hostUsername)
	if hostUsername == "" {
		hostUsername = "Host"
	}

	now := s.now().UTC()
	session := &pair.Session{
		ID:           id,
		HostUserID:   hostUserID,
		HostUsername: hostUsername,
		Code:         pair.DefaultCode,
		Participants: make([]pair.Participant, 0, 2),
		Messages:     make([]pair.ChatMessage, 0, 16),
		Cursors:      make(map[string]json.RawMessage),
		Selections:   make(map[string]json.RawMessage),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.TTL),
	}

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	log.Printf("[session] created id=%s host=%s", id, hostUsername)
	return session.Clone(), nil
}

// GetSession returns a copy of the session, dropping it if it has expired.
func (s *Service) GetSession(_ context.Context, sessionID string) (pair.Session, error) {
	if sessionID == "" {
		return pair.Session{}, ErrSessionIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(sessionID)
	if err != nil {
		return pair.Session{}, err
	}
	return session.Clone(), nil
}

// ListSessions returns every live session ordered by creation time.
func (s *Service) ListSessions(_ context.Context) []pair.Session {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]pair.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.Expired(now) {
			continue
		}
		out = append(out, session.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ExtendSession resets the expiry to hours from now.
func (s *Service) ExtendSession(_ context.Context, sessionID string, hours int) (pair.Session, error) {
	if hours <= 0 {
		return pair.Session{}, ErrInvalidHours
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(sessionID)
	if err != nil {
		return pair.Session{}, err
	}
	session.ExpiresAt = s.now().UTC().Add(time.Duration(hours) * time.Hour)
	return session.Clone(), nil
}

// DeleteSession removes a session immediately.
func (s *Service) DeleteSession(_ context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// AddParticipant registers socketID in the session. Joining twice from the
// same socket only refreshes last_seen.
func (s *Service) AddParticipant(_ context.Context, sessionID string, userID *int64, username, socketID string) (pair.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(sessionID)
	if err != nil {
		return pair.Session{}, err
	}

	now := s.now().UTC()
	for i := range session.Participants {
		if session.Participants[i].SocketID == socketID {
			session.Participants[i].LastSeen = now
			return session.Clone(), nil
		}
	}

	username = strings.TrimSpace(username)
	if username == "" {
		username = fmt.Sprintf("User%d", len(session.Participants))
	}

	session.Participants = append(session.Participants, pair.Participant{
		UserID:   userID,
		Username: username,
		SocketID: socketID,
		JoinedAt: now,
		LastSeen: now,
	})
	return session.Clone(), nil
}

// RemoveParticipant drops socketID together with its cursor and selection.
// Empty sessions are kept until they expire so the host can reconnect.
func (s *Service) RemoveParticipant(_ context.Context, sessionID, socketID string) (pair.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(sessionID)
	if err != nil {
		return pair.Session{}, err
	}

	kept := session.Participants[:0]
	for _, p := range session.Participants {
		if p.SocketID != socketID {
			kept = append(kept, p)
		}
	}
	session.Participants = kept
	delete(session.Cursors, socketID)
	delete(session.Selections, socketID)
	return session.Clone(), nil
}

// UpdateCode replaces the session code. Last write wins.
func (s *Service) UpdateCode(_ context.Context, sessionID, code string) error {
	return s.mutate(sessionID, func(session *pair.Session) { session.Code = code })
}

// UpdateOutput replaces the session output. Last write wins.
func (s *Service) UpdateOutput(_ context.Context, sessionID, output string) error {
	return s.mutate(sessionID, func(session *pair.Session) { session.Output = output })
}

// UpdateCursor records the cursor position of socketID.
func (s *Service) UpdateCursor(_ context.Context, sessionID, socketID string, position json.RawMessage) error {
	return s.mutate(sessionID, func(session *pair.Session) {
		session.Cursors[socketID] = append(json.RawMessage(nil), position...)
	})
}

// UpdateSelection records the selection of socketID; an empty selection
// clears it.
func (s *Service) UpdateSelection(_ context.Context, sessionID, socketID string, selection json.RawMessage) error {
	return s.mutate(sessionID, func(session *pair.Session) {
		if pair.IsEmptyJSON(selection) {
			delete(session.Selections, socketID)
			return
		}
		session.Selections[socketID] = append(json.RawMessage(nil), selection...)
	})
}

// SetTyping flags whether socketID is currently typing.
func (s *Service) SetTyping(_ context.Context, sessionID, socketID string, typing bool) error {
	now := s.now().UTC()
	return s.mutate(sessionID, func(session *pair.Session) {
		for i := range session.Participants {
			if session.Participants[i].SocketID == socketID {
				session.Participants[i].IsTyping = typing
				session.Participants[i].LastSeen = now
				return
			}
		}
	})
}

// AddMessage appends a chat line, minting its id and timestamp. Only the
// most recent MaxMessages lines are retained.
func (s *Service) AddMessage(_ context.Context, sessionID, username, text, socketID string) (pair.ChatMessage, error) {
	msg := pair.ChatMessage{
		ID:        uuid.NewString(),
		Username:  username,
		Message:   text,
		SocketID:  socketID,
		Timestamp: s.now().UTC(),
	}

	err := s.mutate(sessionID, func(session *pair.Session) {
		session.Messages = append(session.Messages, msg)
		if over := len(session.Messages) - s.cfg.MaxMessages; over > 0 {
			session.Messages = append([]pair.ChatMessage(nil), session.Messages[over:]...)
		}
	})
	if err != nil {
		return pair.ChatMessage{}, err
	}
	return msg, nil
}

// Snapshot builds the state replayed to a joining client.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (pair.SessionState, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return pair.SessionState{}, err
	}

	messages := session.Messages
	if len(messages) > s.cfg.ReplayMessages {
		messages = messages[len(messages)-s.cfg.ReplayMessages:]
	}

	return pair.SessionState{
		Code:         session.Code,
		Output:       session.Output,
		Participants: session.Participants,
		Messages:     messages,
		Cursors:      session.Cursors,
		Selections:   session.Selections,
	}, nil
}

// Sweep deletes every expired session and reports how many were removed.
func (s *Service) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired sessions every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				log.Printf("[session] swept %d expired sessions", n)
			}
		}
	}
}

func (s *Service) mutate(sessionID string, fn func(*pair.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(sessionID)
	if err != nil {
		return err
	}
	fn(session)
	return nil
}

func (s *Service) lookupLocked(sessionID string) (*pair.Session, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if session.Expired(s.now()) {
		delete(s.sessions, sessionID)
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func newSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

