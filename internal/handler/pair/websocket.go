package pair

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/studyhall/pairhub/internal/model/pair"
	pairservice "github.com/studyhall/pairhub/internal/service/pair"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Relay fans session events out to every participant over websockets.
type Relay struct {
	svc      *pairservice.Service
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewRelay creates the websocket relay. An empty allowedOrigins list, or one
// containing "*", accepts any origin.
func NewRelay(svc *pairservice.Service, allowedOrigins []string) *Relay {
	return &Relay{
		svc: svc,
		hub: NewHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{pair.Protocol},
		},
	}
}

// Hub exposes room membership, mostly for tests.
func (rl *Relay) Hub() *Hub { return rl.hub }

// RegisterWebSocketRoutes registers the relay endpoint.
func (rl *Relay) RegisterWebSocketRoutes(r chi.Router) {
	r.Get("/ws", rl.handleWebSocket)
}

func (rl *Relay) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		return
	}

	p := newPeer(uuid.NewString(), ws)
	log.Printf("[relay] new connection peer=%s", p.id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl.hub.register(p)
	go rl.writeLoop(p)
	defer rl.disconnect(ctx, p)

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rl.send(p, pair.EventConnected, map[string]string{
		"message":   "Connected to pair programming server",
		"socket_id": p.id,
	})

	for {
		var frame pair.Frame
		if err := ws.ReadJSON(&frame); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				rl.sendError(p, "invalid payload")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[relay] read error peer=%s: %v", p.id, err)
			}
			return
		}

		ws.SetReadDeadline(time.Now().Add(pongWait))
		rl.handleFrame(ctx, p, frame)
	}
}

func (rl *Relay) handleFrame(ctx context.Context, p *peer, frame pair.Frame) {
	var err error
	switch frame.Event {
	case pair.EventJoinSession:
		err = rl.handleJoin(ctx, p, frame)
	case pair.EventLeaveSession:
		err = rl.handleLeave(ctx, p, frame)
	case pair.EventCodeChange:
		err = rl.handleCodeChange(ctx, p, frame)
	case pair.EventOutputChange:
		err = rl.handleOutputChange(ctx, p, frame)
	case pair.EventCursorChange:
		err = rl.handleCursorChange(ctx, p, frame)
	case pair.EventSelectionChange:
		err = rl.handleSelectionChange(ctx, p, frame)
	case pair.EventChatMessage:
		err = rl.handleChat(ctx, p, frame)
	case pair.EventTypingStart:
		err = rl.handleTyping(ctx, p, frame, true)
	case pair.EventTypingStop:
		err = rl.handleTyping(ctx, p, frame, false)
	default:
		rl.sendError(p, "unsupported event: "+frame.Event)
		return
	}

	if err != nil {
		log.Printf("[relay] %s failed peer=%s: %v", frame.Event, p.id, err)
	}
}

func (rl *Relay) handleJoin(ctx context.Context, p *peer, frame pair.Frame) error {
	var req pair.JoinSessionRequest
	if err := frame.Decode(&req); err != nil {
		rl.sendError(p, "invalid payload")
		return err
	}
	if req.SessionID == "" {
		rl.sendError(p, "Session ID required")
		return nil
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = "Anonymous"
	}

	session, err := rl.svc.AddParticipant(ctx, req.SessionID, req.UserID, username, p.id)
	if err != nil {
		if errors.Is(err, pairservice.ErrSessionNotFound) {
			rl.sendError(p, "Session not found")
			return nil
		}
		rl.sendError(p, "Failed to join session")
		return err
	}
	rl.hub.join(req.SessionID, p)

	state, err := rl.svc.Snapshot(ctx, req.SessionID)
	if err != nil {
		rl.sendError(p, "Failed to join session")
		return err
	}
	rl.send(p, pair.EventSessionState, state)

	log.Printf("[relay] peer=%s joined session=%s as %s (%d participants)", p.id, req.SessionID, username, len(session.Participants))
	rl.broadcast(req.SessionID, pair.EventParticipantJoin, pair.ParticipantJoined{
		Username:     username,
		Participants: session.Participants,
	}, nil)
	return nil
}

func (rl *Relay) handleLeave(ctx context.Context, p *peer, frame pair.Frame) error {
	var req pair.LeaveSessionRequest
	if err := frame.Decode(&req); err != nil {
		return err
	}
	if req.SessionID == "" {
		return nil
	}
	return rl.leave(ctx, req.SessionID, p)
}

func (rl *Relay) leave(ctx context.Context, sessionID string, p *peer) error {
	rl.hub.leave(sessionID, p)

	session, err := rl.svc.RemoveParticipant(ctx, sessionID, p.id)
	if err != nil {
		if errors.Is(err, pairservice.ErrSessionNotFound) {
			return nil
		}
		return err
	}

	log.Printf("[relay] peer=%s left session=%s", p.id, sessionID)
	rl.broadcast(sessionID, pair.EventParticipantLeft, pair.ParticipantLeft{
		Participants: session.Participants,
	}, p)
	return nil
}

func (rl *Relay) handleCodeChange(ctx context.Context, p *peer, frame pair.Frame) error {
	var req pair.CodeChange
	if err := frame.Decode(&req); err != nil {
		return err
	}
	if req.SessionID == "" || req.Code == nil || !rl.hub.inRoom(req.SessionID, p) {
		return nil
	}
	if err := rl.svc.UpdateCode(ctx, req.SessionID, *req.Code); err != nil {
		return err
	}

	from := req.Username
	if from == "" {
		from = "Anonymous"
	}
	rl.broadcast(req.SessionID, pair.EventCodeUpdated, pair.CodeUpdated{Code: *req.Code, From: from}, p)
	return nil
}

func (rl *Relay) handleOutputChange(ctx context.Context, p *peer, frame pair.Frame) error {
	var req pair.OutputChange
	if err := frame.Decode(&req); err != nil {
		return err
	}
	if req.SessionID == "" || req.Output == nil || !rl.hub.inRoom(req.SessionID, p) {
		return nil
	}
	if err := rl.svc.UpdateOutput(ctx, req.SessionID, *req.Output); err != nil {
		return err
	}

	rl.broadcast(req.SessionID, pair.EventOutputUpdated, pair.OutputUpdated{Output: *req.Output}, nil)
	return nil
}

func (rl *Relay) handleCursorChange(ctx context.Context, p *peer, frame pair.Frame) error {
	var req pair.CursorChange
	if err := frame.Decode(&req); err != nil {
		return err
	}
	if req.SessionID == "" || pair.IsEmptyJSON(req.Position) || !rl.hub.inRoom(req.SessionID, p) {
		return nil
	}
	if err := rl.svc.UpdateCursor(ctx, req.SessionID, p.id, req.Position); err != nil {
		return err
	}

	rl.broadcast(req.SessionID, pair.EventCursorUpdated, pair.CursorUpdated{
		Position: req.Position,
		Username: rl.usernameOf(ctx, req.SessionID, p),
		SocketID: p.id,
	}, p)
	return nil
}

func (rl *Relay) handleSelectionChange(ctx context.Context, p *peer, frame pair.Frame) error {
	var req pair.SelectionChange
	if err := frame.Decode(&req); err != nil {
		return err
	}
	if req.SessionID == "" || !rl.hub.inRoom(req.SessionID, p) {
		return nil
	}
	if err := rl.svc.UpdateSelection(ctx, req.SessionID, p.id, req.Selection); err != nil {
		return err
	}

	selection := req.Selection
	if len(selection) == 0 {
		selection = json.RawMessage("null")
	}
	rl.broadcast(req.SessionID, pair.EventSelectionUpdated, pair.SelectionUpdated{
		Selection: selection,
		Username:  rl.usernameOf(ctx, req.SessionID, p),
		SocketID:  p.id,
	}, p)
	return nil
}

func (rl *Relay) handleChat(ctx context.Context, p *peer, frame pair.Frame) error {
	var req pair.ChatRequest
	if err := frame.Decode(&req); err != nil {
		return err
	}
	text := strings.TrimSpace(req.Message)
	if req.SessionID == "" || text == "" || !rl.hub.inRoom(req.SessionID, p) {
		return nil
	}

	username := req.Username
	if username == "" {
		username = "Anonymous"
	}
	msg, err := rl.svc.AddMessage(ctx, req.SessionID, username, text, p.id)
	if err != nil {
		return err
	}

	ts := msg.Timestamp
	rl.broadcast(req.SessionID, pair.EventChatMessage, pair.ChatReceived{
		ID:        msg.ID,
		Username:  msg.Username,
		Message:   msg.Message,
		Timestamp: &ts,
	}, nil)
	return nil
}

func (rl *Relay) handleTyping(ctx context.Context, p *peer, frame pair.Frame, typing bool) error {
	var req pair.TypingSignal
	if err := frame.Decode(&req); err != nil {
		return err
	}
	if req.SessionID == "" || !rl.hub.inRoom(req.SessionID, p) {
		return nil
	}
	if err := rl.svc.SetTyping(ctx, req.SessionID, p.id, typing); err != nil {
		return err
	}

	username := req.Username
	if username == "" {
		username = rl.usernameOf(ctx, req.SessionID, p)
	}
	event := pair.EventTypingStop
	if typing {
		event = pair.EventTypingStart
	}
	rl.broadcast(req.SessionID, event, pair.TypingSignal{Username: username}, p)
	return nil
}

// disconnect removes p from every session it joined.
func (rl *Relay) disconnect(ctx context.Context, p *peer) {
	for _, sessionID := range rl.hub.sessionsOf(p) {
		if err := rl.leave(ctx, sessionID, p); err != nil {
			log.Printf("[relay] cleanup failed peer=%s session=%s: %v", p.id, sessionID, err)
		}
	}
	rl.hub.unregister(p)
	p.close()
	log.Printf("[relay] connection closed peer=%s", p.id)
}

// DisconnectAll closes every connection with a close frame, so clients
// see a server-initiated disconnect.
func (rl *Relay) DisconnectAll(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
	for _, p := range rl.hub.all() {
		if err := p.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
			log.Printf("[relay] close frame failed peer=%s: %v", p.id, err)
		}
		p.close()
	}
}

func (rl *Relay) usernameOf(ctx context.Context, sessionID string, p *peer) string {
	session, err := rl.svc.GetSession(ctx, sessionID)
	if err != nil {
		return "Anonymous"
	}
	if participant, ok := session.Participant(p.id); ok {
		return participant.Username
	}
	return "Anonymous"
}

func (rl *Relay) writeLoop(p *peer) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case frame := <-p.send:
			p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.ws.WriteJSON(frame); err != nil {
				log.Printf("[relay] write failed peer=%s: %v", p.id, err)
				p.close()
				return
			}
		case <-ticker.C:
			p.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close()
				return
			}
		}
	}
}

func (rl *Relay) send(p *peer, event string, data any) {
	frame, err := pair.NewFrame(event, data)
	if err != nil {
		log.Printf("[relay] %v", err)
		return
	}
	p.enqueue(frame)
}

func (rl *Relay) broadcast(sessionID, event string, data any, skip *peer) {
	frame, err := pair.NewFrame(event, data)
	if err != nil {
		log.Printf("[relay] %v", err)
		return
	}
	rl.hub.broadcast(sessionID, frame, skip)
}

func (rl *Relay) sendError(p *peer, message string) {
	rl.send(p, pair.EventError, pair.ErrorPayload{Message: message})
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		if origin != "" {
			set[origin] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
