package pair

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studyhall/pairhub/internal/model/pair"
	pairservice "github.com/studyhall/pairhub/internal/service/pair"
	"github.com/studyhall/pairhub/pkg/utils"
)

const defaultExtendHours = 24

// Handler serves the request/response half of the pair-programming API.
type Handler struct {
	svc *pairservice.Service
}

// New creates the pair-programming HTTP handler.
func New(svc *pairservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the session endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/pair-programming", func(pr chi.Router) {
		pr.Get("/", h.handleListSessions)
		pr.Post("/create", h.handleCreateSession)
		pr.Get("/{sessionID}", h.handleGetSession)
		pr.Post("/{sessionID}/extend", h.handleExtendSession)
	})
}

type sessionView struct {
	Code         string             `json:"code"`
	Output       string             `json:"output"`
	HostUsername string             `json:"host_username"`
	Participants []pair.Participant `json:"participants"`
	CreatedAt    *time.Time         `json:"created_at,omitempty"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty"`
}

func viewOf(s pair.Session, withTimes bool) sessionView {
	v := sessionView{
		Code:         s.Code,
		Output:       s.Output,
		HostUsername: s.HostUsername,
		Participants: s.Participants,
	}
	if withTimes {
		created, expires := s.CreatedAt, s.ExpiresAt
		v.CreatedAt = &created
		v.ExpiresAt = &expires
	}
	return v
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID   *int64 `json:"user_id"`
		Username string `json:"username"`
	}

	if err := decodeOptionalBody(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.svc.CreateSession(r.Context(), payload.UserID, payload.Username)
	if err != nil {
		log.Printf("[pair] create session failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondSuccess(w, utils.Envelope{
		"session_id": session.ID,
		"session":    viewOf(session, false),
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.svc.GetSession(r.Context(), sessionID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondSuccess(w, utils.Envelope{
		"session": viewOf(session, true),
	})
}

func (h *Handler) handleExtendSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Hours *int `json:"hours"`
	}
	if err := decodeOptionalBody(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	hours := defaultExtendHours
	if payload.Hours != nil {
		hours = *payload.Hours
	}

	if _, err := h.svc.ExtendSession(r.Context(), sessionID, hours); err != nil {
		respondServiceError(w, err)
		return
	}

	utils.RespondSuccess(w, utils.Envelope{
		"message": fmt.Sprintf("Session extended by %d hours", hours),
	})
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.svc.ListSessions(r.Context())

	out := make(map[string]sessionView, len(sessions))
	for _, s := range sessions {
		out[s.ID] = viewOf(s, true)
	}
	utils.RespondSuccess(w, utils.Envelope{
		"sessions": out,
	})
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pairservice.ErrSessionNotFound), errors.Is(err, pairservice.ErrSessionIDRequired):
		utils.RespondError(w, http.StatusNotFound, "Session not found")
	case errors.Is(err, pairservice.ErrInvalidHours):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[pair] request failed: %v", err)
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeOptionalBody decodes a JSON body, treating an empty body as {}.
func decodeOptionalBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
