package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/projectsamarth/samarth/internal/models"
	"github.com/projectsamarth/samarth/internal/session"
)

type SessionHandler struct {
	manager *session.Manager
}

func NewSessionHandler(m *session.Manager) *SessionHandler {
	return &SessionHandler{manager: m}
}

type messageRequest struct {
	Question string `json:"question"`
}

type messageResponse struct {
	Turn  models.Turn `json:"turn"`
	Error string      `json:"error,omitempty"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, err := h.manager.Create()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.manager.Delete(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PostMessage runs one turn. A failed turn is still part of the session
// history and is returned alongside the error.
func (h *SessionHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req messageRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question required")
		return
	}

	turn, err := s.Ask(r.Context(), req.Question)
	if errors.Is(err, session.ErrTurnInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeJSON(w, statusFor(err), messageResponse{Turn: turn, Error: turn.Content})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Turn: turn})
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	s, err := h.manager.Get(id)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return nil, false
	}
	return s, true
}
