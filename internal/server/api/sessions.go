// Package api provides the HTTP handlers for recorded mouthosc sessions.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/mouthosc/internal/store"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// SessionHandler serves read and delete access to recorded sessions.
type SessionHandler struct {
	store *store.Store
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store) *SessionHandler {
	return &SessionHandler{store: s}
}

// ServeHTTP routes /api/sessions, /api/sessions/{id} and /api/sessions/{id}/samples.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	if err := uuid.Validate(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid session ID")
		return
	}

	switch {
	case rest == "samples" && r.Method == http.MethodGet:
		h.samples(w, r, id)
	case rest == "" && r.Method == http.MethodGet:
		h.summary(w, r, id)
	case rest == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case rest != "" && rest != "samples":
		http.NotFound(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type sessionResponse struct {
	ID        string `json:"id"`
	Target    string `json:"target"`
	Topology  string `json:"topology"`
	Pairs     int    `json:"pairs"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

type listSessionsResponse struct {
	Sessions []sessionResponse `json:"sessions"`
}

type summaryResponse struct {
	Session sessionResponse      `json:"session"`
	Count   int                  `json:"count"`
	Width   store.ChannelSummary `json:"width"`
	Height  store.ChannelSummary `json:"height"`
}

type samplesResponse struct {
	SessionID string         `json:"session_id"`
	Samples   []store.Sample `json:"samples"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:        s.ID,
		Target:    s.Target,
		Topology:  s.Topology,
		Pairs:     s.Pairs,
		StartedAt: s.StartedAt.Format(timeLayout),
	}
	if s.EndedAt != nil {
		resp.EndedAt = s.EndedAt.Format(timeLayout)
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// list handles GET /api/sessions.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	response := listSessionsResponse{
		Sessions: make([]sessionResponse, 0, len(sessions)),
	}
	for i := range sessions {
		response.Sessions = append(response.Sessions, toResponse(&sessions[i]))
	}

	writeJSON(w, http.StatusOK, response)
}

// summary handles GET /api/sessions/{id}.
func (h *SessionHandler) summary(w http.ResponseWriter, r *http.Request, id string) {
	sum, err := h.store.Sessions().Summary(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to summarize session")
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		Session: toResponse(sum.Session),
		Count:   sum.Count,
		Width:   sum.Width,
		Height:  sum.Height,
	})
}

// samples handles GET /api/sessions/{id}/samples.
func (h *SessionHandler) samples(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.store.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	samples, err := h.store.Sessions().Samples(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}
	if samples == nil {
		samples = []store.Sample{}
	}

	writeJSON(w, http.StatusOK, samplesResponse{SessionID: id, Samples: samples})
}

// delete handles DELETE /api/sessions/{id}.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
