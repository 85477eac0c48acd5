package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

// SessionHandler handles HTTP requests for session resources.
type SessionHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewSessionHandler creates a new SessionHandler with the given store.
func NewSessionHandler(s *store.Store, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{store: s, logger: logger}
}

// ServeHTTP routes requests to the appropriate method.
//
// Paths:
//
//	/api/sessions
//	/api/sessions/{id}
//	/api/sessions/{id}/events
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

	id, sub, _ := strings.Cut(path, "/")
	switch {
	case sub == "events":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.events(w, r, id)
	case sub != "":
		WriteError(w, http.StatusNotFound, "Not found")
	case r.Method == http.MethodGet:
		h.get(w, r, id)
	case r.Method == http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type listSessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

type sessionEventsResponse struct {
	SessionID string          `json:"session_id"`
	Events    []gesture.Event `json:"events"`
}

// list handles GET /api/sessions and returns all sessions, newest first.
func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		h.logger.Error("list sessions", "error", err)
		WriteError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	if sessions == nil {
		sessions = []*store.Session{}
	}
	WriteJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// get handles GET /api/sessions/{id}.
func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("get session", "session_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	WriteJSON(w, http.StatusOK, sess)
}

// delete handles DELETE /api/sessions/{id}. Events are removed with the session.
func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Sessions().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("delete session", "session_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// events handles GET /api/sessions/{id}/events?since=N&limit=M.
func (h *SessionHandler) events(w http.ResponseWriter, r *http.Request, id string) {
	since, err := ParseUint(r, "since", MaxSince)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid since")
		return
	}
	limit, err := ParseUint(r, "limit", maxLimit)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	if _, err := h.store.Sessions().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "Session not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	evs, err := h.store.Events().ListBySession(id, since, int(limit))
	if err != nil {
		h.logger.Error("list session events", "session_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	WriteJSON(w, http.StatusOK, sessionEventsResponse{SessionID: id, Events: evs})
}

// MaxSince is the largest cursor accepted in a since parameter. Cursors are
// stored as signed 64-bit integers.
const MaxSince = math.MaxInt64

const maxLimit = math.MaxInt32

// ErrOutOfRange is returned by ParseUint for values above the allowed maximum.
var ErrOutOfRange = errors.New("value out of range")

// ParseUint reads an optional non-negative integer query parameter no
// larger than max.
func ParseUint(r *http.Request, name string, max uint64) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if n > max {
		return 0, ErrOutOfRange
	}
	return n, nil
}
