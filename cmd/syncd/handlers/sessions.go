package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/drawguess/backend/internal/assets"
	"github.com/drawguess/backend/internal/errors"
	"github.com/drawguess/backend/internal/models"
	"github.com/drawguess/backend/internal/store"
)

// DrawingTransfer is the asset surface the session handlers use.
type DrawingTransfer interface {
	UploadDrawingData(ctx context.Context, userID, sessionID string, data []byte) (string, error)
	ResolveDrawingURL(ctx context.Context, userID, sessionID, fallback string) (string, error)
}

// SessionHandler exposes local session CRUD to the game UI. Every
// mutation is also recorded as a pending operation so the next
// incremental sync picks it up.
type SessionHandler struct {
	local      *store.Local
	controller SyncController
	transfer   DrawingTransfer
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(local *store.Local, controller SyncController, transfer DrawingTransfer) *SessionHandler {
	return &SessionHandler{local: local, controller: controller, transfer: transfer}
}

// Collection handles /api/sessions: GET lists, POST creates.
func (h *SessionHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions, err := h.local.List(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if sessions == nil {
			sessions = []*models.GameSession{}
		}
		writeJSON(w, http.StatusOK, sessions)

	case http.MethodPost:
		var session models.GameSession
		if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
			writeError(w, errors.Wrap(errors.ErrInvalid, "malformed session", err))
			return
		}
		if err := h.local.Create(r.Context(), &session); err != nil {
			writeError(w, err)
			return
		}
		if h.controller != nil {
			h.controller.AddPendingOperation(session.ID.String(), models.PendingCreate)
		}
		writeJSON(w, http.StatusCreated, &session)

	default:
		methodNotAllowed(w)
	}
}

// Item handles /api/sessions/{id} and its sub-resources.
func (h *SessionHandler) Item(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(rest, "/", 2)
	id := parts[0]
	if id == "" {
		writeError(w, errors.New(errors.ErrInvalid, "session id is required"))
		return
	}

	if len(parts) == 2 {
		switch parts[1] {
		case "drawing":
			h.uploadDrawing(w, r, id)
		case "drawing-url":
			h.resolveDrawing(w, r, id)
		default:
			writeError(w, errors.Newf(errors.ErrNotFound, "unknown resource %q", parts[1]))
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		session, err := h.local.Get(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)

	case http.MethodPut:
		var session models.GameSession
		if err := json.NewDecoder(r.Body).Decode(&session); err != nil {
			writeError(w, errors.Wrap(errors.ErrInvalid, "malformed session", err))
			return
		}
		session.ID = models.UUID(id)
		session.Touch()
		if err := h.local.Update(r.Context(), &session); err != nil {
			writeError(w, err)
			return
		}
		if h.controller != nil {
			h.controller.AddPendingOperation(id, models.PendingUpdate)
		}
		writeJSON(w, http.StatusOK, &session)

	case http.MethodDelete:
		if err := h.local.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		if h.controller != nil {
			h.controller.AddPendingOperation(id, models.PendingDelete)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": id})

	default:
		methodNotAllowed(w)
	}
}

// uploadDrawing handles POST /api/sessions/{id}/drawing. The body is
// the raw canvas export; the response carries the stored public URL.
func (h *SessionHandler) uploadDrawing(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if h.transfer == nil {
		writeError(w, errors.New(errors.ErrSyncNotConfigured, "cloud backend is not configured"))
		return
	}

	session, err := h.local.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := session.UserID
	if userID == "" {
		userID = "anonymous"
	}

	data := make([]byte, 0, 64<<10)
	buf := make([]byte, 32<<10)
	for {
		n, readErr := r.Body.Read(buf)
		data = append(data, buf[:n]...)
		if readErr != nil {
			break
		}
		if len(data) > 10<<20 {
			writeError(w, errors.New(errors.ErrInvalid, "drawing exceeds 10 MiB"))
			return
		}
	}
	if len(data) == 0 {
		writeError(w, errors.New(errors.ErrInvalid, "drawing body is empty"))
		return
	}

	url, err := h.transfer.UploadDrawingData(r.Context(), userID, id, data)
	if err != nil {
		writeError(w, err)
		return
	}

	session.DrawingURL = url
	session.Touch()
	if err := h.local.Update(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	if h.controller != nil {
		h.controller.AddPendingOperation(id, models.PendingUpdate)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"drawing_url": url})
}

// resolveDrawing handles GET /api/sessions/{id}/drawing-url.
func (h *SessionHandler) resolveDrawing(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if h.transfer == nil {
		writeError(w, errors.New(errors.ErrSyncNotConfigured, "cloud backend is not configured"))
		return
	}

	session, err := h.local.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	userID := session.UserID
	if userID == "" {
		userID = "anonymous"
	}

	url, err := h.transfer.ResolveDrawingURL(r.Context(), userID, id, r.URL.Query().Get("fallback"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"drawing_url": url})
}

var _ DrawingTransfer = (*assets.Transfer)(nil)
