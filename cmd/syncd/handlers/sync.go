// Package handlers provides the REST surface of the sync daemon.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/drawguess/backend/internal/errors"
	"github.com/drawguess/backend/internal/models"
	"github.com/drawguess/backend/internal/store"
)

// SyncController is the orchestrator surface the handlers drive.
type SyncController interface {
	Start(ctx context.Context) error
	Stop()
	Active() bool
	Status() models.SyncStatus
	TriggerSync(ctx context.Context, opts *models.SyncOptions) error
	AddPendingOperation(id string, kind models.PendingKind)
	ResolveConflict(ctx context.Context, conflict *models.SyncConflict, resolution models.Resolution) error
}

// SyncHandler handles sync control and status endpoints.
type SyncHandler struct {
	controller SyncController
	local      *store.Local
}

// NewSyncHandler creates a SyncHandler. A nil controller means the
// cloud backend is not configured; sync endpoints then report
// SYNC_NOT_CONFIGURED instead of acting.
func NewSyncHandler(controller SyncController, local *store.Local) *SyncHandler {
	return &SyncHandler{controller: controller, local: local}
}

// requireController writes a configuration error when sync is disabled.
func (h *SyncHandler) requireController(w http.ResponseWriter) bool {
	if h.controller == nil {
		writeError(w, errors.New(errors.ErrSyncNotConfigured, "cloud backend is not configured"))
		return false
	}
	return true
}

// Start handles POST /api/sync/start.
func (h *SyncHandler) Start(w http.ResponseWriter, r *http.Request) {
	if !h.requireController(w) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := h.controller.Start(context.Background()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": true})
}

// Stop handles POST /api/sync/stop.
func (h *SyncHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.requireController(w) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	h.controller.Stop()
	writeJSON(w, http.StatusOK, map[string]interface{}{"active": false})
}

// Trigger handles POST /api/sync/trigger. An empty body uses the
// orchestrator's configured options.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if !h.requireController(w) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var opts *models.SyncOptions
	if r.Body != nil && r.ContentLength != 0 {
		opts = &models.SyncOptions{}
		if err := json.NewDecoder(r.Body).Decode(opts); err != nil {
			writeError(w, errors.Wrap(errors.ErrInvalid, "malformed sync options", err))
			return
		}
	}

	if err := h.controller.TriggerSync(r.Context(), opts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// Status handles GET /api/sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !h.requireController(w) {
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	status := h.controller.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active": h.controller.Active(),
		"status": status,
	})
}

// pendingRequest is the body of POST /api/sync/pending.
type pendingRequest struct {
	ID   string             `json:"id"`
	Kind models.PendingKind `json:"kind"`
}

// Pending handles POST /api/sync/pending, recording a local mutation
// for the next incremental cycle.
func (h *SyncHandler) Pending(w http.ResponseWriter, r *http.Request) {
	if !h.requireController(w) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req pendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "malformed pending operation", err))
		return
	}
	if req.ID == "" {
		writeError(w, errors.New(errors.ErrInvalid, "pending operation id is required"))
		return
	}
	switch req.Kind {
	case models.PendingCreate, models.PendingUpdate, models.PendingDelete:
	default:
		writeError(w, errors.Newf(errors.ErrInvalid, "unknown pending operation kind %q", req.Kind))
		return
	}

	h.controller.AddPendingOperation(req.ID, req.Kind)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"pending": h.controller.Status().Pending})
}

// resolveRequest is the body of POST /api/sync/conflicts/resolve.
type resolveRequest struct {
	SessionID  string            `json:"session_id"`
	Resolution models.Resolution `json:"resolution"`
}

// Resolve handles POST /api/sync/conflicts/resolve, settling a conflict
// that was deferred under the ask policy.
func (h *SyncHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if !h.requireController(w) {
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Wrap(errors.ErrInvalid, "malformed resolve request", err))
		return
	}

	var conflict *models.SyncConflict
	for _, c := range h.controller.Status().Conflicts {
		if c.SessionID.String() == req.SessionID {
			conflict = c
			break
		}
	}
	if conflict == nil {
		writeError(w, errors.Newf(errors.ErrNotFound, "no outstanding conflict for session %s", req.SessionID))
		return
	}

	if err := h.controller.ResolveConflict(r.Context(), conflict, req.Resolution); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Status())
}

// ConflictLog handles GET /api/sync/conflicts/log.
func (h *SyncHandler) ConflictLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	recs, err := h.local.ListConflicts(r.Context(), 100)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []*models.ConflictRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// writeError maps an application error onto an HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrInvalid, errors.ErrValidation, errors.ErrSyncResolution:
		status = http.StatusBadRequest
	case errors.ErrNotFound, errors.ErrAssetNotFound:
		status = http.StatusNotFound
	case errors.ErrSyncInactive, errors.ErrSyncNotConfigured:
		status = http.StatusConflict
	case errors.ErrRemoteUnavailable:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]interface{}{
		"error_code": code,
		"error":      err.Error(),
	})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"error_code": errors.ErrInvalid,
		"error":      "method not allowed",
	})
}
