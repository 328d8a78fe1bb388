package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/wardenhq/warden/pkg/principals"
	"github.com/wardenhq/warden/pkg/suspension"
)

// Engine is the suspension core's operation surface, as consumed by the
// transport layer.
type Engine interface {
	Suspend(ctx context.Context, principalID, actorID int64, reason string) (*suspension.Record, error)
	Resume(ctx context.Context, principalID, actorID int64) (*suspension.Record, error)
}

// Revoker exposes bulk credential revocation.
type Revoker interface {
	RevokeAll(ctx context.Context, principalIDs []int64) (int, error)
}

// StatusChecker reports derived suspension state.
type StatusChecker interface {
	IsEffectivelySuspended(ctx context.Context, principalID int64) (bool, error)
}

// Handlers maps the suspension core's external operations onto HTTP.
// Authentication/authorization middleware belongs to the caller; these
// handlers only translate requests and the core's error taxonomy.
type Handlers struct {
	engine  Engine
	revoker Revoker
	checker StatusChecker
}

// NewHandlers creates the admin API handlers.
func NewHandlers(engine Engine, revoker Revoker, checker StatusChecker) *Handlers {
	return &Handlers{engine: engine, revoker: revoker, checker: checker}
}

// RegisterRoutes registers the admin API routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/v1/principals/{id}/suspend", h.Suspend).Methods("POST")
	router.HandleFunc("/v1/principals/{id}/resume", h.Resume).Methods("POST")
	router.HandleFunc("/v1/principals/{id}/effective-status", h.EffectiveStatus).Methods("GET")
	router.HandleFunc("/v1/sessions/revoke", h.RevokeSessions).Methods("POST")
}

type suspendRequest struct {
	ActorID int64  `json:"actor_id"`
	Reason  string `json:"reason"`
}

type resumeRequest struct {
	ActorID int64 `json:"actor_id"`
}

type revokeRequest struct {
	PrincipalIDs []int64 `json:"principal_ids"`
}

// Suspend handles POST /v1/principals/{id}/suspend.
func (h *Handlers) Suspend(w http.ResponseWriter, r *http.Request) {
	principalID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req suspendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.engine.Suspend(r.Context(), principalID, req.ActorID, req.Reason)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Resume handles POST /v1/principals/{id}/resume.
func (h *Handlers) Resume(w http.ResponseWriter, r *http.Request) {
	principalID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.engine.Resume(r.Context(), principalID, req.ActorID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// EffectiveStatus handles GET /v1/principals/{id}/effective-status.
func (h *Handlers) EffectiveStatus(w http.ResponseWriter, r *http.Request) {
	principalID, ok := pathID(w, r)
	if !ok {
		return
	}

	suspended, err := h.checker.IsEffectivelySuspended(r.Context(), principalID)
	if err != nil {
		if errors.Is(err, principals.ErrNotFound) {
			writeError(w, http.StatusNotFound, "principal not found")
			return
		}
		logrus.WithError(err).Error("effective status check failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"principal_id":          principalID,
		"effectively_suspended": suspended,
	})
}

// RevokeSessions handles POST /v1/sessions/revoke.
func (h *Handlers) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.PrincipalIDs) == 0 {
		writeError(w, http.StatusBadRequest, "principal_ids is required")
		return
	}

	count, err := h.revoker.RevokeAll(r.Context(), req.PrincipalIDs)
	if err != nil {
		logrus.WithError(err).Error("bulk revocation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"revoked": count})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid principal id")
		return 0, false
	}
	return id, true
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, suspension.ErrNotFound):
		writeError(w, http.StatusNotFound, "principal not found")
	case errors.Is(err, suspension.ErrAlreadyInTargetState):
		writeError(w, http.StatusConflict, "principal already in target state")
	default:
		logrus.WithError(err).Error("suspension operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
