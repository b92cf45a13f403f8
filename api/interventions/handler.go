// Package interventions exposes the dispatch lifecycle over a JSON HTTP API.
// Business refusals come back as 200 responses with success=false; only
// infrastructure failures map to 5xx.
package interventions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nroult/fieldops/core/dispatch"
	"github.com/nroult/fieldops/core/store"
	"github.com/nroult/fieldops/infra/logger"
)

// actionRequest is the shared body of the lifecycle endpoints.
type actionRequest struct {
	InterventionID string `json:"intervention_id"`
	TechnicianID   string `json:"technician_id"`
	Reason         string `json:"reason"`
}

// Handler routes the dispatch API.
type Handler struct {
	engine *dispatch.Engine
	log    logger.Logger
	mux    *http.ServeMux
}

// NewHandler builds the API around the engine.
func NewHandler(engine *dispatch.Engine) *Handler {
	h := &Handler{engine: engine, log: logger.New("api"), mux: http.NewServeMux()}
	h.mux.HandleFunc("/api/interventions/dispatch", h.dispatch)
	h.mux.HandleFunc("/api/interventions/accept", h.action(engine.Accept))
	h.mux.HandleFunc("/api/interventions/reject", h.action(engine.Reject))
	h.mux.HandleFunc("/api/interventions/decline", h.actionWithReason(engine.Decline))
	h.mux.HandleFunc("/api/interventions/cancel", h.actionWithReason(engine.Cancel))
	h.mux.HandleFunc("/api/interventions/go", h.action(engine.Go))
	h.mux.HandleFunc("/api/interventions/timeout-check", h.timeoutCheck)
	h.mux.HandleFunc("/api/interventions/attempts", h.attempts)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, needTechnician bool) (actionRequest, bool) {
	var req actionRequest
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return req, false
	}
	if strings.TrimSpace(req.InterventionID) == "" {
		http.Error(w, "intervention_id is required", http.StatusBadRequest)
		return req, false
	}
	if needTechnician && strings.TrimSpace(req.TechnicianID) == "" {
		http.Error(w, "technician_id is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func (h *Handler) writeResult(w http.ResponseWriter, v any, err error) {
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "intervention not found", http.StatusNotFound)
			return
		}
		h.log.Errorf("api error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, false)
	if !ok {
		return
	}
	res, err := h.engine.Dispatch(r.Context(), req.InterventionID)
	h.writeResult(w, res, err)
}

func (h *Handler) action(fn func(ctx context.Context, interventionID, technicianID string) (dispatch.ActionResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decode(w, r, true)
		if !ok {
			return
		}
		res, err := fn(r.Context(), req.InterventionID, req.TechnicianID)
		h.writeResult(w, res, err)
	}
}

func (h *Handler) actionWithReason(fn func(ctx context.Context, interventionID, technicianID, reason string) (dispatch.ActionResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decode(w, r, true)
		if !ok {
			return
		}
		res, err := fn(r.Context(), req.InterventionID, req.TechnicianID, req.Reason)
		h.writeResult(w, res, err)
	}
}

func (h *Handler) timeoutCheck(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r, false)
	if !ok {
		return
	}
	res, err := h.engine.CheckTimeout(r.Context(), req.InterventionID)
	h.writeResult(w, res, err)
}

func (h *Handler) attempts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := r.URL.Query().Get("intervention_id")
	if id == "" {
		http.Error(w, "intervention_id is required", http.StatusBadRequest)
		return
	}
	attempts, err := h.engine.AttemptHistory(r.Context(), id)
	h.writeResult(w, attempts, err)
}
