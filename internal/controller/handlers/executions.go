package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"sandplane/internal/orchestrator"
	"sandplane/pkg/api"

	"github.com/google/uuid"
)

func retryRequest(req api.RetryExecutionRequest) orchestrator.RetryRequest {
	return orchestrator.RetryRequest{
		TaskID:     req.TaskID,
		AgentID:    req.AgentID,
		Model:      req.Model,
		ProviderID: req.Provider,
	}
}

// GetExecution handles GET /executions/{id}.
func (h *Handlers) GetExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	executionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid execution id", http.StatusBadRequest)
		return
	}

	execution, err := h.store.GetExecutionByID(ctx, executionID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, toExecutionResponse(execution))
}

// StopExecution handles POST /executions/{id}/stop.
// The container is asked to shut down cooperatively within the grace period
// and force-removed afterwards.
func (h *Handlers) StopExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	executionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid execution id", http.StatusBadRequest)
		return
	}

	var req api.StopExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid body", http.StatusBadRequest)
		return
	}

	grace := h.defaultGrace
	if req.GracePeriodSecs > 0 {
		grace = time.Duration(req.GracePeriodSecs) * time.Second
	}

	if err := h.lifecycle.Stop(ctx, executionID, req.ContainerID, grace); err != nil {
		h.respondError(w, err)
		return
	}

	execution, err := h.store.GetExecutionByID(ctx, executionID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, toExecutionResponse(execution))
}

// RetryExecution handles POST /executions/{id}/retry.
// A retry creates a new execution linked to the terminal parent; the parent
// and its container are never touched.
func (h *Handlers) RetryExecution(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	parentID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid execution id", http.StatusBadRequest)
		return
	}

	var req api.RetryExecutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid body", http.StatusBadRequest)
		return
	}
	if req.TaskID == "" {
		h.httpError(w, "taskId is required", http.StatusBadRequest)
		return
	}

	execution, err := h.lifecycle.Retry(ctx, parentID, retryRequest(req))
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJson(w, http.StatusCreated, api.RetryExecutionResponse{
		ExecutionID:  execution.ID.String(),
		RetryAttempt: execution.RetryAttempt,
	})
}
