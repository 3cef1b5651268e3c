// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sandplane/internal/orchestrator"
	"sandplane/internal/provider"
	"sandplane/internal/store"
	"sandplane/internal/stream"
	"sandplane/pkg/api"

	"github.com/google/uuid"
)

// Lifecycle is the orchestrator surface the handlers need.
type Lifecycle interface {
	Stop(ctx context.Context, executionID uuid.UUID, containerID string, gracePeriod time.Duration) error
	Retry(ctx context.Context, parentID uuid.UUID, req orchestrator.RetryRequest) (*store.Execution, error)
}

// StoreFactory combines the interfaces needed for the controller to function.
type StoreFactory interface {
	Ping(ctx context.Context) error
	store.ExecutionStore
	store.LogStore
	store.ArtifactStore
}

// LogStreamer serves an SSE log stream for one execution.
type LogStreamer interface {
	ServeLogs(w http.ResponseWriter, r *http.Request, executionID uuid.UUID, lastSequence int64)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	store        StoreFactory
	lifecycle    Lifecycle
	registry     *provider.Registry
	streamer     LogStreamer
	defaultGrace time.Duration
}

// New creates a new Handlers instance.
func New(s StoreFactory, lifecycle Lifecycle, registry *provider.Registry, streamer LogStreamer, defaultGrace time.Duration) *Handlers {
	if defaultGrace <= 0 {
		defaultGrace = 10 * time.Second
	}
	return &Handlers{
		store:        s,
		lifecycle:    lifecycle,
		registry:     registry,
		streamer:     streamer,
		defaultGrace: defaultGrace,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// respondError maps domain errors to HTTP status codes and writes the
// standard error body.
func (h *Handlers) respondError(w http.ResponseWriter, err error) {
	h.httpError(w, err.Error(), statusFromError(err))
}

func statusFromError(err error) int {
	var (
		providerNotFound *provider.NotFoundError
		conflict         *orchestrator.ConflictError
		notSupported     *provider.NotSupportedError
		notAvailable     *provider.NotAvailableError
		connLimit        *stream.ConnectionLimitError
	)
	switch {
	case errors.Is(err, store.ErrNotFound) || errors.As(err, &providerNotFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &notSupported):
		return http.StatusNotImplemented
	case errors.As(err, &notAvailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &connLimit):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// parsePagination reads limit/offset query parameters with sane bounds.
func parsePagination(r *http.Request) (limit, offset int) {
	limit = 100
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func toExecutionResponse(e *store.Execution) api.ExecutionResponse {
	resp := api.ExecutionResponse{
		ID:           e.ID.String(),
		TaskID:       e.TaskID,
		ProviderID:   e.ProviderID,
		Status:       string(e.Status),
		RetryAttempt: e.RetryAttempt,
		Error:        e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
		StartedAt:    e.StartedAt,
		EndedAt:      e.EndedAt,
	}
	if e.ContainerID != nil {
		resp.ContainerID = *e.ContainerID
	}
	if e.RetriedFrom != nil {
		parent := e.RetriedFrom.String()
		resp.RetriedFrom = &parent
	}
	return resp
}
