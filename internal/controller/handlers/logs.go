package handlers

import (
	"net/http"
	"strconv"

	"sandplane/internal/store"
	"sandplane/pkg/api"

	"github.com/google/uuid"
)

// GetLogs handles GET /executions/{id}/logs?limit&offset.
func (h *Handlers) GetLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	executionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid execution id", http.StatusBadRequest)
		return
	}

	limit, offset := parsePagination(r)
	entries, total, err := h.store.GetLogs(ctx, executionID, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, toLogsResponse(entries, total))
}

// SearchLogs handles GET /executions/{id}/logs/search?logLevel&source&search&limit&offset.
// Filters are independently optional and combine with AND semantics.
func (h *Handlers) SearchLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	executionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid execution id", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	filter := store.LogFilter{
		Level:  query.Get("logLevel"),
		Source: query.Get("source"),
		Text:   query.Get("search"),
	}

	limit, offset := parsePagination(r)
	entries, total, err := h.store.SearchLogs(ctx, executionID, filter, limit, offset)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJson(w, http.StatusOK, toLogsResponse(entries, total))
}

// StreamLogs handles GET /executions/{id}/logs/stream?lastSequence (SSE).
// A lastSequence resumes the stream after the given sequence number.
func (h *Handlers) StreamLogs(w http.ResponseWriter, r *http.Request) {
	executionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid execution id", http.StatusBadRequest)
		return
	}

	var lastSequence int64
	if v := r.URL.Query().Get("lastSequence"); v != "" {
		lastSequence, err = strconv.ParseInt(v, 10, 64)
		if err != nil || lastSequence < 0 {
			h.httpError(w, "Invalid lastSequence", http.StatusBadRequest)
			return
		}
	}

	// Reject unknown ids before a connection slot is acquired; otherwise the
	// stream would heartbeat forever over an execution that does not exist.
	if _, err := h.store.GetExecutionByID(r.Context(), executionID); err != nil {
		h.respondError(w, err)
		return
	}

	h.streamer.ServeLogs(w, r, executionID, lastSequence)
}

func toLogsResponse(entries []store.LogEntry, total int64) api.GetLogsResponse {
	logs := make([]api.LogEntry, 0, len(entries))
	for _, e := range entries {
		logs = append(logs, api.LogEntry{
			Sequence:  e.Sequence,
			Level:     e.Level,
			Source:    string(e.Source),
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	return api.GetLogsResponse{Logs: logs, Total: total}
}
