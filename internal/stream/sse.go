package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
	"unicode/utf8"

	"sandplane/internal/store"
	"sandplane/pkg/api"

	"github.com/google/uuid"
)

const (
	// maxEventBytes caps a single event payload; larger log entries are
	// replaced by a compact summary event.
	maxEventBytes = 64 * 1024

	// summaryPreviewBytes is how much of an oversized message survives in
	// the summary event.
	summaryPreviewBytes = 256

	defaultHeartbeatInterval = 15 * time.Second
	defaultPollInterval      = time.Second
	tailBatchSize            = 500
)

// TailStore is the storage slice the streamer needs to follow an execution.
type TailStore interface {
	GetExecutionByID(ctx context.Context, id uuid.UUID) (*store.Execution, error)
	GetLogsAfterSequence(ctx context.Context, executionID uuid.UUID, after int64, limit int) ([]store.LogEntry, error)
}

// Streamer pushes log entries of one execution to an SSE subscriber, gated by
// the per-IP connection tracker.
type Streamer struct {
	store     TailStore
	tracker   *Tracker
	log       *slog.Logger
	heartbeat time.Duration
	poll      time.Duration
}

// NewStreamer creates a streamer with production intervals.
func NewStreamer(st TailStore, tracker *Tracker, log *slog.Logger) *Streamer {
	return &Streamer{
		store:     st,
		tracker:   tracker,
		log:       log,
		heartbeat: defaultHeartbeatInterval,
		poll:      defaultPollInterval,
	}
}

// Tracker exposes the admission tracker, e.g. for metrics.
func (s *Streamer) Tracker() *Tracker { return s.tracker }

// ServeLogs streams entries with sequence > lastSequence until the execution
// reaches a terminal status or the client disconnects. The connection slot is
// released on every exit path.
func (s *Streamer) ServeLogs(w http.ResponseWriter, r *http.Request, executionID uuid.UUID, lastSequence int64) {
	ip := clientIP(r)

	guard, err := s.tracker.TryAcquire(ip)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(api.ErrorResponse{
			Error: err.Error(),
			Code:  "connection_limit_exceeded",
		})
		return
	}
	defer guard.Release()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	poll := time.NewTicker(s.poll)
	defer poll.Stop()

	// First batch immediately so resumption does not wait a poll interval.
	lastSequence, done := s.push(ctx, w, flusher, executionID, lastSequence)
	if done {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-heartbeat.C:
			// Keeps intermediary proxies and browsers from timing out the
			// connection during quiet executions.
			fmt.Fprintf(w, "event: heartbeat\ndata: {\"ts\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-poll.C:
			lastSequence, done = s.push(ctx, w, flusher, executionID, lastSequence)
			if done {
				return
			}
		}
	}
}

// push sends all entries newer than after and reports the new cursor. done is
// true once the execution is terminal and fully drained.
func (s *Streamer) push(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, executionID uuid.UUID, after int64) (int64, bool) {
	for {
		entries, err := s.store.GetLogsAfterSequence(ctx, executionID, after, tailBatchSize)
		if err != nil {
			s.log.Warn("log tail query failed", "execution_id", executionID, "error", err)
			return after, false
		}

		for _, entry := range entries {
			s.writeEvent(w, entry)
			after = entry.Sequence
		}
		if len(entries) > 0 {
			flusher.Flush()
		}
		if len(entries) == tailBatchSize {
			continue
		}

		execution, err := s.store.GetExecutionByID(ctx, executionID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// The row was deleted mid-stream (retention); there is
				// nothing left to follow.
				fmt.Fprint(w, "event: end\ndata: {\"status\":\"deleted\"}\n\n")
				flusher.Flush()
				return after, true
			}
			s.log.Warn("execution lookup failed during stream", "execution_id", executionID, "error", err)
			return after, false
		}
		if execution.Status.Terminal() {
			fmt.Fprintf(w, "event: end\ndata: {\"status\":%q}\n\n", execution.Status)
			flusher.Flush()
			return after, true
		}
		return after, false
	}
}

func (s *Streamer) writeEvent(w http.ResponseWriter, entry store.LogEntry) {
	payload, err := json.Marshal(api.LogEntry{
		Sequence:  entry.Sequence,
		Level:     entry.Level,
		Source:    string(entry.Source),
		Message:   entry.Message,
		CreatedAt: entry.CreatedAt,
	})
	if err != nil {
		s.log.Warn("failed to marshal log event", "error", err)
		return
	}

	if len(payload) > maxEventBytes {
		s.writeSummaryEvent(w, entry, len(payload))
		return
	}

	fmt.Fprintf(w, "id: %d\nevent: log\ndata: %s\n\n", entry.Sequence, payload)
}

// writeSummaryEvent replaces an oversized payload with a compact summary to
// bound per-event memory and bandwidth.
func (s *Streamer) writeSummaryEvent(w http.ResponseWriter, entry store.LogEntry, size int) {
	preview := entry.Message
	if len(preview) > summaryPreviewBytes {
		cut := summaryPreviewBytes
		// Back up to a rune boundary so the preview stays valid UTF-8.
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}

	summary, err := json.Marshal(map[string]interface{}{
		"sequence":   entry.Sequence,
		"level":      entry.Level,
		"source":     entry.Source,
		"truncated":  true,
		"size_bytes": size,
		"preview":    preview,
	})
	if err != nil {
		s.log.Warn("failed to marshal summary event", "error", err)
		return
	}

	fmt.Fprintf(w, "id: %d\nevent: log-summary\ndata: %s\n\n", entry.Sequence, summary)
}

// clientIP extracts the client address without the port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
