package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"sandplane/internal/orchestrator"
	"sandplane/internal/provider"
	"sandplane/internal/store"

	"github.com/google/uuid"
)

// Mock Store
type mockStore struct {
	pingErr error

	// Execution Hooks
	getExecutionResp *store.Execution
	getExecutionErr  error

	// Log Hooks
	getLogsResp   []store.LogEntry
	getLogsTotal  int64
	getLogsErr    error
	searchLogsErr error

	// Artifact Hooks
	listArtifactsResp []store.Artifact
	listArtifactsErr  error
	getArtifactResp   *store.Artifact
	getArtifactErr    error
	deleteArtifactErr error

	// Spies (to verify arguments passed by handlers)
	capturedLimit  int
	capturedOffset int
	capturedFilter store.LogFilter
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) CreateExecution(ctx context.Context, execution *store.Execution) error {
	return nil
}

func (m *mockStore) GetExecutionByID(ctx context.Context, id uuid.UUID) (*store.Execution, error) {
	if m.getExecutionErr != nil {
		return nil, m.getExecutionErr
	}
	return m.getExecutionResp, nil
}

func (m *mockStore) SetExecutionStatus(ctx context.Context, id uuid.UUID, status store.ExecutionStatus) error {
	return nil
}

func (m *mockStore) MarkStarted(ctx context.Context, id uuid.UUID, containerID string) error {
	return nil
}

func (m *mockStore) MarkEnded(ctx context.Context, id uuid.UUID, status store.ExecutionStatus, errorMessage *string) error {
	return nil
}

func (m *mockStore) CountRunning(ctx context.Context) (int64, error) { return 0, nil }

func (m *mockStore) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *mockStore) AppendLog(ctx context.Context, executionID uuid.UUID, level string, source store.LogSource, message string) (int64, error) {
	return 0, nil
}

func (m *mockStore) GetLogs(ctx context.Context, executionID uuid.UUID, limit, offset int) ([]store.LogEntry, int64, error) {
	m.capturedLimit = limit
	m.capturedOffset = offset
	if m.getLogsErr != nil {
		return nil, 0, m.getLogsErr
	}
	return m.getLogsResp, m.getLogsTotal, nil
}

func (m *mockStore) SearchLogs(ctx context.Context, executionID uuid.UUID, filter store.LogFilter, limit, offset int) ([]store.LogEntry, int64, error) {
	m.capturedFilter = filter
	m.capturedLimit = limit
	m.capturedOffset = offset
	if m.searchLogsErr != nil {
		return nil, 0, m.searchLogsErr
	}
	return m.getLogsResp, m.getLogsTotal, nil
}

func (m *mockStore) GetLogsAfterSequence(ctx context.Context, executionID uuid.UUID, after int64, limit int) ([]store.LogEntry, error) {
	return nil, nil
}

func (m *mockStore) CreateArtifact(ctx context.Context, artifact *store.Artifact) error { return nil }

func (m *mockStore) ListArtifacts(ctx context.Context, executionID uuid.UUID) ([]store.Artifact, error) {
	if m.listArtifactsErr != nil {
		return nil, m.listArtifactsErr
	}
	return m.listArtifactsResp, nil
}

func (m *mockStore) GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error) {
	if m.getArtifactErr != nil {
		return nil, m.getArtifactErr
	}
	return m.getArtifactResp, nil
}

func (m *mockStore) DeleteArtifact(ctx context.Context, id uuid.UUID) error {
	return m.deleteArtifactErr
}

// Mock Lifecycle
type mockLifecycle struct {
	stopErr   error
	retryResp *store.Execution
	retryErr  error

	capturedContainerID string
	capturedGrace       time.Duration
	capturedRetry       orchestrator.RetryRequest
}

func (m *mockLifecycle) Stop(ctx context.Context, executionID uuid.UUID, containerID string, gracePeriod time.Duration) error {
	m.capturedContainerID = containerID
	m.capturedGrace = gracePeriod
	return m.stopErr
}

func (m *mockLifecycle) Retry(ctx context.Context, parentID uuid.UUID, req orchestrator.RetryRequest) (*store.Execution, error) {
	m.capturedRetry = req
	if m.retryErr != nil {
		return nil, m.retryErr
	}
	return m.retryResp, nil
}

// Mock Streamer
type mockStreamer struct {
	served       bool
	lastSequence int64
}

func (m *mockStreamer) ServeLogs(w http.ResponseWriter, r *http.Request, executionID uuid.UUID, lastSequence int64) {
	m.served = true
	m.lastSequence = lastSequence
	w.WriteHeader(http.StatusOK)
}

func newTestHandlers(t *testing.T, s *mockStore, lc *mockLifecycle, sm *mockStreamer) *Handlers {
	t.Helper()
	registry, err := provider.LoadRegistry()
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}
	if s == nil {
		s = &mockStore{}
	}
	if lc == nil {
		lc = &mockLifecycle{}
	}
	if sm == nil {
		sm = &mockStreamer{}
	}
	return New(s, lc, registry, sm, 10*time.Second)
}
