package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"sandplane/internal/provider"
	"sandplane/internal/sandbox"
	"sandplane/internal/store"

	"github.com/google/uuid"
)

// memStore is an in-memory Store for orchestrator tests.
type memStore struct {
	mu         sync.Mutex
	executions map[uuid.UUID]*store.Execution
	logs       map[uuid.UUID][]store.LogEntry
}

func newMemStore() *memStore {
	return &memStore{
		executions: make(map[uuid.UUID]*store.Execution),
		logs:       make(map[uuid.UUID][]store.LogEntry),
	}
}

func (m *memStore) CreateExecution(ctx context.Context, e *store.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.executions[e.ID] = &cp
	return nil
}

func (m *memStore) GetExecutionByID(ctx context.Context, id uuid.UUID) (*store.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, fmt.Errorf("execution %s: %w", id, store.ErrNotFound)
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) SetExecutionStatus(ctx context.Context, id uuid.UUID, status store.ExecutionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Status = status
	return nil
}

func (m *memStore) MarkStarted(ctx context.Context, id uuid.UUID, containerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	e.Status = store.ExecutionStatusRunning
	e.ContainerID = &containerID
	e.StartedAt = &now
	return nil
}

func (m *memStore) MarkEnded(ctx context.Context, id uuid.UUID, status store.ExecutionStatus, errorMessage *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	e.Status = status
	e.ErrorMessage = errorMessage
	e.EndedAt = &now
	return nil
}

func (m *memStore) CountRunning(ctx context.Context) (int64, error) { return 0, nil }

func (m *memStore) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) AppendLog(ctx context.Context, executionID uuid.UUID, level string, source store.LogSource, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := int64(len(m.logs[executionID]) + 1)
	m.logs[executionID] = append(m.logs[executionID], store.LogEntry{
		ExecutionID: executionID,
		Sequence:    seq,
		Level:       level,
		Source:      source,
		Message:     message,
		CreatedAt:   time.Now().UTC(),
	})
	return seq, nil
}

func (m *memStore) GetLogs(ctx context.Context, executionID uuid.UUID, limit, offset int) ([]store.LogEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	logs := m.logs[executionID]
	return logs, int64(len(logs)), nil
}

func (m *memStore) SearchLogs(ctx context.Context, executionID uuid.UUID, filter store.LogFilter, limit, offset int) ([]store.LogEntry, int64, error) {
	return m.GetLogs(ctx, executionID, limit, offset)
}

func (m *memStore) GetLogsAfterSequence(ctx context.Context, executionID uuid.UUID, after int64, limit int) ([]store.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.LogEntry
	for _, l := range m.logs[executionID] {
		if l.Sequence > after {
			out = append(out, l)
		}
	}
	return out, nil
}

// fakeRuntime is a controllable Provider with Waiter/LogStreamer support.
type fakeRuntime struct {
	mu          sync.Mutex
	createErrs  []error // popped per CreateContainer call
	createHangs bool    // CreateContainer blocks until ctx expires
	startErr    error
	stopErr     error
	created     int
	stopped     []string
	removed     []string
	exitCode    int
	exitCh      chan struct{} // WaitContainer blocks until closed (nil: immediate)
	logOutput   string
	stopGraces  []int
}

func (f *fakeRuntime) Name() string { return "docker" }

func (f *fakeRuntime) CreateContainer(ctx context.Context, cfg provider.ContainerConfig) (string, error) {
	if f.createHangs {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.created++
	return fmt.Sprintf("c-%d", f.created), nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, containerID string) error {
	return f.startErr
}

func (f *fakeRuntime) StopContainer(ctx context.Context, containerID string, gracePeriodSecs int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopErr != nil {
		return f.stopErr
	}
	f.stopped = append(f.stopped, containerID)
	f.stopGraces = append(f.stopGraces, gracePeriodSecs)
	if f.exitCh != nil {
		select {
		case <-f.exitCh:
		default:
			close(f.exitCh)
		}
	}
	return nil
}

func (f *fakeRuntime) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, containerID)
	return nil
}

func (f *fakeRuntime) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeRuntime) GetInfo(ctx context.Context) provider.Info {
	return provider.Info{Name: "docker", Status: provider.StatusAvailable}
}

func (f *fakeRuntime) WaitContainer(ctx context.Context, containerID string) (int, error) {
	if f.exitCh != nil {
		select {
		case <-f.exitCh:
		case <-ctx.Done():
			return -1, ctx.Err()
		}
	}
	return f.exitCode, nil
}

func (f *fakeRuntime) StreamLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.logOutput)), nil
}

type staticConfigs struct{}

func (staticConfigs) BuildContainerConfig(ctx context.Context, taskID, agentID, model string) (provider.ContainerConfig, error) {
	return provider.ContainerConfig{
		Name:    "task-" + taskID,
		Image:   "ubuntu:24.04",
		Command: []string{"echo", "hello"},
	}, nil
}

func newTestOrchestrator(t *testing.T, rt provider.Provider) (*Orchestrator, *memStore) {
	t.Helper()

	reg, err := provider.LoadRegistry()
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}

	mgr := sandbox.NewManager()
	mgr.RegisterProvider("docker", rt)

	st := newMemStore()
	o := New(mgr, reg, st, staticConfigs{}, slog.New(slog.DiscardHandler), Options{
		RetryBackoff: time.Millisecond,
	})
	return o, st
}

func waitForStatus(t *testing.T, st *memStore, id uuid.UUID, want store.ExecutionStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		e, err := st.GetExecutionByID(context.Background(), id)
		if err == nil && e.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	e, _ := st.GetExecutionByID(context.Background(), id)
	t.Fatalf("execution never reached %s, last status %v", want, e.Status)
}

func TestStart_RunsAndCompletes(t *testing.T) {
	rt := &fakeRuntime{exitCode: 0, logOutput: "line one\nline two\n"}
	o, st := newTestOrchestrator(t, rt)

	execution, err := o.Start(context.Background(), StartRequest{
		TaskID:     "task-1",
		ProviderID: "docker",
		Config:     provider.ContainerConfig{Image: "ubuntu:24.04", Command: []string{"true"}},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if execution.ContainerID == nil || *execution.ContainerID != "c-1" {
		t.Errorf("expected container c-1, got %v", execution.ContainerID)
	}

	waitForStatus(t, st, execution.ID, store.ExecutionStatusCompleted)

	logs, _, _ := st.GetLogs(context.Background(), execution.ID, 100, 0)
	if len(logs) != 2 {
		t.Errorf("expected 2 shipped log lines, got %d", len(logs))
	}
	for i, l := range logs {
		if l.Sequence != int64(i+1) {
			t.Errorf("log %d has sequence %d, want %d", i, l.Sequence, i+1)
		}
	}
}

func TestStart_UnknownProviderRejected(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeRuntime{})

	_, err := o.Start(context.Background(), StartRequest{TaskID: "t", ProviderID: "nope"})
	var notFound *provider.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("want NotFoundError, got %v", err)
	}
}

func TestStart_FatalCreateErrorFailsExecution(t *testing.T) {
	rt := &fakeRuntime{createErrs: []error{
		&provider.FatalError{Provider: "docker", Err: errors.New("quota exceeded")},
	}}
	o, st := newTestOrchestrator(t, rt)

	_, err := o.Start(context.Background(), StartRequest{
		TaskID: "task-1", ProviderID: "docker",
		Config: provider.ContainerConfig{Image: "ubuntu:24.04"},
	})
	if err == nil {
		t.Fatal("expected error from fatal create failure")
	}
	var fatal *provider.FatalError
	if !errors.As(err, &fatal) {
		t.Errorf("want FatalError surfaced unchanged, got %T", err)
	}

	// The only row must be Failed.
	for id := range st.executions {
		waitForStatus(t, st, id, store.ExecutionStatusFailed)
	}
}

func TestStart_TransientCreateErrorRetried(t *testing.T) {
	rt := &fakeRuntime{
		createErrs: []error{
			&provider.TransientError{Provider: "docker", Err: errors.New("dial timeout")},
			&provider.TransientError{Provider: "docker", Err: errors.New("dial timeout")},
			nil,
		},
		exitCode: 0,
	}
	o, st := newTestOrchestrator(t, rt)

	execution, err := o.Start(context.Background(), StartRequest{
		TaskID: "task-1", ProviderID: "docker",
		Config: provider.ContainerConfig{Image: "ubuntu:24.04"},
	})
	if err != nil {
		t.Fatalf("Start failed after transient errors: %v", err)
	}
	waitForStatus(t, st, execution.ID, store.ExecutionStatusCompleted)
}

func TestStop_LeavesExecutionStopped(t *testing.T) {
	rt := &fakeRuntime{exitCode: 0, exitCh: make(chan struct{})}
	o, st := newTestOrchestrator(t, rt)

	execution, err := o.Start(context.Background(), StartRequest{
		TaskID: "task-1", ProviderID: "docker",
		Config: provider.ContainerConfig{Image: "ubuntu:24.04", Command: []string{"sleep", "60"}},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, st, execution.ID, store.ExecutionStatusRunning)

	if err := o.Stop(context.Background(), execution.ID, "", 10*time.Second); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	waitForStatus(t, st, execution.ID, store.ExecutionStatusStopped)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	if len(rt.stopGraces) != 1 || rt.stopGraces[0] != 10 {
		t.Errorf("expected one stop with 10s grace, got %v", rt.stopGraces)
	}
}

func TestStart_HungProviderCallBounded(t *testing.T) {
	rt := &fakeRuntime{createHangs: true}

	reg, err := provider.LoadRegistry()
	if err != nil {
		t.Fatalf("failed to load registry: %v", err)
	}
	mgr := sandbox.NewManager()
	mgr.RegisterProvider("docker", rt)
	st := newMemStore()
	o := New(mgr, reg, st, staticConfigs{}, slog.New(slog.DiscardHandler), Options{
		RetryBackoff:        time.Millisecond,
		ProviderCallTimeout: 20 * time.Millisecond,
	})

	begin := time.Now()
	_, err = o.Start(context.Background(), StartRequest{
		TaskID: "task-1", ProviderID: "docker",
		Config: provider.ContainerConfig{Image: "ubuntu:24.04"},
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded from hung create, got %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 2*time.Second {
		t.Errorf("hung create held Start for %s", elapsed)
	}

	// The row must land in Failed, not stay Starting forever.
	for id := range st.executions {
		waitForStatus(t, st, id, store.ExecutionStatusFailed)
	}
}

func TestStop_FailureRevertsToPriorStatus(t *testing.T) {
	stopErr := &provider.TransientError{Provider: "docker", Err: errors.New("daemon gone")}
	rt := &fakeRuntime{stopErr: stopErr, exitCh: make(chan struct{})}
	o, st := newTestOrchestrator(t, rt)

	execution, err := o.Start(context.Background(), StartRequest{
		TaskID: "task-1", ProviderID: "docker",
		Config: provider.ContainerConfig{Image: "ubuntu:24.04"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, st, execution.ID, store.ExecutionStatusRunning)

	if err := o.Stop(context.Background(), execution.ID, "", time.Second); err == nil {
		t.Fatal("expected stop to fail")
	}

	// A failed stop hands ownership back to the supervisor; the execution
	// must not be stranded in Stopping.
	e, err := st.GetExecutionByID(context.Background(), execution.ID)
	if err != nil {
		t.Fatalf("GetExecutionByID failed: %v", err)
	}
	if e.Status != store.ExecutionStatusRunning {
		t.Errorf("failed stop left execution in %s, want %s", e.Status, store.ExecutionStatusRunning)
	}
	close(rt.exitCh)
}

func TestStop_AlreadyTerminalIsNoOp(t *testing.T) {
	rt := &fakeRuntime{}
	o, st := newTestOrchestrator(t, rt)

	id := uuid.New()
	containerID := "c-9"
	st.executions[id] = &store.Execution{
		ID: id, TaskID: "t", ProviderID: "docker",
		ContainerID: &containerID,
		Status:      store.ExecutionStatusStopped,
	}

	if err := o.Stop(context.Background(), id, containerID, time.Second); err != nil {
		t.Fatalf("Stop on terminal execution should be a no-op success, got %v", err)
	}
	if len(rt.stopped) != 0 {
		t.Error("provider stop should not be called for a terminal execution")
	}
}

func TestStop_ProviderErrorSurfacedUnchanged(t *testing.T) {
	stopErr := &provider.TransientError{Provider: "docker", Err: errors.New("daemon gone")}
	rt := &fakeRuntime{stopErr: stopErr, exitCh: make(chan struct{})}
	o, st := newTestOrchestrator(t, rt)

	execution, err := o.Start(context.Background(), StartRequest{
		TaskID: "task-1", ProviderID: "docker",
		Config: provider.ContainerConfig{Image: "ubuntu:24.04"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, st, execution.ID, store.ExecutionStatusRunning)

	err = o.Stop(context.Background(), execution.ID, "", time.Second)
	if !errors.Is(err, stopErr) {
		t.Errorf("expected provider error surfaced unchanged, got %v", err)
	}
	close(rt.exitCh)
}

func TestRetry_RunningExecutionRejected(t *testing.T) {
	rt := &fakeRuntime{exitCh: make(chan struct{})}
	o, st := newTestOrchestrator(t, rt)

	execution, err := o.Start(context.Background(), StartRequest{
		TaskID: "task-1", ProviderID: "docker",
		Config: provider.ContainerConfig{Image: "ubuntu:24.04"},
	})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	waitForStatus(t, st, execution.ID, store.ExecutionStatusRunning)

	_, err = o.Retry(context.Background(), execution.ID, RetryRequest{TaskID: "task-1"})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("want ConflictError for running execution, got %v", err)
	}
	close(rt.exitCh)
}

func TestRetry_FailedExecutionCreatesLinkedAttempt(t *testing.T) {
	rt := &fakeRuntime{exitCode: 0}
	o, st := newTestOrchestrator(t, rt)

	parentID := uuid.New()
	msg := "exit code 1"
	containerID := "c-old"
	st.executions[parentID] = &store.Execution{
		ID: parentID, TaskID: "task-1", ProviderID: "docker",
		ContainerID:  &containerID,
		Status:       store.ExecutionStatusFailed,
		ErrorMessage: &msg,
	}

	retry, err := o.Retry(context.Background(), parentID, RetryRequest{TaskID: "task-1", AgentID: "agent-1"})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	if retry.ID == parentID {
		t.Error("retry must create a new execution row")
	}
	if retry.RetryAttempt != 1 {
		t.Errorf("expected retry_attempt 1, got %d", retry.RetryAttempt)
	}
	if retry.RetriedFrom == nil || *retry.RetriedFrom != parentID {
		t.Errorf("expected lineage link to %s, got %v", parentID, retry.RetriedFrom)
	}
	if retry.ContainerID == nil || *retry.ContainerID == containerID {
		t.Error("retry must get a fresh container, never the parent's")
	}

	// The parent row is untouched.
	parent, _ := st.GetExecutionByID(context.Background(), parentID)
	if parent.Status != store.ExecutionStatusFailed {
		t.Errorf("parent status changed to %s", parent.Status)
	}

	waitForStatus(t, st, retry.ID, store.ExecutionStatusCompleted)
}

func TestRetry_ProviderOverrideValidated(t *testing.T) {
	rt := &fakeRuntime{}
	o, st := newTestOrchestrator(t, rt)

	parentID := uuid.New()
	st.executions[parentID] = &store.Execution{
		ID: parentID, TaskID: "task-1", ProviderID: "docker",
		Status: store.ExecutionStatusFailed,
	}

	_, err := o.Retry(context.Background(), parentID, RetryRequest{TaskID: "task-1", ProviderID: "bogus"})
	var notFound *provider.NotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("want NotFoundError for unknown override provider, got %v", err)
	}
}
