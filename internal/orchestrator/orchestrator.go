// Package orchestrator drives the execution lifecycle: start, stop, retry,
// and supervision of running containers.
package orchestrator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sandplane/internal/logger"
	"sandplane/internal/provider"
	"sandplane/internal/sandbox"
	"sandplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ConflictError rejects an operation that conflicts with the execution's
// current state, e.g. retrying an execution that is still running.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

// ConfigSource rebuilds a ContainerConfig from task metadata. The upstream
// CRUD layer implements it; the core never decides what command to run.
type ConfigSource interface {
	BuildContainerConfig(ctx context.Context, taskID, agentID, model string) (provider.ContainerConfig, error)
}

// Store combines the persistence interfaces the orchestrator needs.
type Store interface {
	store.ExecutionStore
	store.LogStore
}

// Options tune orchestrator behavior.
type Options struct {
	// DefaultGracePeriod bounds cooperative shutdown when the caller does
	// not specify one.
	DefaultGracePeriod time.Duration
	// MaxTransientRetries bounds provider-call retries on TransientError.
	MaxTransientRetries int
	// RetryBackoff is the initial backoff between transient retries.
	RetryBackoff time.Duration
	// ProviderCallTimeout bounds each create/start/stop/remove call so a
	// hung daemon cannot pin a goroutine. Stop calls get the grace period
	// on top of this.
	ProviderCallTimeout time.Duration
}

func (o *Options) applyDefaults() {
	if o.DefaultGracePeriod <= 0 {
		o.DefaultGracePeriod = 10 * time.Second
	}
	if o.MaxTransientRetries <= 0 {
		o.MaxTransientRetries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	if o.ProviderCallTimeout <= 0 {
		o.ProviderCallTimeout = 30 * time.Second
	}
}

// Orchestrator resolves providers through the sandbox manager and records
// status/log changes through the store.
type Orchestrator struct {
	manager  *sandbox.Manager
	registry *provider.Registry
	store    Store
	configs  ConfigSource
	log      *slog.Logger
	opts     Options
}

// New creates an orchestrator.
func New(manager *sandbox.Manager, registry *provider.Registry, st Store, configs ConfigSource, log *slog.Logger, opts Options) *Orchestrator {
	opts.applyDefaults()
	return &Orchestrator{
		manager:  manager,
		registry: registry,
		store:    st,
		configs:  configs,
		log:      log,
		opts:     opts,
	}
}

// StartRequest describes a new execution. The ContainerConfig is supplied by
// the upstream layer fully formed.
type StartRequest struct {
	TaskID     string
	ProviderID string
	Config     provider.ContainerConfig
}

// Start creates an execution row, creates and starts its container, and
// spawns a supervisor that streams logs and records the terminal status.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*store.Execution, error) {
	if err := o.registry.ValidateProviderID(req.ProviderID); err != nil {
		return nil, err
	}

	execution := &store.Execution{
		ID:         uuid.New(),
		TaskID:     req.TaskID,
		ProviderID: req.ProviderID,
		Status:     store.ExecutionStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.store.CreateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	if err := o.launch(ctx, execution, req.Config); err != nil {
		return nil, err
	}
	return execution, nil
}

// launch runs the create+start sequence for an existing execution row.
func (o *Orchestrator) launch(ctx context.Context, execution *store.Execution, cfg provider.ContainerConfig) error {
	ctx = logger.WithExecutionID(ctx, execution.ID.String())
	log := logger.FromContext(ctx, o.log)

	tracer := otel.Tracer("orchestrator")
	ctx, span := tracer.Start(ctx, "start_execution",
		trace.WithAttributes(
			attribute.String("execution.id", execution.ID.String()),
			attribute.String("task.id", execution.TaskID),
			attribute.String("provider.id", execution.ProviderID),
			attribute.Int("execution.retry_attempt", execution.RetryAttempt),
		),
	)
	defer span.End()

	prov, err := o.manager.Provider(execution.ProviderID)
	if err != nil {
		return err
	}

	if err := o.store.SetExecutionStatus(ctx, execution.ID, store.ExecutionStatusStarting); err != nil {
		return err
	}
	execution.Status = store.ExecutionStatusStarting

	var containerID string
	err = o.withTransientRetry(ctx, func() error {
		return o.providerCall(ctx, o.opts.ProviderCallTimeout, func(callCtx context.Context) error {
			var createErr error
			containerID, createErr = prov.CreateContainer(callCtx, cfg)
			return createErr
		})
	})
	if err != nil {
		span.RecordError(err)
		o.failExecution(ctx, execution, fmt.Sprintf("failed to create container: %v", err))
		return err
	}

	if err := o.withTransientRetry(ctx, func() error {
		return o.providerCall(ctx, o.opts.ProviderCallTimeout, func(callCtx context.Context) error {
			return prov.StartContainer(callCtx, containerID)
		})
	}); err != nil {
		span.RecordError(err)
		// The created container is orphaned otherwise.
		if rmErr := o.removeContainer(ctx, prov, containerID, true); rmErr != nil {
			log.Warn("failed to remove container after start failure", "container_id", containerID, "error", rmErr)
		}
		o.failExecution(ctx, execution, fmt.Sprintf("failed to start container: %v", err))
		return err
	}

	if err := o.store.MarkStarted(ctx, execution.ID, containerID); err != nil {
		return err
	}
	execution.Status = store.ExecutionStatusRunning
	execution.ContainerID = &containerID

	log.Info("execution started", "container_id", containerID, "provider", execution.ProviderID)

	// Supervision outlives the request; it stops when the container exits.
	superCtx := logger.WithExecutionID(context.Background(), execution.ID.String())
	go o.supervise(superCtx, prov, execution.ID, containerID)

	return nil
}

// Stop transitions a running execution to Stopped after a cooperative
// container shutdown. Stopping an already-terminal execution is a no-op
// success. Provider errors are surfaced to the caller unchanged.
func (o *Orchestrator) Stop(ctx context.Context, executionID uuid.UUID, containerID string, gracePeriod time.Duration) error {
	release := o.manager.LockExecution(executionID.String())
	defer release()

	execution, err := o.store.GetExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}
	if execution.Status.Terminal() {
		return nil
	}

	if err := o.registry.ValidateProviderID(execution.ProviderID); err != nil {
		return err
	}
	prov, err := o.manager.Provider(execution.ProviderID)
	if err != nil {
		return err
	}

	if containerID == "" && execution.ContainerID != nil {
		containerID = *execution.ContainerID
	}
	if containerID == "" {
		// Never reached the container stage; nothing to tear down.
		return o.store.MarkEnded(ctx, executionID, store.ExecutionStatusStopped, nil)
	}

	if gracePeriod <= 0 {
		gracePeriod = o.opts.DefaultGracePeriod
	}

	ctx = logger.WithExecutionID(ctx, executionID.String())
	tracer := otel.Tracer("orchestrator")
	ctx, span := tracer.Start(ctx, "stop_execution",
		trace.WithAttributes(
			attribute.String("execution.id", executionID.String()),
			attribute.String("container.id", containerID),
		),
	)
	defer span.End()

	priorStatus := execution.Status
	if err := o.store.SetExecutionStatus(ctx, executionID, store.ExecutionStatusStopping); err != nil {
		return err
	}

	stopErr := o.providerCall(ctx, gracePeriod+o.opts.ProviderCallTimeout, func(callCtx context.Context) error {
		return prov.StopContainer(callCtx, containerID, int(gracePeriod.Seconds()))
	})
	if stopErr != nil {
		span.RecordError(stopErr)
		// The supervisor skips the terminal transition once it sees
		// Stopping; hand ownership back so a failed stop cannot strand
		// the execution in a non-terminal state.
		if revertErr := o.store.SetExecutionStatus(ctx, executionID, priorStatus); revertErr != nil {
			logger.FromContext(ctx, o.log).Error("failed to revert status after stop failure",
				"status", priorStatus, "error", revertErr)
		}
		return stopErr
	}
	if err := o.removeContainer(ctx, prov, containerID, true); err != nil {
		// The container is already stopped; removal failure is not fatal.
		logger.FromContext(ctx, o.log).Warn("failed to remove stopped container",
			"container_id", containerID, "error", err)
	}

	return o.store.MarkEnded(ctx, executionID, store.ExecutionStatusStopped, nil)
}

// RetryRequest rebuilds the container for a new attempt.
type RetryRequest struct {
	TaskID  string
	AgentID string
	Model   string
	// ProviderID overrides the parent's provider when set.
	ProviderID string
}

// Retry creates a new execution linked to a terminal parent, with
// retry_attempt incremented. It never mutates or restarts the parent's
// container. Retrying a non-terminal execution is rejected with a conflict.
func (o *Orchestrator) Retry(ctx context.Context, parentID uuid.UUID, req RetryRequest) (*store.Execution, error) {
	release := o.manager.LockExecution(parentID.String())
	defer release()

	parent, err := o.store.GetExecutionByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !parent.Status.Terminal() {
		return nil, &ConflictError{
			Reason: fmt.Sprintf("execution %s is %s; only terminal executions can be retried", parentID, parent.Status),
		}
	}

	providerID := parent.ProviderID
	if req.ProviderID != "" {
		providerID = req.ProviderID
	}
	if err := o.registry.ValidateProviderID(providerID); err != nil {
		return nil, err
	}

	taskID := req.TaskID
	if taskID == "" {
		taskID = parent.TaskID
	}

	cfg, err := o.configs.BuildContainerConfig(ctx, taskID, req.AgentID, req.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to build container config: %w", err)
	}

	retry := &store.Execution{
		ID:           uuid.New(),
		TaskID:       taskID,
		ProviderID:   providerID,
		Status:       store.ExecutionStatusPending,
		RetryAttempt: parent.RetryAttempt + 1,
		RetriedFrom:  &parent.ID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := o.store.CreateExecution(ctx, retry); err != nil {
		return nil, fmt.Errorf("failed to create retry execution: %w", err)
	}

	if err := o.launch(ctx, retry, cfg); err != nil {
		return nil, err
	}

	o.log.Info("execution retried",
		"parent_execution_id", parentID,
		"execution_id", retry.ID,
		"retry_attempt", retry.RetryAttempt,
	)
	return retry, nil
}

// supervise follows the container until exit, shipping its output into the
// log store and recording the terminal status.
func (o *Orchestrator) supervise(ctx context.Context, prov provider.Provider, executionID uuid.UUID, containerID string) {
	log := logger.FromContext(ctx, o.log)

	waiter, ok := prov.(provider.Waiter)
	if !ok {
		return
	}

	logDone := make(chan struct{})
	if streamer, ok := prov.(provider.LogStreamer); ok {
		go func() {
			defer close(logDone)
			o.shipLogs(ctx, streamer, executionID, containerID)
		}()
	} else {
		close(logDone)
	}

	exitCode, err := waiter.WaitContainer(ctx, containerID)
	<-logDone

	// Stop() owns the terminal transition when a stop is in flight.
	current, getErr := o.store.GetExecutionByID(ctx, executionID)
	if getErr == nil && (current.Status == store.ExecutionStatusStopping || current.Status.Terminal()) {
		return
	}

	switch {
	case err != nil:
		msg := fmt.Sprintf("container wait failed: %v", err)
		o.failExecution(ctx, &store.Execution{ID: executionID}, msg)
	case exitCode == 0:
		if markErr := o.store.MarkEnded(ctx, executionID, store.ExecutionStatusCompleted, nil); markErr != nil {
			log.Error("failed to mark execution completed", "error", markErr)
		}
	default:
		msg := fmt.Sprintf("exit code %d", exitCode)
		if _, logErr := o.store.AppendLog(ctx, executionID, "error", store.LogSourceSystem, msg); logErr != nil {
			log.Warn("failed to append exit log", "error", logErr)
		}
		o.failExecution(ctx, &store.Execution{ID: executionID}, msg)
	}

	if rmErr := o.removeContainer(ctx, prov, containerID, false); rmErr != nil {
		log.Warn("failed to remove exited container", "container_id", containerID, "error", rmErr)
	}
}

// shipLogs reads container output line by line into the log store.
func (o *Orchestrator) shipLogs(ctx context.Context, streamer provider.LogStreamer, executionID uuid.UUID, containerID string) {
	log := logger.FromContext(ctx, o.log)

	rc, err := streamer.StreamLogs(ctx, containerID)
	if err != nil {
		log.Warn("failed to open log stream", "container_id", containerID, "error", err)
		return
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if _, err := o.store.AppendLog(ctx, executionID, "info", store.LogSourceStdout, scanner.Text()); err != nil {
			log.Warn("failed to persist log line", "error", err)
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("log stream ended with error", "error", err)
	}
}

func (o *Orchestrator) failExecution(ctx context.Context, execution *store.Execution, message string) {
	if err := o.store.MarkEnded(ctx, execution.ID, store.ExecutionStatusFailed, &message); err != nil {
		logger.FromContext(ctx, o.log).Error("failed to mark execution failed",
			"execution_id", execution.ID, "error", err)
	}
	execution.Status = store.ExecutionStatusFailed
}

// providerCall bounds one provider I/O call with its own deadline.
func (o *Orchestrator) providerCall(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(callCtx)
}

func (o *Orchestrator) removeContainer(ctx context.Context, prov provider.Provider, containerID string, force bool) error {
	return o.providerCall(ctx, o.opts.ProviderCallTimeout, func(callCtx context.Context) error {
		return prov.RemoveContainer(callCtx, containerID, force)
	})
}

// withTransientRetry retries fn with exponential backoff while it returns a
// TransientError, up to the configured bound. All other errors are surfaced
// immediately.
func (o *Orchestrator) withTransientRetry(ctx context.Context, fn func() error) error {
	backoff := o.opts.RetryBackoff

	var err error
	for attempt := 0; attempt <= o.opts.MaxTransientRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err = fn()
		if err == nil {
			return nil
		}

		var transient *provider.TransientError
		if !errors.As(err, &transient) {
			return err
		}
		o.log.Warn("transient provider error, retrying",
			"attempt", attempt+1, "max", o.opts.MaxTransientRetries, "error", err)
	}
	return err
}
