package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the requested execution or artifact row does
// not exist.
var ErrNotFound = errors.New("not found")

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows us to pass either a connection pool or an active transaction
// to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ExecutionStore handles the persistence of execution rows and their state
// transitions.
type ExecutionStore interface {
	// CreateExecution inserts the initial state of a new execution.
	CreateExecution(ctx context.Context, execution *Execution) error

	// GetExecutionByID returns an execution by its ID.
	GetExecutionByID(ctx context.Context, id uuid.UUID) (*Execution, error)

	// SetExecutionStatus transitions the execution to the given status.
	SetExecutionStatus(ctx context.Context, id uuid.UUID, status ExecutionStatus) error

	// MarkStarted records the container id and the running transition.
	MarkStarted(ctx context.Context, id uuid.UUID, containerID string) error

	// MarkEnded records a terminal status with an optional error message.
	MarkEnded(ctx context.Context, id uuid.UUID, status ExecutionStatus, errorMessage *string) error

	// CountRunning returns the number of non-terminal executions.
	CountRunning(ctx context.Context) (int64, error)

	// DeleteStale removes executions (and, by cascade, their logs and
	// artifacts) whose last activity precedes the cutoff. Returns the number
	// of executions removed.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// LogStore handles append-only execution logs.
type LogStore interface {
	// AppendLog appends one line and returns its per-execution sequence
	// number. The orchestrator is the single writer per execution.
	AppendLog(ctx context.Context, executionID uuid.UUID, level string, source LogSource, message string) (int64, error)

	// GetLogs returns a page of logs in sequence order plus the total count.
	GetLogs(ctx context.Context, executionID uuid.UUID, limit, offset int) ([]LogEntry, int64, error)

	// SearchLogs returns a filtered page plus the filtered total. With a zero
	// filter it matches GetLogs.
	SearchLogs(ctx context.Context, executionID uuid.UUID, filter LogFilter, limit, offset int) ([]LogEntry, int64, error)

	// GetLogsAfterSequence returns up to limit entries with sequence greater
	// than after, in sequence order. Used for SSE resumption and tailing.
	GetLogsAfterSequence(ctx context.Context, executionID uuid.UUID, after int64, limit int) ([]LogEntry, error)
}

// ArtifactStore handles execution output artifacts.
type ArtifactStore interface {
	// CreateArtifact inserts an artifact row.
	CreateArtifact(ctx context.Context, artifact *Artifact) error

	// ListArtifacts returns all artifacts of an execution.
	ListArtifacts(ctx context.Context, executionID uuid.UUID) ([]Artifact, error)

	// GetArtifact returns an artifact by its ID.
	GetArtifact(ctx context.Context, id uuid.UUID) (*Artifact, error)

	// DeleteArtifact removes the underlying file best-effort, then
	// unconditionally deletes the row.
	DeleteArtifact(ctx context.Context, id uuid.UUID) error
}
