// Package store contains the database layer for sandplane.
package store

import (
	"time"

	"github.com/google/uuid"
)

// Execution represents a single run attempt of a task inside a
// provider-managed container.
type Execution struct {
	ID          uuid.UUID
	TaskID      string
	ProviderID  string
	ContainerID *string
	Status      ExecutionStatus
	// RetryAttempt starts at 0 and increases monotonically per lineage.
	RetryAttempt int
	// RetriedFrom links a retry to its parent execution.
	RetriedFrom  *uuid.UUID
	ErrorMessage *string
	CreatedAt    time.Time
	StartedAt    *time.Time
	EndedAt      *time.Time
}

// ExecutionStatus represents the state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusStarting  ExecutionStatus = "starting"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusStopping  ExecutionStatus = "stopping"
	ExecutionStatusStopped   ExecutionStatus = "stopped"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusStopped, ExecutionStatusCompleted, ExecutionStatusFailed:
		return true
	}
	return false
}

// LogEntry is one append-only log line of an execution. Sequence numbers are
// strictly increasing per execution and never reused; they are the contract
// for SSE resumption.
type LogEntry struct {
	ExecutionID uuid.UUID
	Sequence    int64
	Level       string
	Source      LogSource
	Message     string
	CreatedAt   time.Time
}

// LogSource identifies where a log line originated.
type LogSource string

const (
	LogSourceStdout LogSource = "stdout"
	LogSourceStderr LogSource = "stderr"
	LogSourceSystem LogSource = "system"
)

// LogFilter narrows a log search. Fields are independently optional and
// combine with AND semantics.
type LogFilter struct {
	Level  string
	Source string
	Text   string
}

// Artifact is a file or metadata record produced by an execution. The row is
// the source of truth for existence; a nil StoredPath means metadata only,
// no downloadable file.
type Artifact struct {
	ID          uuid.UUID
	ExecutionID uuid.UUID
	FileName    string
	MimeType    string
	StoredPath  *string
	SizeBytes   int64
	CreatedAt   time.Time
}
