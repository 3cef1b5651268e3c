package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sandplane/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreateExecution(ctx context.Context, execution *store.Execution) error {
	query := `
		INSERT INTO executions (id, task_id, provider_id, status, retry_attempt, retried_from, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		execution.ID, execution.TaskID, execution.ProviderID,
		execution.Status, execution.RetryAttempt, execution.RetriedFrom,
		execution.CreatedAt,
	)
	return err
}

func (s *Store) GetExecutionByID(ctx context.Context, id uuid.UUID) (*store.Execution, error) {
	query := `
		SELECT id, task_id, provider_id, container_id, status, retry_attempt, retried_from, error_message, created_at, started_at, ended_at
		FROM executions WHERE id = $1
	`

	var execution store.Execution
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&execution.ID, &execution.TaskID, &execution.ProviderID,
		&execution.ContainerID, &execution.Status, &execution.RetryAttempt,
		&execution.RetriedFrom, &execution.ErrorMessage,
		&execution.CreatedAt, &execution.StartedAt, &execution.EndedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("execution %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &execution, nil
}

func (s *Store) SetExecutionStatus(ctx context.Context, id uuid.UUID, status store.ExecutionStatus) error {
	query := `UPDATE executions SET status = $2 WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *Store) MarkStarted(ctx context.Context, id uuid.UUID, containerID string) error {
	query := `UPDATE executions SET status = $2, container_id = $3, started_at = $4 WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id, store.ExecutionStatusRunning, containerID, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *Store) MarkEnded(ctx context.Context, id uuid.UUID, status store.ExecutionStatus, errorMessage *string) error {
	query := `UPDATE executions SET status = $2, error_message = $3, ended_at = $4 WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, id, status, errorMessage, time.Now().UTC())
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *Store) CountRunning(ctx context.Context) (int64, error) {
	query := `SELECT COUNT(*) FROM executions WHERE status NOT IN ($1, $2, $3)`

	var count int64
	err := s.db.QueryRowContext(ctx, query,
		store.ExecutionStatusStopped, store.ExecutionStatusCompleted, store.ExecutionStatusFailed,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteStale removes terminal executions whose last activity is older than
// the cutoff. Logs and artifacts follow by ON DELETE CASCADE; artifact files
// on disk are left to the retention sweep of the artifact directory.
func (s *Store) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM executions
		WHERE status IN ($1, $2, $3)
		  AND COALESCE(ended_at, created_at) < $4
	`

	res, err := s.db.ExecContext(ctx, query,
		store.ExecutionStatusStopped, store.ExecutionStatusCompleted, store.ExecutionStatusFailed,
		cutoff,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("execution %s: %w", id, store.ErrNotFound)
	}
	return nil
}
