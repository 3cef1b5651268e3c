package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"sandplane/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreateArtifact(ctx context.Context, artifact *store.Artifact) error {
	query := `
		INSERT INTO execution_artifacts (id, execution_id, file_name, mime_type, stored_path, size_bytes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := s.db.ExecContext(ctx, query,
		artifact.ID, artifact.ExecutionID, artifact.FileName,
		artifact.MimeType, artifact.StoredPath, artifact.SizeBytes,
		artifact.CreatedAt,
	)
	return err
}

func (s *Store) ListArtifacts(ctx context.Context, executionID uuid.UUID) ([]store.Artifact, error) {
	query := `
		SELECT id, execution_id, file_name, mime_type, stored_path, size_bytes, created_at
		FROM execution_artifacts
		WHERE execution_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []store.Artifact
	for rows.Next() {
		var a store.Artifact
		if err := rows.Scan(&a.ID, &a.ExecutionID, &a.FileName, &a.MimeType, &a.StoredPath, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return artifacts, nil
}

func (s *Store) GetArtifact(ctx context.Context, id uuid.UUID) (*store.Artifact, error) {
	query := `
		SELECT id, execution_id, file_name, mime_type, stored_path, size_bytes, created_at
		FROM execution_artifacts
		WHERE id = $1
	`

	var a store.Artifact
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.ExecutionID, &a.FileName, &a.MimeType, &a.StoredPath, &a.SizeBytes, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("artifact %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// DeleteArtifact removes the stored file best-effort, then unconditionally
// deletes the row. A failed file delete is downgraded to a warning; the row
// delete is mandatory.
func (s *Store) DeleteArtifact(ctx context.Context, id uuid.UUID) error {
	artifact, err := s.GetArtifact(ctx, id)
	if err != nil {
		return err
	}

	if artifact.StoredPath != nil {
		if rmErr := os.Remove(*artifact.StoredPath); rmErr != nil && !os.IsNotExist(rmErr) {
			s.log.Warn("failed to remove artifact file",
				"artifact_id", id, "path", *artifact.StoredPath, "error", rmErr)
		}
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM execution_artifacts WHERE id = $1`, id)
	return err
}
