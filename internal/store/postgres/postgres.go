// Package postgres implements the store interfaces using PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
)

// Store provides PostgreSQL-backed implementations of all repositories.
type Store struct {
	db *sql.DB
	// artifactDir is the root directory for artifact files referenced by
	// stored_path rows.
	artifactDir string
	log         *slog.Logger
}

// New creates a new PostgreSQL store.
func New(ctx context.Context, databaseURL, artifactDir string, log *slog.Logger) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, artifactDir: artifactDir, log: log}, nil
}

// DB exposes the underlying connection pool, used for migrations and metrics.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
