package postgres

import (
	"context"
	"fmt"
	"strings"

	"sandplane/internal/store"

	"github.com/google/uuid"
)

// AppendLog inserts one log line with the next per-execution sequence number.
// The orchestrator is the single writer per execution, so the MAX+1 subquery
// cannot race itself.
func (s *Store) AppendLog(ctx context.Context, executionID uuid.UUID, level string, source store.LogSource, message string) (int64, error) {
	// Postgres rejects \x00 in text columns.
	message = strings.ReplaceAll(message, "\x00", "")

	query := `
		INSERT INTO execution_logs (execution_id, sequence, level, source, message)
		VALUES ($1, (SELECT COALESCE(MAX(sequence), 0) + 1 FROM execution_logs WHERE execution_id = $1), $2, $3, $4)
		RETURNING sequence
	`

	var seq int64
	err := s.db.QueryRowContext(ctx, query, executionID, level, source, message).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (s *Store) GetLogs(ctx context.Context, executionID uuid.UUID, limit, offset int) ([]store.LogEntry, int64, error) {
	return s.SearchLogs(ctx, executionID, store.LogFilter{}, limit, offset)
}

// SearchLogs applies the optional filters with AND semantics. A zero filter
// returns the same rows and total as GetLogs.
func (s *Store) SearchLogs(ctx context.Context, executionID uuid.UUID, filter store.LogFilter, limit, offset int) ([]store.LogEntry, int64, error) {
	where := []string{"execution_id = $1"}
	args := []interface{}{executionID}

	if filter.Level != "" {
		args = append(args, filter.Level)
		where = append(where, fmt.Sprintf("level = $%d", len(args)))
	}
	if filter.Source != "" {
		args = append(args, filter.Source)
		where = append(where, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Text != "" {
		args = append(args, "%"+filter.Text+"%")
		where = append(where, fmt.Sprintf("message ILIKE $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int64
	countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM execution_logs WHERE %s`, whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit)
	limitPos := len(args)
	args = append(args, offset)
	offsetPos := len(args)

	query := fmt.Sprintf(`
		SELECT execution_id, sequence, level, source, message, created_at
		FROM execution_logs
		WHERE %s
		ORDER BY sequence ASC
		LIMIT $%d OFFSET $%d
	`, whereClause, limitPos, offsetPos)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []store.LogEntry
	for rows.Next() {
		var entry store.LogEntry
		if err := rows.Scan(&entry.ExecutionID, &entry.Sequence, &entry.Level, &entry.Source, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, 0, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

func (s *Store) GetLogsAfterSequence(ctx context.Context, executionID uuid.UUID, after int64, limit int) ([]store.LogEntry, error) {
	query := `
		SELECT execution_id, sequence, level, source, message, created_at
		FROM execution_logs
		WHERE execution_id = $1 AND sequence > $2
		ORDER BY sequence ASC
		LIMIT $3
	`

	rows, err := s.db.QueryContext(ctx, query, executionID, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []store.LogEntry
	for rows.Next() {
		var entry store.LogEntry
		if err := rows.Scan(&entry.ExecutionID, &entry.Sequence, &entry.Level, &entry.Source, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return logs, nil
}
