package postgres

import (
	"context"
	"testing"
	"time"

	"sandplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestAppendLog_ReturnsSequence(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	executionID := uuid.New()

	mock.ExpectQuery(`INSERT INTO execution_logs`).
		WithArgs(executionID, "info", store.LogSourceStdout, "hello").
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(7))

	seq, err := s.AppendLog(context.Background(), executionID, "info", store.LogSourceStdout, "hello")
	if err != nil {
		t.Fatalf("AppendLog failed: %v", err)
	}
	if seq != 7 {
		t.Errorf("expected sequence 7, got %d", seq)
	}
}

func TestAppendLog_SanitizesNullBytes(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	executionID := uuid.New()

	// Postgres rejects \x00, the store strips it before insert.
	mock.ExpectQuery(`INSERT INTO execution_logs`).
		WithArgs(executionID, "info", store.LogSourceStderr, "ab").
		WillReturnRows(sqlmock.NewRows([]string{"sequence"}).AddRow(1))

	if _, err := s.AppendLog(context.Background(), executionID, "info", store.LogSourceStderr, "a\x00b"); err != nil {
		t.Fatalf("AppendLog failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func logRows(executionID uuid.UUID, seqs ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"execution_id", "sequence", "level", "source", "message", "created_at"})
	for _, seq := range seqs {
		rows.AddRow(executionID, seq, "info", "stdout", "line", time.Now())
	}
	return rows
}

func TestGetLogs_PaginatedWithTotal(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	executionID := uuid.New()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM execution_logs`).
		WithArgs(executionID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	mock.ExpectQuery(`SELECT execution_id, sequence, level, source, message, created_at`).
		WithArgs(executionID, 2, 10).
		WillReturnRows(logRows(executionID, 11, 12))

	logs, total, err := s.GetLogs(context.Background(), executionID, 2, 10)
	if err != nil {
		t.Fatalf("GetLogs failed: %v", err)
	}
	if total != 42 {
		t.Errorf("expected total 42, got %d", total)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].Sequence != 11 || logs[1].Sequence != 12 {
		t.Errorf("unexpected sequences: %d, %d", logs[0].Sequence, logs[1].Sequence)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

// A zero filter must produce the same rows and total as GetLogs: both paths
// run the same WHERE clause with the same arguments.
func TestSearchLogs_NoFiltersMatchesGetLogs(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	executionID := uuid.New()

	for range 2 {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM execution_logs WHERE execution_id = \$1`).
			WithArgs(executionID).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
		mock.ExpectQuery(`SELECT execution_id, sequence, level, source, message, created_at`).
			WithArgs(executionID, 100, 0).
			WillReturnRows(logRows(executionID, 1, 2, 3, 4, 5))
	}

	_, totalGet, err := s.GetLogs(context.Background(), executionID, 100, 0)
	if err != nil {
		t.Fatalf("GetLogs failed: %v", err)
	}

	_, totalSearch, err := s.SearchLogs(context.Background(), executionID, store.LogFilter{}, 100, 0)
	if err != nil {
		t.Fatalf("SearchLogs failed: %v", err)
	}

	if totalGet != totalSearch {
		t.Errorf("unfiltered SearchLogs total %d != GetLogs total %d", totalSearch, totalGet)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSearchLogs_FiltersCombinedWithAND(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	executionID := uuid.New()
	filter := store.LogFilter{Level: "error", Source: "stderr", Text: "panic"}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM execution_logs WHERE execution_id = \$1 AND level = \$2 AND source = \$3 AND message ILIKE \$4`).
		WithArgs(executionID, "error", "stderr", "%panic%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	mock.ExpectQuery(`SELECT execution_id, sequence, level, source, message, created_at`).
		WithArgs(executionID, "error", "stderr", "%panic%", 50, 0).
		WillReturnRows(logRows(executionID, 9))

	logs, total, err := s.SearchLogs(context.Background(), executionID, filter, 50, 0)
	if err != nil {
		t.Fatalf("SearchLogs failed: %v", err)
	}
	if total != 1 || len(logs) != 1 {
		t.Errorf("expected 1 match, got total=%d len=%d", total, len(logs))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetLogsAfterSequence(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	executionID := uuid.New()

	mock.ExpectQuery(`SELECT execution_id, sequence, level, source, message, created_at`).
		WithArgs(executionID, int64(10), 100).
		WillReturnRows(logRows(executionID, 11, 12, 13))

	logs, err := s.GetLogsAfterSequence(context.Background(), executionID, 10, 100)
	if err != nil {
		t.Fatalf("GetLogsAfterSequence failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 logs, got %d", len(logs))
	}
	for i, entry := range logs {
		if entry.Sequence <= 10 {
			t.Errorf("log %d has sequence %d, want > 10", i, entry.Sequence)
		}
	}
}
