package audit

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `CREATE TABLE migration_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	operation_id TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	sql_content TEXT NOT NULL,
	sql_preview TEXT NOT NULL,
	sql_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	method_used TEXT NOT NULL,
	execution_time_ms INTEGER NOT NULL,
	details TEXT,
	created_at DATETIME NOT NULL
)`

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	store, err := OpenSQLStore("sqlite", path, "")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	_, err = store.db.Exec(testSchema)
	require.NoError(t, err)
	return store
}

func testEntry(opID string, status Status, at time.Time) *Entry {
	return &Entry{
		OperationID:     opID,
		OperationType:   OperationTypeCustomSQL,
		SQLContent:      "SELECT 1",
		SQLPreview:      "SELECT 1",
		SQLHash:         "-1",
		Status:          status,
		MethodUsed:      "pg_query",
		ExecutionTimeMs: 7,
		Details:         MarshalDetails(map[string]any{"success": status == StatusSuccess}),
		CreatedAt:       at,
	}
}

func TestSQLStore_SQLite_AppendAndList(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Append(ctx, testEntry("op-1", StatusSuccess, base)))
	require.NoError(t, store.Append(ctx, testEntry("op-2", StatusFailed, base.Add(time.Minute))))
	require.NoError(t, store.Append(ctx, testEntry("op-3", StatusError, base.Add(2*time.Minute))))

	entries, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "op-3", entries[0].OperationID)
	assert.Equal(t, StatusError, entries[0].Status)
	assert.Equal(t, "op-2", entries[1].OperationID)
	assert.NotZero(t, entries[1].ID)
	assert.Equal(t, int64(7), entries[1].ExecutionTimeMs)
	assert.True(t, base.Add(time.Minute).Equal(entries[1].CreatedAt))

	var details map[string]any
	require.NoError(t, json.Unmarshal(entries[1].Details, &details))
	assert.Equal(t, false, details["success"])

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSQLStore_MissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	store, err := OpenSQLStore("sqlite", path, "")
	require.NoError(t, err)
	defer store.Close()

	err = store.Append(context.Background(), testEntry("op", StatusSuccess, time.Now()))
	assert.ErrorContains(t, err, "insert audit entry")
}

func TestNewSQLStore_InvalidTable(t *testing.T) {
	_, err := NewSQLStore(nil, "logs; DROP TABLE users")
	assert.Error(t, err)

	s, err := NewSQLStore(nil, "public.migration_logs")
	require.NoError(t, err)
	assert.Equal(t, "public.migration_logs", s.table)
}

func TestSQLStore_Postgres_Append(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	store, err := NewSQLStore(sqlx.NewDb(mockDB, "postgres"), "")
	require.NoError(t, err)

	e := testEntry("op-pg", StatusSuccess, time.Now().UTC())

	mock.ExpectExec(`(?s)INSERT INTO migration_logs\s.*VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8, \$9, \$10\)`).
		WithArgs(
			"op-pg",
			OperationTypeCustomSQL,
			"SELECT 1",
			"SELECT 1",
			"-1",
			"success",
			"pg_query",
			int64(7),
			sqlmock.AnyArg(), // details
			sqlmock.AnyArg(), // created_at
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Append(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Postgres_AppendError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	store, err := NewSQLStore(sqlx.NewDb(mockDB, "postgres"), "audit_log")
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO audit_log`).WillReturnError(errors.New("permission denied"))

	err = store.Append(context.Background(), testEntry("op", StatusFailed, time.Now()))
	assert.ErrorContains(t, err, "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Postgres_List(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	store, err := NewSQLStore(sqlx.NewDb(mockDB, "postgres"), "")
	require.NoError(t, err)

	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "operation_id", "operation_type", "sql_content", "sql_preview", "sql_hash",
		"status", "method_used", "execution_time_ms", "details", "created_at",
	}).AddRow(9, "op-9", "custom_sql", "SELECT 9", "SELECT 9", "57", "failed", "exec_sql", 4, []byte(`{"success":false}`), at)

	mock.ExpectQuery(`(?s)SELECT .*FROM migration_logs ORDER BY created_at DESC, id DESC LIMIT \$1`).
		WithArgs(10).
		WillReturnRows(rows)

	entries, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(9), entries[0].ID)
	assert.Equal(t, StatusFailed, entries[0].Status)
	assert.JSONEq(t, `{"success":false}`, string(entries[0].Details))
	assert.Equal(t, at, entries[0].CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
