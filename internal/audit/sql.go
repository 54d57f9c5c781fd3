package audit

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for a direct audit connection
	_ "modernc.org/sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// SQLStore keeps entries in a SQL table: a local sqlite mirror or the hosted
// Postgres database reached directly.
type SQLStore struct {
	db    *sqlx.DB
	table string
}

// NewSQLStore wraps an open connection. table defaults to DefaultTable.
func NewSQLStore(db *sqlx.DB, table string) (*SQLStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableNameRegex.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name: %q", table)
	}
	return &SQLStore{db: db, table: table}, nil
}

// OpenSQLStore connects with driver ("sqlite" or "postgres") and dsn.
func OpenSQLStore(driver, dsn, table string) (*SQLStore, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	store, err := NewSQLStore(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) Append(ctx context.Context, e *Entry) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(operation_id, operation_type, sql_content, sql_preview, sql_hash, status, method_used, execution_time_ms, details, created_at)
		VALUES (:operation_id, :operation_type, :sql_content, :sql_preview, :sql_hash, :status, :method_used, :execution_time_ms, :details, :created_at)`, s.table)

	if _, err := s.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (s *SQLStore) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.db.Rebind(fmt.Sprintf(`SELECT id, operation_id, operation_type, sql_content, sql_preview, sql_hash,
		status, method_used, execution_time_ms, details, created_at
		FROM %s ORDER BY created_at DESC, id DESC LIMIT ?`, s.table))

	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

// Close closes the underlying connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
