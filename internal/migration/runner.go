package migration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/wemarka/wmai/internal/log"
	"github.com/wemarka/wmai/internal/sqlexec"
)

// Executor runs SQL remotely, typically the proxy client.
type Executor interface {
	Execute(ctx context.Context, req sqlexec.Request) *sqlexec.Result
}

// Runner handles migration execution against a database
type Runner struct {
	db *sql.DB
}

// NewRunner creates a new migration runner
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// GetApplied returns all applied migrations, ordered by version ascending
func (r *Runner) GetApplied() ([]Migration, error) {
	rows, err := r.db.Query(`
		SELECT version, name, applied_at
		FROM _schema_migrations
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var m Migration
		var appliedAt string
		if err := rows.Scan(&m.Version, &m.Name, &appliedAt); err != nil {
			return nil, err
		}
		m.AppliedAt, _ = time.Parse("2006-01-02 15:04:05", appliedAt)
		migrations = append(migrations, m)
	}

	return migrations, rows.Err()
}

// Pending returns the migrations in all that have not been applied, keeping order.
func (r *Runner) Pending(all []Migration) ([]Migration, error) {
	applied, err := r.GetApplied()
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	var pending []Migration
	for _, m := range all {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Apply runs m through exec and records it when it succeeds. A failed migration
// is not recorded.
func (r *Runner) Apply(ctx context.Context, m Migration, exec Executor) (*sqlexec.Result, error) {
	if strings.TrimSpace(m.SQL) == "" {
		return nil, fmt.Errorf("migration %s is empty", m.Filename())
	}

	res := exec.Execute(ctx, sqlexec.Request{SQL: m.SQL, OperationID: m.OperationID()})
	if !res.Success {
		msg := "unknown error"
		if res.Error != nil {
			msg = res.Error.Message
		}
		return res, fmt.Errorf("migration %s failed: %s", m.Filename(), msg)
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO _schema_migrations (version, name) VALUES (?, ?)`,
		m.Version, m.Name,
	); err != nil {
		return res, fmt.Errorf("migration %s applied but not recorded: %w", m.Filename(), err)
	}

	log.InfoContext(ctx, "migration applied", "version", m.Version, "name", m.Name, "method", res.Method)
	return res, nil
}

// ApplyPending applies every pending migration in order and stops at the first
// failure. It returns the migrations that were applied.
func (r *Runner) ApplyPending(ctx context.Context, all []Migration, exec Executor) ([]Migration, error) {
	pending, err := r.Pending(all)
	if err != nil {
		return nil, err
	}

	var applied []Migration
	for _, m := range pending {
		if _, err := r.Apply(ctx, m, exec); err != nil {
			return applied, err
		}
		applied = append(applied, m)
	}
	return applied, nil
}
