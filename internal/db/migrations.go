package db

import "fmt"

const migrationsSchema = `
CREATE TABLE IF NOT EXISTS _schema_migrations (
    version     TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// Local mirror of the hosted execution log table.
const auditSchema = `
CREATE TABLE IF NOT EXISTS migration_logs (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    operation_id       TEXT NOT NULL,
    operation_type     TEXT NOT NULL,
    sql_content        TEXT NOT NULL,
    sql_preview        TEXT NOT NULL,
    sql_hash           TEXT NOT NULL,
    status             TEXT NOT NULL CHECK (status IN ('success', 'failed', 'error')),
    method_used        TEXT NOT NULL,
    execution_time_ms  INTEGER NOT NULL DEFAULT 0,
    details            TEXT CHECK (details IS NULL OR json_valid(details)),
    created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_migration_logs_created_at ON migration_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_migration_logs_operation_id ON migration_logs(operation_id);
CREATE INDEX IF NOT EXISTS idx_migration_logs_sql_hash ON migration_logs(sql_hash);
`

// RunMigrations creates the state tables. It is safe to call repeatedly.
func (db *DB) RunMigrations() error {
	steps := []struct{ name, ddl string }{
		{"migration tracking", migrationsSchema},
		{"audit", auditSchema},
	}
	for _, step := range steps {
		if _, err := db.Exec(step.ddl); err != nil {
			return fmt.Errorf("failed to run %s migrations: %w", step.name, err)
		}
	}
	return nil
}
