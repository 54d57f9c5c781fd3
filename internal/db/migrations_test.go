package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_CreatesStateTables(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	for _, table := range []string{"_schema_migrations", "migration_logs"} {
		var name string
		err := database.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
	}

	var indexes int
	require.NoError(t, database.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND tbl_name='migration_logs' AND name LIKE 'idx_%'",
	).Scan(&indexes))
	assert.Equal(t, 3, indexes)
}

func TestRunMigrations_Idempotent(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := database.Exec("INSERT INTO _schema_migrations (version, name) VALUES ('20240101000000', 'init')")
	require.NoError(t, err)

	require.NoError(t, database.RunMigrations())

	var n int
	require.NoError(t, database.QueryRow("SELECT COUNT(*) FROM _schema_migrations").Scan(&n))
	assert.Equal(t, 1, n, "rerunning must keep recorded versions")
}
