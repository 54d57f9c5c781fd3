// Package db opens the local SQLite database holding CLI state.
package db

import (
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver used for local state.
const DriverName = "sqlite"

type DB struct {
	*sql.DB
}

// pragmas are applied to every new local database handle.
var pragmas = []struct{ stmt, what string }{
	{"PRAGMA journal_mode=WAL", "enable WAL mode"},
	{"PRAGMA busy_timeout=5000", "set busy timeout"},
}

// New opens (creating if needed) the SQLite file at path.
func New(path string) (*DB, error) {
	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to %s: %w", p.what, err)
		}
	}

	return &DB{db}, nil
}

// SQLX returns an sqlx handle sharing this connection pool.
func (db *DB) SQLX() *sqlx.DB {
	return sqlx.NewDb(db.DB, DriverName)
}
