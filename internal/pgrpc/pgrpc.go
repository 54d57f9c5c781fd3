// Package pgrpc calls SQL-execution procedures over a direct Postgres connection,
// so callers see real SQLSTATE codes instead of PostgREST translations.
package pgrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the schema the procedures are looked up in.
const Schema = "public"

// querier is the subset of *pgxpool.Pool the caller needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Caller invokes procedures as SELECT statements over a pgx pool.
type Caller struct {
	pool *pgxpool.Pool
	db   querier
}

// New connects to databaseURL and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Caller, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Caller{pool: pool, db: pool}, nil
}

// Close releases the pool.
func (c *Caller) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// RPC runs fn with named arguments and returns its result as JSON. A single row
// is returned as is, several rows as an array, and no rows as null.
func (c *Caller) RPC(ctx context.Context, fn string, args map[string]any) (json.RawMessage, error) {
	query, values := buildQuery(fn, args)

	rows, err := c.db.Query(ctx, query, values...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []json.RawMessage
	for rows.Next() {
		var v *string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s result: %w", fn, err)
		}
		if v == nil {
			results = append(results, json.RawMessage("null"))
			continue
		}
		results = append(results, json.RawMessage(*v))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return combine(results), nil
}

// buildQuery renders a call of fn with its arguments passed by name in sorted
// order. Only values are parameterized; names are quoted identifiers.
func buildQuery(fn string, args map[string]any) (string, []any) {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make([]string, len(names))
	values := make([]any, len(names))
	for i, name := range names {
		params[i] = fmt.Sprintf("%s => $%d", pgx.Identifier{name}.Sanitize(), i+1)
		values[i] = args[name]
	}

	query := fmt.Sprintf("SELECT to_jsonb(r)::text FROM %s(%s) AS r",
		pgx.Identifier{Schema, fn}.Sanitize(), strings.Join(params, ", "))
	return query, values
}

func combine(results []json.RawMessage) json.RawMessage {
	switch len(results) {
	case 0:
		return json.RawMessage("null")
	case 1:
		return results[0]
	}
	data, err := json.Marshal(results)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}
