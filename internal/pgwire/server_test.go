package pgwire

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemarka/wmai/internal/sqlexec"
)

type fakeExecutor struct {
	results map[string]*sqlexec.Result
	seen    []string
}

func (f *fakeExecutor) Execute(ctx context.Context, req sqlexec.Request) *sqlexec.Result {
	f.seen = append(f.seen, req.SQL)
	if res, ok := f.results[req.SQL]; ok {
		return res
	}
	return &sqlexec.Result{Success: false, Error: &sqlexec.ErrorInfo{Message: "relation \"nope\" does not exist"}}
}

func ok(data string) *sqlexec.Result {
	return &sqlexec.Result{Success: true, Method: sqlexec.MethodPgQuery, Data: json.RawMessage(data)}
}

func TestNewServer(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"basic config", Config{Address: ":5432"}},
		{"with password auth", Config{Address: ":5433", Password: "secret"}},
		{"with no auth", Config{Address: ":5434", NoAuth: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewServer(&fakeExecutor{}, tt.config)
			require.NoError(t, err)
			assert.NotNil(t, srv)
		})
	}
}

func TestServer_PasswordAuth(t *testing.T) {
	srv, err := NewServer(&fakeExecutor{}, Config{Password: "secret123"})
	require.NoError(t, err)

	tests := []struct {
		password string
		want     bool
	}{
		{"secret123", true},
		{"wrongpassword", false},
		{"", false},
	}
	for _, tt := range tests {
		_, got, err := srv.passwordAuth(context.Background(), "postgres", "user", tt.password)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.password)
	}

	srv, err = NewServer(&fakeExecutor{}, Config{})
	require.NoError(t, err)
	_, got, _ := srv.passwordAuth(context.Background(), "postgres", "user", "")
	assert.False(t, got, "no password configured rejects everything")
}

func TestNewResultSet(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		columns []string
		rows    [][]any
	}{
		{"null", `null`, nil, nil},
		{"empty", ``, nil, nil},
		{"objects", `[{"id":1,"name":"a"},{"id":2,"name":null,"extra":true}]`,
			[]string{"id", "name", "extra"},
			[][]any{{"1", "a", nil}, {"2", nil, "t"}}},
		{"object", `{"success":true,"rows":[1,2]}`,
			[]string{"rows", "success"},
			[][]any{{"[1,2]", "t"}}},
		{"scalars", `[1,"two"]`, []string{"value"}, [][]any{{"1"}, {"two"}}},
		{"empty array", `[]`, []string{"value"}, nil},
		{"scalar", `42`, []string{"result"}, [][]any{{"42"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := newResultSet(json.RawMessage(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.columns, rs.columns)
			assert.Equal(t, tt.rows, rs.rows)
		})
	}

	_, err := newResultSet(json.RawMessage(`{bad`))
	assert.Error(t, err)
}

func TestCommandTag(t *testing.T) {
	assert.Equal(t, "SELECT 3", commandTag("select * from t", 3))
	assert.Equal(t, "SELECT 0", commandTag("WITH x AS (SELECT 1) SELECT * FROM x", 0))
	assert.Equal(t, "CREATE", commandTag("create table t (id int);", 0))
	assert.Equal(t, "SELECT 1", commandTag("INSERT INTO t VALUES (1) RETURNING id", 1))
	assert.Equal(t, "BEGIN", commandTag("BEGIN;", 0))
}

func TestServer_EndToEnd(t *testing.T) {
	exec := &fakeExecutor{results: map[string]*sqlexec.Result{
		"SELECT id, name FROM users": ok(`[{"id":1,"name":"ada"},{"id":2,"name":"grace"}]`),
		"CREATE TABLE t (id int)":    ok(`{"success":true}`),
	}}
	srv, err := NewServer(exec, Config{Password: "secret"})
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	defer srv.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dsn := fmt.Sprintf("postgres://wmai:secret@%s/postgres?sslmode=disable", l.Addr().String())
	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)
	assert.Equal(t, "on", conn.PgConn().ParameterStatus("standard_conforming_strings"))

	rows, err := conn.Query(ctx, "SELECT id, name FROM users", pgx.QueryExecModeSimpleProtocol)
	require.NoError(t, err)
	var got []string
	for rows.Next() {
		var id, name string
		require.NoError(t, rows.Scan(&id, &name))
		got = append(got, id+":"+name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"1:ada", "2:grace"}, got)

	_, err = conn.Exec(ctx, "CREATE TABLE t (id int)", pgx.QueryExecModeSimpleProtocol)
	require.NoError(t, err)

	_, err = conn.Exec(ctx, "SELECT * FROM nope", pgx.QueryExecModeSimpleProtocol)
	assert.ErrorContains(t, err, "does not exist")
}

func TestServer_RejectsWrongPassword(t *testing.T) {
	srv, err := NewServer(&fakeExecutor{}, Config{Password: "secret"})
	require.NoError(t, err)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(l)
	defer srv.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = pgx.Connect(ctx, fmt.Sprintf("postgres://wmai:wrong@%s/postgres?sslmode=disable", l.Addr().String()))
	assert.Error(t, err)
}
