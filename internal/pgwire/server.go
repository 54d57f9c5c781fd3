// Package pgwire exposes the SQL proxy over the PostgreSQL wire protocol, so
// psql and other Postgres clients can run statements through the strategy
// cascade. Only the simple query protocol is supported; bind parameters are not.
package pgwire

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	wire "github.com/jeroenrinzema/psql-wire"

	"github.com/wemarka/wmai/internal/sqlexec"
)

// Executor runs one SQL request, typically the proxy service.
type Executor interface {
	Execute(ctx context.Context, req sqlexec.Request) *sqlexec.Result
}

// Config holds the pgwire server configuration.
type Config struct {
	Address  string // TCP address to listen on (e.g., ":5432")
	Password string // Password for authentication (empty = reject all)
	NoAuth   bool   // Disable authentication entirely
	Logger   *slog.Logger
}

// Server implements a PostgreSQL wire protocol front end for an Executor.
type Server struct {
	exec   Executor
	config Config
	server *wire.Server
}

// NewServer creates a new PostgreSQL wire protocol server.
func NewServer(exec Executor, cfg Config) (*Server, error) {
	s := &Server{exec: exec, config: cfg}

	opts := []wire.OptionFn{
		wire.Version("wmai (PostgreSQL compatible)"),
		// pgx refuses simple-protocol queries unless standard_conforming_strings is on.
		wire.GlobalParameters(wire.Parameters{
			wire.ParamServerEncoding:      "UTF8",
			wire.ParamServerVersion:       "15.0",
			"DateStyle":                   "ISO, MDY",
			"TimeZone":                    "UTC",
			"standard_conforming_strings": "on",
		}),
	}
	if cfg.Logger != nil {
		opts = append(opts, wire.Logger(cfg.Logger))
	}
	if !cfg.NoAuth {
		opts = append(opts, wire.SessionAuthStrategy(wire.ClearTextPassword(s.passwordAuth)))
	}

	server, err := wire.NewServer(s.handleQuery, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgwire server: %w", err)
	}
	s.server = server
	return s, nil
}

// passwordAuth validates the provided password. With no password configured
// every attempt is rejected.
func (s *Server) passwordAuth(ctx context.Context, database, username, password string) (context.Context, bool, error) {
	if s.config.Password == "" {
		return ctx, false, nil
	}
	ok := subtle.ConstantTimeCompare([]byte(password), []byte(s.config.Password)) == 1
	return ctx, ok, nil
}

// ListenAndServe starts the server and listens for connections.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on l until the server is closed.
func (s *Server) Serve(l net.Listener) error {
	if s.config.Logger != nil {
		s.config.Logger.Info("pgwire server listening", "address", l.Addr().String())
	}
	return s.server.Serve(l)
}

// Shutdown closes the listener and open sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Close()
}

// handleQuery runs query through the executor and returns its result as a
// prepared statement replaying the rows.
func (s *Server) handleQuery(ctx context.Context, query string) (wire.PreparedStatements, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return wire.Prepared(), nil
	}

	res := s.exec.Execute(ctx, sqlexec.Request{SQL: query})
	if !res.Success {
		msg := "execution failed"
		if res.Error != nil {
			msg = res.Error.Message
		}
		return nil, errors.New(msg)
	}

	rs, err := newResultSet(res.Data)
	if err != nil {
		return nil, err
	}

	tag := commandTag(query, len(rs.rows))
	replay := func(ctx context.Context, writer wire.DataWriter, params []wire.Parameter) error {
		for _, row := range rs.rows {
			if err := writer.Row(row); err != nil {
				return err
			}
		}
		return writer.Complete(tag)
	}

	if len(rs.columns) == 0 {
		return wire.Prepared(wire.NewStatement(replay)), nil
	}
	return wire.Prepared(wire.NewStatement(replay, wire.WithColumns(rs.wireColumns()))), nil
}

// commandTag builds the completion tag: "SELECT n" for statements returning
// rows, otherwise the leading keyword.
func commandTag(query string, rows int) string {
	fields := strings.Fields(query)
	verb := "OK"
	if len(fields) > 0 {
		verb = strings.ToUpper(strings.TrimRight(fields[0], ";"))
	}
	switch verb {
	case "SELECT", "WITH", "VALUES", "TABLE", "SHOW":
		return fmt.Sprintf("SELECT %d", rows)
	}
	if rows > 0 {
		return fmt.Sprintf("SELECT %d", rows)
	}
	return verb
}
