package sqlexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wemarka/wmai/internal/supabase"
)

// Strategy is one way of getting SQL executed on the database.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, sql string) (json.RawMessage, error)
}

// RPCStrategy executes SQL by calling a named procedure that takes the SQL as its
// only argument.
type RPCStrategy struct {
	name   string
	fn     string
	arg    string
	caller RPCCaller
}

// NewRPCStrategy creates a strategy calling fn(arg := sql) through caller.
func NewRPCStrategy(name, fn, arg string, caller RPCCaller) *RPCStrategy {
	return &RPCStrategy{name: name, fn: fn, arg: arg, caller: caller}
}

// NewPgQueryStrategy calls pg_query(query text).
func NewPgQueryStrategy(caller RPCCaller) *RPCStrategy {
	return NewRPCStrategy(MethodPgQuery, "pg_query", "query", caller)
}

// NewExecSQLStrategy calls exec_sql(sql_text text).
func NewExecSQLStrategy(caller RPCCaller) *RPCStrategy {
	return NewRPCStrategy(MethodExecSQL, "exec_sql", "sql_text", caller)
}

func (s *RPCStrategy) Name() string { return s.name }

// Function returns the remote procedure this strategy depends on.
func (s *RPCStrategy) Function() string { return s.fn }

func (s *RPCStrategy) Attempt(ctx context.Context, sql string) (json.RawMessage, error) {
	return s.caller.RPC(ctx, s.fn, map[string]any{s.arg: sql})
}

// RESTStrategy bypasses the RPC caller and POSTs straight to the REST RPC endpoint
// with service-role headers.
type RESTStrategy struct {
	url        string
	key        string
	httpClient *http.Client
}

// NewRESTStrategy creates the direct REST strategy for pg_query on the project at baseURL.
func NewRESTStrategy(baseURL, key string, httpClient *http.Client) *RESTStrategy {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RESTStrategy{
		url:        strings.TrimRight(baseURL, "/") + "/rest/v1/rpc/pg_query",
		key:        key,
		httpClient: httpClient,
	}
}

func (s *RESTStrategy) Name() string { return MethodDirectREST }

func (s *RESTStrategy) Attempt(ctx context.Context, sql string) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]string{"query": sql})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	supabase.SetAuthHeaders(req, s.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("direct rest call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("direct rest call: response is not valid JSON")
	}
	return json.RawMessage(body), nil
}
