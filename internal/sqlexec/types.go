// Package sqlexec executes caller-supplied SQL against a hosted Postgres database
// through an ordered cascade of remote procedure strategies.
package sqlexec

import (
	"context"
	"encoding/json"
)

// Strategy method names as reported in results and audit entries.
const (
	MethodPgQuery    = "pg_query"
	MethodExecSQL    = "exec_sql"
	MethodDirectREST = "direct_rest"

	// EdgeFunctionMethodPrefix prefixes the method of results obtained through a deployed proxy.
	EdgeFunctionMethodPrefix = "edge-function-"
)

// Request is a single SQL execution request.
type Request struct {
	SQL         string
	OperationID string
}

// ErrorInfo describes why an execution failed.
type ErrorInfo struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Result is the uniform outcome of an execution.
type Result struct {
	Success         bool
	Data            json.RawMessage
	Error           *ErrorInfo
	Method          string
	ExecutionTimeMs int64
}

// Attempt records one strategy invocation inside a cascade.
type Attempt struct {
	Method string `json:"method"`
	Error  string `json:"error,omitempty"`
	// Retry is set on the single re-run after a missing procedure was created.
	Retry bool `json:"retry,omitempty"`
}

// RPCCaller invokes a named remote procedure with named arguments.
type RPCCaller interface {
	RPC(ctx context.Context, fn string, args map[string]any) (json.RawMessage, error)
}
