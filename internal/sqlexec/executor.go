package sqlexec

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wemarka/wmai/internal/log"
)

// instrumentationName names the tracer used for executions.
const instrumentationName = "github.com/wemarka/wmai/internal/sqlexec"

var (
	attrMethod      = attribute.Key("sql.method")
	attrRetry       = attribute.Key("sql.retry")
	attrFunction    = attribute.Key("sql.function")
	attrOperationID = attribute.Key("sql.operation_id")
	attrStatus      = attribute.Key("sql.status")
)

// ErrNoStrategies is returned when an Executor has nothing to try.
var ErrNoStrategies = errors.New("no execution strategies configured")

// Execution is a Result plus what happened on the way to it.
type Execution struct {
	Result
	Attempts []Attempt
	// Created lists procedures installed during this execution.
	Created []string
	// Aborted is set when the context ended before the cascade finished.
	Aborted bool
}

// Executor runs SQL through an ordered list of strategies, stopping at the first
// that succeeds. Strategies run sequentially: each is a fallback for the one
// before, and running them in parallel could execute the SQL twice.
type Executor struct {
	strategies []Strategy
	autoCreate bool
	tracer     trace.Tracer
	now        func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithAutoCreate toggles installing a missing procedure and retrying once.
func WithAutoCreate(enabled bool) ExecutorOption {
	return func(e *Executor) {
		e.autoCreate = enabled
	}
}

// WithTracerProvider sets where execution spans go. The global provider is
// used otherwise.
func WithTracerProvider(tp trace.TracerProvider) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tp.Tracer(instrumentationName)
	}
}

// NewExecutor creates an Executor over strategies, tried in order.
func NewExecutor(strategies []Strategy, opts ...ExecutorOption) *Executor {
	e := &Executor{
		strategies: strategies,
		autoCreate: true,
		tracer:     otel.Tracer(instrumentationName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Strategies returns the strategy names in execution order.
func (e *Executor) Strategies() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// functionStrategy is a strategy backed by a named procedure that can be created.
type functionStrategy interface {
	Strategy
	Function() string
}

// Execute runs sql through the cascade. It never returns an error; failures are
// reported in the Result.
func (e *Executor) Execute(ctx context.Context, sql string) *Execution {
	start := e.now()
	exec := &Execution{}

	var lastErr error
	var lastMethod string
	created := make(map[string]bool)

	for i, s := range e.strategies {
		if ctx.Err() != nil {
			exec.Aborted = true
			lastErr = ctx.Err()
			break
		}

		lastMethod = s.Name()
		data, err := e.attempt(ctx, s, sql, attrRetry.Bool(false))
		exec.addAttempt(s.Name(), err, false)
		if err == nil {
			return e.succeed(exec, start, s.Name(), data)
		}
		lastErr = err
		log.DebugContext(ctx, "sql strategy failed", "method", s.Name(), "error", err.Error())

		fs, ok := s.(functionStrategy)
		if !ok || !e.autoCreate || !IsUndefinedFunction(err, fs.Function()) || created[fs.Function()] {
			continue
		}
		created[fs.Function()] = true

		if !e.createFunction(ctx, fs.Function(), i) {
			continue
		}
		exec.Created = append(exec.Created, fs.Function())

		data, err = e.attempt(ctx, s, sql, attrRetry.Bool(true))
		exec.addAttempt(s.Name(), err, true)
		if err == nil {
			return e.succeed(exec, start, s.Name(), data)
		}
		lastErr = err
		log.DebugContext(ctx, "sql strategy retry failed", "method", s.Name(), "error", err.Error())
	}

	if ctx.Err() != nil {
		exec.Aborted = true
	}
	if lastErr == nil {
		lastErr = ErrNoStrategies
	}

	exec.Success = false
	exec.Method = lastMethod
	exec.Error = &ErrorInfo{Message: lastErr.Error(), Details: errorDetails(lastErr)}
	exec.ExecutionTimeMs = e.elapsedMs(start)
	return exec
}

func (e *Executor) succeed(exec *Execution, start time.Time, method string, data []byte) *Execution {
	exec.Success = true
	exec.Method = method
	exec.Data = data
	exec.ExecutionTimeMs = e.elapsedMs(start)
	return exec
}

// createFunction submits the definition of fn through every strategy other than
// the one at skip until one accepts it.
func (e *Executor) createFunction(ctx context.Context, fn string, skip int) bool {
	def, ok := FunctionDefinition(fn)
	if !ok {
		return false
	}

	for j, other := range e.strategies {
		if j == skip {
			continue
		}
		if ctx.Err() != nil {
			return false
		}
		if _, err := e.attempt(ctx, other, def, attrFunction.String(fn)); err != nil {
			log.DebugContext(ctx, "create function failed", "function", fn, "via", other.Name(), "error", err.Error())
			continue
		}
		log.InfoContext(ctx, "created missing sql function", "function", fn, "via", other.Name())
		return true
	}
	return false
}

// attempt runs one strategy inside its own span.
func (e *Executor) attempt(ctx context.Context, s Strategy, sql string, attrs ...attribute.KeyValue) (json.RawMessage, error) {
	ctx, span := e.tracer.Start(ctx, "sql.attempt "+s.Name(),
		trace.WithAttributes(append(attrs, attrMethod.String(s.Name()))...))
	defer span.End()

	data, err := s.Attempt(ctx, sql)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return data, err
}

func (exec *Execution) addAttempt(method string, err error, retry bool) {
	a := Attempt{Method: method, Retry: retry}
	if err != nil {
		a.Error = err.Error()
	}
	exec.Attempts = append(exec.Attempts, a)
}

func (e *Executor) elapsedMs(start time.Time) int64 {
	ms := e.now().Sub(start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}
