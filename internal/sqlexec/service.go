package sqlexec

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wemarka/wmai/internal/audit"
	"github.com/wemarka/wmai/internal/log"
)

// DefaultTimeout bounds a whole cascade when no timeout is configured.
const DefaultTimeout = 60 * time.Second

// Observer is told about every finished execution.
type Observer interface {
	ObserveExecution(ctx context.Context, method, status string, durationMs int64, attempts int)
}

// Service runs requests through an Executor and records one audit entry each.
type Service struct {
	executor *Executor
	recorder *audit.Recorder
	observer Observer
	timeout  time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithObserver reports each finished execution to o.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) {
		s.observer = o
	}
}

// NewService creates a Service. A zero timeout means DefaultTimeout; a negative
// one disables the bound.
func NewService(executor *Executor, recorder *audit.Recorder, timeout time.Duration, opts ...ServiceOption) *Service {
	if recorder == nil {
		recorder = audit.NewRecorder(nil)
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	s := &Service{executor: executor, recorder: recorder, timeout: timeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes req and returns the execution with the operation id used. The
// caller must have validated req.SQL; an empty operation id is generated.
func (s *Service) Run(ctx context.Context, req Request) (*Execution, string) {
	opID := strings.TrimSpace(req.OperationID)
	if opID == "" {
		opID = NewOperationID()
	}

	ctx, span := s.executor.tracer.Start(ctx, "sql.execute", trace.WithAttributes(attrOperationID.String(opID)))
	defer span.End()

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	exec := s.executor.Execute(runCtx, req.SQL)

	entry := newEntry(ctx, opID, req.SQL, exec)
	s.recorder.Record(ctx, entry)

	span.SetAttributes(attrMethod.String(exec.Method), attrStatus.String(string(entry.Status)))
	if exec.Success {
		span.SetStatus(codes.Ok, "")
	} else if exec.Error != nil {
		span.SetStatus(codes.Error, exec.Error.Message)
	}
	if s.observer != nil {
		s.observer.ObserveExecution(ctx, exec.Method, string(entry.Status), exec.ExecutionTimeMs, len(exec.Attempts))
	}

	log.InfoContext(ctx, "sql execution finished",
		"operation_id", opID,
		"success", exec.Success,
		"method", exec.Method,
		"attempts", len(exec.Attempts),
		"duration_ms", exec.ExecutionTimeMs,
	)
	return exec, opID
}

// Execute runs req and returns only its Result, so a Service can stand in for a
// proxy Client.
func (s *Service) Execute(ctx context.Context, req Request) *Result {
	exec, _ := s.Run(ctx, req)
	return &exec.Result
}

func newEntry(ctx context.Context, opID, sql string, exec *Execution) *audit.Entry {
	status := audit.StatusSuccess
	switch {
	case exec.Success:
	case exec.Aborted:
		status = audit.StatusError
	default:
		status = audit.StatusFailed
	}

	details := map[string]any{
		"success":  exec.Success,
		"attempts": exec.Attempts,
	}
	if len(exec.Created) > 0 {
		details["created_functions"] = exec.Created
	}
	if exec.Error != nil {
		details["error"] = exec.Error.Message
	}
	if id := log.GetRequestID(ctx); id != "" {
		details["request_id"] = id
	}

	return &audit.Entry{
		OperationID:     opID,
		OperationType:   audit.OperationTypeCustomSQL,
		SQLContent:      sql,
		SQLPreview:      Preview(sql),
		SQLHash:         Hash(sql),
		Status:          status,
		MethodUsed:      exec.Method,
		ExecutionTimeMs: exec.ExecutionTimeMs,
		Details:         audit.MarshalDetails(details),
		CreatedAt:       time.Now().UTC(),
	}
}
