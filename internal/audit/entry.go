// Package audit persists one execution log entry per SQL proxy invocation.
package audit

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// OperationTypeCustomSQL is the operation type of every proxy execution.
const OperationTypeCustomSQL = "custom_sql"

// DefaultTable is the audit table name on the hosted database.
const DefaultTable = "migration_logs"

// Status is the final state of an execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusError   Status = "error"
)

// Entry is an append-only execution log record.
type Entry struct {
	ID              int64     `db:"id" json:"id,omitempty"`
	OperationID     string    `db:"operation_id" json:"operation_id"`
	OperationType   string    `db:"operation_type" json:"operation_type"`
	SQLContent      string    `db:"sql_content" json:"sql_content"`
	SQLPreview      string    `db:"sql_preview" json:"sql_preview"`
	SQLHash         string    `db:"sql_hash" json:"sql_hash"`
	Status          Status    `db:"status" json:"status"`
	MethodUsed      string    `db:"method_used" json:"method_used"`
	ExecutionTimeMs int64     `db:"execution_time_ms" json:"execution_time_ms"`
	Details         JSON      `db:"details" json:"details"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// Store appends entries. Implementations never update or delete.
type Store interface {
	Append(ctx context.Context, e *Entry) error
}

// JSON is a JSON document stored as text.
type JSON json.RawMessage

// MarshalJSON emits the document as-is, or null when empty.
func (j JSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON keeps a copy of the raw document.
func (j *JSON) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

// Value stores the document as a string so text and jsonb columns both accept it.
func (j JSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

// Scan reads a document from a text, blob or jsonb column.
func (j *JSON) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case string:
		*j = JSON(v)
	case []byte:
		*j = append(JSON(nil), v...)
	default:
		return fmt.Errorf("audit: cannot scan %T into JSON", src)
	}
	return nil
}

// MarshalDetails encodes v for Entry.Details, falling back to null.
func MarshalDetails(v any) JSON {
	data, err := json.Marshal(v)
	if err != nil {
		return JSON("null")
	}
	return JSON(data)
}
