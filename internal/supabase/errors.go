package supabase

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PostgREST error codes this project cares about.
const (
	// CodeFunctionNotFound is returned when the schema cache has no such function.
	CodeFunctionNotFound = "PGRST202"
	// CodeUndefinedFunction is the Postgres SQLSTATE for undefined_function.
	CodeUndefinedFunction = "42883"
)

// APIError is a PostgREST error response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details"`
	Hint    any    `json:"hint"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// SQLState returns the error code so callers can inspect it like a database error.
func (e *APIError) SQLState() string {
	return e.Code
}

// DecodeError builds an APIError from a non-2xx response body.
func DecodeError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", status)
		}
		apiErr.Message = msg
	}
	apiErr.Status = status
	return apiErr
}
