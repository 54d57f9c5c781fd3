package sqlexec

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// codeFunctionNotFound is PostgREST's code for an RPC target missing from its
// schema cache. It only ever refers to the function being called.
const codeFunctionNotFound = "PGRST202"

// codeUndefinedFunction is the Postgres SQLSTATE for undefined_function. The
// statement run inside a procedure can raise it too, so it only counts when the
// message names the procedure.
const codeUndefinedFunction = "42883"

// sqlStater is implemented by database errors that carry a SQLSTATE-like code
// (*pgconn.PgError, *supabase.APIError).
type sqlStater interface {
	SQLState() string
}

// IsUndefinedFunction reports whether err says that procedure fn is missing.
// Structured codes are checked first; message matching is the fallback for
// errors that arrive without one.
func IsUndefinedFunction(err error, fn string) bool {
	if err == nil || fn == "" {
		return false
	}

	var st sqlStater
	if errors.As(err, &st) {
		switch st.SQLState() {
		case codeFunctionNotFound:
			return true
		case codeUndefinedFunction, "":
		default:
			return false
		}
	}

	msg := strings.ToLower(err.Error())
	missing := strings.Contains(msg, "could not find the function") ||
		(strings.Contains(msg, "function") && strings.Contains(msg, "does not exist"))
	return missing && namesFunction(msg, fn)
}

// namesFunction reports whether msg refers to a call of fn, optionally
// schema-qualified with public, such as `public.pg_query(query => text)`.
func namesFunction(msg, fn string) bool {
	re := regexp.MustCompile(`(^|[^a-z0-9_.])("?public"?\.)?"?` + regexp.QuoteMeta(strings.ToLower(fn)) + `"?\s*\(`)
	return re.MatchString(msg)
}

// HTTPStatusError is returned by the direct REST strategy for non-2xx responses.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// errorDetails extracts structured details from err for the response envelope.
func errorDetails(err error) any {
	var st sqlStater
	if errors.As(err, &st) && st.SQLState() != "" {
		return map[string]any{"code": st.SQLState()}
	}
	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return map[string]any{"status": httpErr.StatusCode}
	}
	return nil
}
