package log

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger()
	SetLogger(slog.New(NewConsoleHandler(&buf, &Config{Format: "text"}, slog.LevelInfo)))
	t.Cleanup(func() { SetLogger(prev) })
	return &buf
}

func TestRequestLogger(t *testing.T) {
	buf := captureLogs(t)

	wrapped := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true}`))
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/functions/v1/execute-sql", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	out := buf.String()
	assert.Contains(t, out, "http request")
	assert.Contains(t, out, "method=POST")
	assert.Contains(t, out, "path=/functions/v1/execute-sql")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "level=INFO")
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusNoContent, "level=INFO"},
		{http.StatusBadRequest, "level=WARN"},
		{http.StatusMethodNotAllowed, "level=WARN"},
		{http.StatusInternalServerError, "level=ERROR"},
	}
	for _, tt := range tests {
		buf := captureLogs(t)
		wrapped := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		wrapped.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Contains(t, buf.String(), tt.level, tt.status)
	}
}

func TestRequestLogger_GeneratesRequestID(t *testing.T) {
	captureLogs(t)
	var seen string
	wrapped := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Len(t, seen, 8)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestLogger_ReusesCallerRequestID(t *testing.T) {
	captureLogs(t)

	tests := []struct {
		header string
		reused bool
	}{
		{"deploy-42.step_1", true},
		{"has spaces", false},
		{strings.Repeat("a", 65), false},
	}
	for _, tt := range tests {
		var seen string
		wrapped := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = GetRequestID(r.Context())
		}))
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(RequestIDHeader, tt.header)
		wrapped.ServeHTTP(httptest.NewRecorder(), req)

		if tt.reused {
			assert.Equal(t, tt.header, seen)
		} else {
			assert.Len(t, seen, 8, tt.header)
		}
	}
}
