package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RPC(t *testing.T) {
	var gotPath, gotAPIKey, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("apikey")
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"x":1}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "service-key")
	data, err := c.RPC(context.Background(), "pg_query", map[string]any{"query": "SELECT 1;"})
	require.NoError(t, err)

	assert.JSONEq(t, `[{"x":1}]`, string(data))
	assert.Equal(t, "/rest/v1/rpc/pg_query", gotPath)
	assert.Equal(t, "service-key", gotAPIKey)
	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, "SELECT 1;", gotBody["query"])
}

func TestClient_RPC_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	data, err := c.RPC(context.Background(), "exec_sql", map[string]any{"sql_text": "CREATE TABLE t (id int)"})
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
}

func TestClient_RPC_FunctionNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"PGRST202","message":"Could not find the function public.pg_query(query) in the schema cache","details":null,"hint":null}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k")
	_, err := c.RPC(context.Background(), "pg_query", map[string]any{"query": "SELECT 1"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, CodeFunctionNotFound, apiErr.Code)
	assert.Equal(t, CodeFunctionNotFound, apiErr.SQLState())
	assert.Contains(t, apiErr.Error(), "schema cache")
}

func TestClient_Insert(t *testing.T) {
	var gotPath, gotPrefer string
	var gotRow map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotPrefer = r.Header.Get("Prefer")
		json.NewDecoder(r.Body).Decode(&gotRow)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "k", WithSchema("public"))
	err := c.Insert(context.Background(), "migration_logs", map[string]any{"operation_id": "op-1"})
	require.NoError(t, err)

	assert.Equal(t, "/rest/v1/migration_logs", gotPath)
	assert.Equal(t, "return=minimal", gotPrefer)
	assert.Equal(t, "op-1", gotRow["operation_id"])
}

func TestClient_Insert_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`Invalid API key`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "bad")
	err := c.Insert(context.Background(), "migration_logs", map[string]any{})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Invalid API key", apiErr.Message)
}

func TestDecodeError_EmptyBody(t *testing.T) {
	apiErr := DecodeError(http.StatusBadGateway, nil)
	assert.Equal(t, "request failed with status 502", apiErr.Message)
	assert.Equal(t, "", apiErr.Code)
}
