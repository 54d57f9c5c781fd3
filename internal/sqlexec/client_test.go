package sqlexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Execute_Success(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":true,"data":[{"x":1}],"details":{"method":"exec_sql","executionTimeMs":12,"operationId":"op-1"}}`))
	}))
	defer srv.Close()

	res := NewClient(srv.URL, "anon", nil).Execute(context.Background(), Request{SQL: "SELECT 1", OperationID: "op-1"})

	require.True(t, res.Success)
	assert.Equal(t, "edge-function-exec_sql", res.Method)
	assert.Equal(t, int64(12), res.ExecutionTimeMs)
	assert.JSONEq(t, `[{"x":1}]`, string(res.Data))
	assert.Equal(t, "Bearer anon", gotAuth)
	assert.Equal(t, "SELECT 1", gotBody["sql"])
	assert.Equal(t, "op-1", gotBody["operation_id"])
}

func TestClient_Execute_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":"relation \"t\" does not exist","details":{"method":"direct_rest","executionTimeMs":3,"error":{"status":400}}}`))
	}))
	defer srv.Close()

	res := NewClient(srv.URL, "", nil).Execute(context.Background(), Request{SQL: "SELECT * FROM t"})

	require.False(t, res.Success)
	assert.Equal(t, "edge-function-direct_rest", res.Method)
	require.NotNil(t, res.Error)
	assert.Equal(t, `relation "t" does not exist`, res.Error.Message)
	assert.Equal(t, map[string]any{"status": float64(400)}, res.Error.Details)
}

func TestClient_Execute_NonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	}))
	defer srv.Close()

	res := NewClient(srv.URL, "k", nil).Execute(context.Background(), Request{SQL: "SELECT 1"})
	require.False(t, res.Success)
	assert.Equal(t, "proxy returned status 502: bad gateway", res.Error.Message)
	assert.Empty(t, res.Method)
}

func TestClient_Execute_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	res := NewClient(url, "k", nil).Execute(context.Background(), Request{SQL: "SELECT 1"})
	require.False(t, res.Success)
	assert.Contains(t, res.Error.Message, "calling proxy")
}

func TestClient_AgainstHandler(t *testing.T) {
	caller := &fakeCaller{respond: func(fn string, n int, args map[string]any) (json.RawMessage, error) {
		return json.RawMessage(`[{"v":"a"}]`), nil
	}}
	srv := httptest.NewServer(newTestHandler(caller, nil, &memStore{}))
	defer srv.Close()

	res := NewClient(srv.URL, "k", nil).Execute(context.Background(), Request{SQL: "SELECT 'a' AS v"})
	require.True(t, res.Success)
	assert.Equal(t, "edge-function-pg_query", res.Method)
	assert.JSONEq(t, `[{"v":"a"}]`, string(res.Data))
}
