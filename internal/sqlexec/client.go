package sqlexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wemarka/wmai/internal/supabase"
)

// Client submits SQL to a deployed proxy endpoint.
type Client struct {
	url        string
	key        string
	httpClient *http.Client
}

// NewClient creates a client for the proxy at url. key is sent as bearer token
// and apikey; it may be empty for proxies without JWT verification.
func NewClient(url, key string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * DefaultTimeout}
	}
	return &Client{url: url, key: key, httpClient: httpClient}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details struct {
		Method          string `json:"method"`
		ExecutionTimeMs int64  `json:"executionTimeMs"`
		Error           any    `json:"error"`
	} `json:"details"`
}

// Execute posts req and converts the response envelope into a Result. Transport
// and decoding failures are returned as failed results.
func (c *Client) Execute(ctx context.Context, req Request) *Result {
	start := time.Now()
	fail := func(format string, args ...any) *Result {
		return &Result{
			Error:           &ErrorInfo{Message: fmt.Sprintf(format, args...)},
			ExecutionTimeMs: time.Since(start).Milliseconds(),
		}
	}

	payload, err := json.Marshal(map[string]string{"sql": req.SQL, "operation_id": req.OperationID})
	if err != nil {
		return fail("marshaling request: %v", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fail("creating request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		supabase.SetAuthHeaders(httpReq, c.key)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fail("calling proxy: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail("reading proxy response: %v", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fail("proxy returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	res := &Result{
		Success:         env.Success,
		ExecutionTimeMs: env.Details.ExecutionTimeMs,
	}
	if env.Details.Method != "" {
		res.Method = EdgeFunctionMethodPrefix + env.Details.Method
	}
	if env.Success {
		res.Data = env.Data
		return res
	}

	msg := env.Error
	if msg == "" {
		msg = fmt.Sprintf("proxy returned status %d", resp.StatusCode)
	}
	res.Error = &ErrorInfo{Message: msg, Details: env.Details.Error}
	return res
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
