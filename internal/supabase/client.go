// Package supabase provides a minimal PostgREST client for a hosted Supabase project.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the REST API of a single Supabase project with one API key.
type Client struct {
	baseURL    string
	key        string
	schema     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithSchema sets the Postgres schema sent in Content-Profile/Accept-Profile.
func WithSchema(schema string) Option {
	return func(c *Client) {
		c.schema = schema
	}
}

// NewClient creates a client for the project at baseURL (e.g. https://xyz.supabase.co).
func NewClient(baseURL, key string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the project URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// RPCURL returns the REST endpoint for the named remote procedure.
func (c *Client) RPCURL(fn string) string {
	return c.baseURL + "/rest/v1/rpc/" + fn
}

// SetAuthHeaders sets the apikey and bearer headers PostgREST expects.
func SetAuthHeaders(req *http.Request, key string) {
	req.Header.Set("apikey", key)
	req.Header.Set("Authorization", "Bearer "+key)
}

// doRequest performs an HTTP request against the project's REST API.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, prefer string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	SetAuthHeaders(req, c.key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	if c.schema != "" {
		req.Header.Set("Accept-Profile", c.schema)
		req.Header.Set("Content-Profile", c.schema)
	}

	return c.httpClient.Do(req)
}

// RPC invokes POST /rest/v1/rpc/{fn} with args as the JSON body and returns the raw result.
// A successful call with an empty body yields JSON null.
func (c *Client) RPC(ctx context.Context, fn string, args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/rest/v1/rpc/"+fn, args, "")
	if err != nil {
		return nil, fmt.Errorf("calling rpc %s: %w", fn, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading rpc %s response: %w", fn, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, DecodeError(resp.StatusCode, body)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(body), nil
}

// Insert appends one row to table without asking for the representation back.
func (c *Client) Insert(ctx context.Context, table string, row any) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/rest/v1/"+table, row, "return=minimal")
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("inserting into %s: %w", table, DecodeError(resp.StatusCode, body))
	}
	return nil
}
