package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/colegio-ws/gestor/pkg/version"
)

// ToolSchema is the client-side view of a registered tool.
type ToolSchema struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Parameters  Schema   `json:"parameters"`
}

// Client talks to the tool server. Safe for concurrent use; construct once
// per process and share by reference.
type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	cache []ToolSchema
}

// NewClient creates a tool server client with a fixed 30s timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Ping checks server availability over JSON-RPC.
func (c *Client) Ping(ctx context.Context) bool {
	var resp rpcResponse
	err := c.postJSON(ctx, "/mcp", rpcRequest{
		JSONRPC: "2.0",
		Method:  "ping",
		Params:  map[string]any{},
		ID:      "ping",
	}, &resp)
	if err != nil {
		slog.Warn("Tool server unreachable", "error", err)
		return false
	}
	return resp.Error == nil
}

// ListTools returns the available tools, optionally filtered by category.
// The unfiltered list is cached for the lifetime of the client.
func (c *Client) ListTools(ctx context.Context, category Category) ([]ToolSchema, error) {
	if category == "" {
		c.mu.Lock()
		cached := c.cache
		c.mu.Unlock()
		if cached != nil {
			return cached, nil
		}
	}

	url := c.baseURL + "/tools"
	if category != "" {
		url += "?category=" + string(category)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}
	req.Header.Set("User-Agent", version.Full())

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool server returned status %d", httpResp.StatusCode)
	}

	var payload struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode tool list: %w", err)
	}

	if category == "" {
		c.mu.Lock()
		c.cache = payload.Tools
		c.mu.Unlock()
	}
	return payload.Tools, nil
}

// CallTool invokes a tool. Transport failures are folded into the Result so
// callers handle one shape; the error envelope never raises.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) *Result {
	if args == nil {
		args = map[string]any{}
	}
	var result Result
	err := c.postJSON(ctx, "/tools/"+name+"/call", callRequest{Arguments: args}, &result)
	if err != nil {
		slog.Error("Tool call transport failure", "tool", name, "error", err)
		return &Result{Success: false, Error: fmt.Sprintf("tool server unavailable: %v", err)}
	}
	return &result
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tool server returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
