package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, mockMode bool) *httptest.Server {
	t.Helper()
	srv := NewServer(testRegistry(), mockMode)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) map[string]any {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return decoded
}

func TestRESTListTools(t *testing.T) {
	ts := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/tools")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Tools []toolView `json:"tools"`
		Count int        `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, 3, payload.Count)

	resp2, err := http.Get(ts.URL + "/tools?category=erp")
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&payload))
	assert.Equal(t, 2, payload.Count)
}

func TestRESTGetTool(t *testing.T) {
	ts := newTestServer(t, false)

	resp, err := http.Get(ts.URL + "/tools/saluda")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp404, err := http.Get(ts.URL + "/tools/nada")
	require.NoError(t, err)
	defer func() { _ = resp404.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp404.StatusCode)
}

func TestRESTCallTool(t *testing.T) {
	ts := newTestServer(t, false)

	result := postJSON(t, ts.URL+"/tools/saluda/call", callRequest{
		Arguments: map[string]any{"nombre": "Ana"},
	})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, map[string]any{"saludo": "hola Ana"}, result["data"])
}

func TestRPCPing(t *testing.T) {
	ts := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/mcp", rpcRequest{
		JSONRPC: "2.0", Method: "ping", Params: map[string]any{}, ID: "1",
	})
	assert.Equal(t, "2.0", resp["jsonrpc"])
	assert.Equal(t, "1", resp["id"])
	assert.Equal(t, map[string]any{"status": "pong"}, resp["result"])
}

func TestRPCMethodNotFound(t *testing.T) {
	ts := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/mcp", rpcRequest{
		JSONRPC: "2.0", Method: "tools/destroy", ID: "2",
	})
	errObj, ok := resp["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(-32601), errObj["code"])
}

func TestRPCCallTool(t *testing.T) {
	ts := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/mcp", rpcRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params: map[string]any{
			"name":      "saluda",
			"arguments": map[string]any{"nombre": "Luis"},
		},
		ID: "3",
	})
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, result["success"])
}

func TestRPCCallUnknownTool(t *testing.T) {
	ts := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/mcp", rpcRequest{
		JSONRPC: "2.0",
		Method:  "tools/call",
		Params:  map[string]any{"name": "nada"},
		ID:      "4",
	})
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "not found")
}

func TestRPCSchema(t *testing.T) {
	ts := newTestServer(t, false)

	resp := postJSON(t, ts.URL+"/mcp", rpcRequest{
		JSONRPC: "2.0",
		Method:  "tools/schema",
		Params:  map[string]any{"name": "saluda"},
		ID:      "5",
	})
	result, ok := resp["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "saluda", result["name"])

	// Internal error code for a missing tool schema.
	resp = postJSON(t, ts.URL+"/mcp", rpcRequest{
		JSONRPC: "2.0",
		Method:  "tools/schema",
		Params:  map[string]any{"name": "nada"},
		ID:      "6",
	})
	errObj, ok := resp["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(-32603), errObj["code"])
}

func TestClientAgainstServer(t *testing.T) {
	ts := newTestServer(t, true)
	client := NewClient(ts.URL)

	assert.True(t, client.Ping(context.Background()))

	schemas, err := client.ListTools(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, schemas, 3)

	// Mock mode: the saluda tool declares a mock response.
	result := client.CallTool(context.Background(), "saluda", map[string]any{"nombre": "Ana"})
	require.True(t, result.Success)
	assert.Equal(t, map[string]any{"saludo": "hola mock"}, result.Data)
}

func TestClientTransportFailureFoldedIntoResult(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	result := client.CallTool(context.Background(), "saluda", nil)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unavailable")
}
