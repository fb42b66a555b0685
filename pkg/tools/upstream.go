package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/colegio-ws/gestor/pkg/version"
)

// upstream is the shared HTTP helper for live tool handlers (ERP service,
// orchestrator, insights service). 404 is surfaced as errNotFound so handlers
// can translate a miss into an empty result instead of a failure.

var errNotFound = fmt.Errorf("upstream returned 404")

type upstream struct {
	baseURL string
	http    *http.Client
}

func newUpstream(baseURL string) *upstream {
	return &upstream{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (u *upstream) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", version.Full())
	return u.do(req, out)
}

func (u *upstream) postJSON(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())
	return u.do(req, out)
}

func (u *upstream) do(req *http.Request, out any) error {
	resp, err := u.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode >= 400:
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
