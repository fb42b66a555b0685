package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InferenceRecord is one LLM invocation inside a token session.
type InferenceRecord struct {
	Node             string         `json:"node_name"`
	Kind             string         `json:"inference_type"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	Timestamp        time.Time      `json:"timestamp"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// TokenSession aggregates token consumption for one inbound query.
// Safe for concurrent use; a session is bound to a request context and must
// never be shared across concurrent requests.
type TokenSession struct {
	mu sync.Mutex

	QueryID   string
	Handle    string
	Message   string
	StartTime time.Time
	EndTime   time.Time

	Provider string
	Model    string

	Inferences            []InferenceRecord
	TotalPromptTokens     int
	TotalCompletionTokens int
	TotalTokens           int

	finalized bool
}

// StartSession creates a token session for an inbound query. queryID may be
// empty, in which case one is generated.
func StartSession(queryID, handle, message string) *TokenSession {
	if queryID == "" {
		queryID = uuid.New().String()
	}
	return &TokenSession{
		QueryID:   queryID,
		Handle:    handle,
		Message:   message,
		StartTime: time.Now().UTC(),
	}
}

// Record appends an inference and accumulates totals.
func (s *TokenSession) Record(rec InferenceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		slog.Warn("Token session already finalized, dropping inference record",
			"query_id", s.QueryID, "node", rec.Node)
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	if s.Provider == "" {
		if p, ok := rec.Metadata["provider"].(string); ok {
			s.Provider = p
		}
	}
	if s.Model == "" {
		if m, ok := rec.Metadata["model"].(string); ok {
			s.Model = m
		}
	}
	s.Inferences = append(s.Inferences, rec)
	s.TotalPromptTokens += rec.PromptTokens
	s.TotalCompletionTokens += rec.CompletionTokens
	s.TotalTokens += rec.TotalTokens
}

// Finalize stamps the end time, emits the structured [TOKEN_USAGE] log line
// plus a human-readable block, and returns the session. Subsequent Record
// calls are dropped.
func (s *TokenSession) Finalize() *TokenSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return s
	}
	s.finalized = true
	s.EndTime = time.Now().UTC()

	payload, err := json.Marshal(s.summary())
	if err != nil {
		slog.Error("Failed to marshal token usage summary", "query_id", s.QueryID, "error", err)
	} else {
		slog.Info(fmt.Sprintf("[TOKEN_USAGE] %s", payload))
	}
	slog.Info(s.humanSummary())
	return s
}

type sessionSummary struct {
	QueryID               string            `json:"query_id"`
	Handle                string            `json:"whatsapp"`
	Message               string            `json:"mensaje"`
	StartTime             string            `json:"start_time"`
	EndTime               string            `json:"end_time"`
	Provider              string            `json:"provider,omitempty"`
	Model                 string            `json:"model,omitempty"`
	Inferences            []InferenceRecord `json:"inferences"`
	TotalPromptTokens     int               `json:"total_prompt_tokens"`
	TotalCompletionTokens int               `json:"total_completion_tokens"`
	TotalTokens           int               `json:"total_tokens"`
	InferenceCount        int               `json:"inference_count"`
}

func (s *TokenSession) summary() sessionSummary {
	return sessionSummary{
		QueryID:               s.QueryID,
		Handle:                s.Handle,
		Message:               s.Message,
		StartTime:             s.StartTime.Format(time.RFC3339Nano),
		EndTime:               s.EndTime.Format(time.RFC3339Nano),
		Provider:              s.Provider,
		Model:                 s.Model,
		Inferences:            s.Inferences,
		TotalPromptTokens:     s.TotalPromptTokens,
		TotalCompletionTokens: s.TotalCompletionTokens,
		TotalTokens:           s.TotalTokens,
		InferenceCount:        len(s.Inferences),
	}
}

func (s *TokenSession) humanSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Token usage for query %s (%s)\n", s.QueryID, s.Handle)
	for _, rec := range s.Inferences {
		fmt.Fprintf(&b, "  %-28s %-12s prompt=%-6d completion=%-6d total=%d\n",
			rec.Node, rec.Kind, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens)
	}
	fmt.Fprintf(&b, "  TOTAL: %d inferences, prompt=%d completion=%d total=%d",
		len(s.Inferences), s.TotalPromptTokens, s.TotalCompletionTokens, s.TotalTokens)
	return b.String()
}

// Session binding is context-scoped so concurrent requests never share a
// session (no process-global state).

type sessionKey struct{}

// WithSession binds a token session to the request context.
func WithSession(ctx context.Context, session *TokenSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the bound session, or nil when tracking is off.
func SessionFromContext(ctx context.Context) *TokenSession {
	s, _ := ctx.Value(sessionKey{}).(*TokenSession)
	return s
}
