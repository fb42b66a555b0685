// Package llm provides the language-model client used by the agent runtime:
// a provider factory (openai/google), a tracking wrapper that accounts token
// usage per query, and the task-local token session it records into.
package llm

import "context"

// Request is a single model invocation.
type Request struct {
	// Node names the runtime node issuing the call (e.g. "manager",
	// "financiero_planificar", "sintetizador").
	Node string
	// Kind tags the inference type (e.g. "planning", "specialist", "synthesis").
	Kind string

	System string
	Prompt string
}

// Response is the model output plus the token accounting extracted from the
// provider response.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the runtime-facing model interface.
type Client interface {
	// Generate invokes the model. Implementations must populate the token
	// counts on the response, falling back to a tokenizer estimate when the
	// provider omits usage metadata.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Provider and Model identify the configured backend for observability.
	Provider() string
	Model() string
}
