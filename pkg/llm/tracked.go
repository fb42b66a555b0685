package llm

import "context"

// Tracked wraps a Client so that every invocation is recorded into the token
// session bound to the request context. Calls without a bound session pass
// through unrecorded (e.g. background enrichment jobs).
type Tracked struct {
	inner Client
}

// NewTracked wraps a client with token accounting.
func NewTracked(inner Client) *Tracked {
	return &Tracked{inner: inner}
}

func (t *Tracked) Provider() string { return t.inner.Provider() }
func (t *Tracked) Model() string    { return t.inner.Model() }

// Generate invokes the underlying model and appends an InferenceRecord to
// the active session.
func (t *Tracked) Generate(ctx context.Context, req *Request) (*Response, error) {
	resp, err := t.inner.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	if session := SessionFromContext(ctx); session != nil {
		session.Record(InferenceRecord{
			Node:             req.Node,
			Kind:             req.Kind,
			PromptTokens:     resp.PromptTokens,
			CompletionTokens: resp.CompletionTokens,
			TotalTokens:      resp.TotalTokens,
			Metadata: map[string]any{
				"provider": t.inner.Provider(),
				"model":    t.inner.Model(),
			},
		})
	}
	return resp, nil
}
