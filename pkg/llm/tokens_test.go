package llm

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTotalsMatchInferences(t *testing.T) {
	session := StartSession("", "+5491112345001", "Cuánto debo?")
	require.NotEmpty(t, session.QueryID)

	records := []InferenceRecord{
		{Node: "manager", Kind: "planning", PromptTokens: 120, CompletionTokens: 45, TotalTokens: 165},
		{Node: "financiero_planificar", Kind: "specialist", PromptTokens: 80, CompletionTokens: 30, TotalTokens: 110},
		{Node: "sintetizador", Kind: "synthesis", PromptTokens: 200, CompletionTokens: 60, TotalTokens: 260},
	}
	for _, rec := range records {
		session.Record(rec)
	}
	session.Finalize()

	var prompt, completion, total int
	for _, rec := range session.Inferences {
		prompt += rec.PromptTokens
		completion += rec.CompletionTokens
		total += rec.TotalTokens
	}
	assert.Equal(t, prompt, session.TotalPromptTokens)
	assert.Equal(t, completion, session.TotalCompletionTokens)
	assert.Equal(t, total, session.TotalTokens)
	assert.Len(t, session.Inferences, 3)
}

func TestSessionRecordAfterFinalizeDropped(t *testing.T) {
	session := StartSession("q1", "+549", "hola")
	session.Finalize()
	session.Record(InferenceRecord{Node: "manager", TotalTokens: 99})
	assert.Zero(t, session.TotalTokens)
	assert.Empty(t, session.Inferences)
}

func TestSessionPicksProviderFromMetadata(t *testing.T) {
	session := StartSession("q1", "+549", "hola")
	session.Record(InferenceRecord{
		Node: "manager", TotalTokens: 10,
		Metadata: map[string]any{"provider": "openai", "model": "gpt-4o-mini"},
	})
	assert.Equal(t, "openai", session.Provider)
	assert.Equal(t, "gpt-4o-mini", session.Model)
}

func TestSessionIsolationAcrossContexts(t *testing.T) {
	sessionA := StartSession("a", "+1", "a")
	sessionB := StartSession("b", "+2", "b")
	ctxA := WithSession(context.Background(), sessionA)
	ctxB := WithSession(context.Background(), sessionB)

	tracked := NewTracked(NewScripted("hola"))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tracked.Generate(ctxA, &Request{Node: "manager"})
		}()
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tracked.Generate(ctxB, &Request{Node: "manager"})
		}()
	}
	wg.Wait()

	assert.Len(t, sessionA.Inferences, 10)
	assert.Len(t, sessionB.Inferences, 5)
	assert.Equal(t, 10*30, sessionA.TotalTokens)
	assert.Equal(t, 5*30, sessionB.TotalTokens)
}

func TestTrackedWithoutSessionPassesThrough(t *testing.T) {
	tracked := NewTracked(NewScripted("ok"))
	resp, err := tracked.Generate(context.Background(), &Request{Node: "manager"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
}

func TestExtractUsageProviderLayouts(t *testing.T) {
	tests := []struct {
		name                    string
		info                    map[string]any
		prompt, completion, tot int
	}{
		{
			name:   "openai layout",
			info:   map[string]any{"PromptTokens": 100, "CompletionTokens": 40, "TotalTokens": 140},
			prompt: 100, completion: 40, tot: 140,
		},
		{
			name:   "google layout",
			info:   map[string]any{"input_tokens": int32(55), "output_tokens": int32(25)},
			prompt: 55, completion: 25, tot: 80,
		},
		{
			name:   "float values",
			info:   map[string]any{"prompt_tokens": float64(12), "completion_tokens": float64(8)},
			prompt: 12, completion: 8, tot: 20,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, c, tot := extractUsage(tt.info, "gpt-4o-mini", "respuesta")
			assert.Equal(t, tt.prompt, p)
			assert.Equal(t, tt.completion, c)
			assert.Equal(t, tt.tot, tot)
		})
	}
}

func TestExtractUsageTokenizerFallback(t *testing.T) {
	prompt, completion, total := extractUsage(nil, "gpt-4o-mini", "hola, tu cuota vence pronto")
	assert.Zero(t, prompt, "prompt side attributed zero without metadata")
	assert.Positive(t, completion)
	assert.Equal(t, completion, total)
}
