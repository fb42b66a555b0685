package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/colegio-ws/gestor/pkg/llm"
)

const maxResponseParagraphs = 3

// synthesize produces the single user-facing reply. Contract: technical
// error details never reach the user; failed reports read as "under manual
// review".
func (r *Runner) synthesize(ctx context.Context, st *State) {
	switch {
	case st.Plan == nil || st.Err != "":
		st.Response = ApologyMessage
		return

	case st.Plan.Intent == IntentGreeting || len(st.Plan.Steps) == 0:
		st.Response = WelcomeMessage
		return

	case len(st.Reports) == 1 && st.Reports[0].Success:
		// Structured summaries pass through untruncated; the paragraph cap
		// applies to free-form LLM text only.
		st.Response = st.Reports[0].Summary
		return
	}

	resp, err := r.llm.Generate(ctx, &llm.Request{
		Node:   "sintetizador",
		Kind:   "synthesis",
		System: SynthesisSystem,
		Prompt: Synthesis(st),
	})
	if err != nil {
		slog.Error("Synthesis LLM call failed", "handle", st.Handle, "error", err)
		// Best effort: surface the first successful summary, else apologize.
		for _, report := range st.Reports {
			if report.Success {
				st.Response = report.Summary
				return
			}
		}
		st.Response = ApologyMessage
		return
	}

	st.Response = capParagraphs(strings.TrimSpace(resp.Text))
	if st.Response == "" {
		st.Response = ApologyMessage
	}
}

// capParagraphs hard-caps the reply at three paragraphs.
func capParagraphs(text string) string {
	paragraphs := strings.Split(text, "\n\n")
	if len(paragraphs) <= maxResponseParagraphs {
		return text
	}
	return strings.Join(paragraphs[:maxResponseParagraphs], "\n\n")
}
