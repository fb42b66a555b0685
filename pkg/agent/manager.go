package agent

import (
	"context"
	"log/slog"

	"github.com/colegio-ws/gestor/pkg/llm"
)

// manager asks the LLM for a MasterPlan. On LLM or parse failure the plan is
// cleared and the error slot is set so the router takes the synthesize-error
// path.
func (r *Runner) manager(ctx context.Context, st *State) {
	resp, err := r.llm.Generate(ctx, &llm.Request{
		Node:   "manager",
		Kind:   "planning",
		System: ManagerSystem,
		Prompt: Manager(st),
	})
	if err != nil {
		slog.Error("Manager LLM call failed", "handle", st.Handle, "error", err)
		st.Plan = nil
		st.Err = "manager: " + err.Error()
		return
	}

	var plan MasterPlan
	if err := DecodeModelJSON(resp.Text, &plan); err != nil {
		slog.Warn("Manager plan unparseable", "handle", st.Handle, "error", err)
		st.Plan = nil
		st.Err = "manager: " + err.Error()
		return
	}

	// Drop steps naming unknown specialists rather than failing the run.
	steps := plan.Steps[:0]
	for _, step := range plan.Steps {
		if _, ok := r.specialists[step.Specialist]; ok {
			steps = append(steps, step)
		} else {
			slog.Warn("Manager planned unknown specialist, dropping step",
				"specialist", step.Specialist, "goal", step.Goal)
		}
	}
	plan.Steps = steps

	st.Plan = &plan
	st.StepIndex = 0
	st.NeedsReplan = false
	st.Err = ""
	slog.Info("Master plan ready",
		"handle", st.Handle, "intent", plan.Intent,
		"steps", len(plan.Steps), "confidence", plan.Confidence)
}
