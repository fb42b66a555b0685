package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/tools"
)

// ToolCaller is the slice of the tool client the specialists need.
// Implemented by tools.Client.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) *tools.Result
}

// Specialist executes one strategic step and produces a report.
type Specialist interface {
	Kind() SpecialistKind
	Run(ctx context.Context, st *State, step PlanStep) SpecialistReport
}

// subgraph is the shared specialist shape: plan (LLM emits a SubPlan) →
// execute each action through the tool client → aggregate a report.
// The three specialists are instances of this struct with their own tool
// sets, default actions, and summary formatting.
type subgraph struct {
	kind        SpecialistKind
	system      string
	toolNames   map[string]bool
	llm         llm.Client
	toolClient  ToolCaller
	defaultPlan func(st *State) SubPlan
	summarize   func(st *State, results []ActionResult) string
	logger      *slog.Logger
}

func (g *subgraph) Kind() SpecialistKind { return g.kind }

// Run executes the specialist subgraph for one step.
func (g *subgraph) Run(ctx context.Context, st *State, step PlanStep) SpecialistReport {
	plan := g.plan(ctx, st, step)
	results := g.executeActions(ctx, st, plan)
	return g.report(st, results)
}

// plan asks the LLM for a SubPlan; parse failures and LLM errors fall back
// to the specialist's default single action.
func (g *subgraph) plan(ctx context.Context, st *State, step PlanStep) SubPlan {
	resp, err := g.llm.Generate(ctx, &llm.Request{
		Node:   string(g.kind) + "_planificar",
		Kind:   "specialist",
		System: g.system,
		Prompt: SpecialistPlan(st, step),
	})
	if err != nil {
		g.logger.Warn("Specialist planning failed, using default plan", "specialist", g.kind, "error", err)
		return g.defaultPlan(st)
	}

	var plan SubPlan
	if err := DecodeModelJSON(resp.Text, &plan); err != nil || len(plan.Actions) == 0 {
		g.logger.Warn("Specialist plan unparseable, using default plan", "specialist", g.kind, "error", err)
		return g.defaultPlan(st)
	}
	plan.Specialist = g.kind
	return plan
}

// executeActions runs every planned action in order through the tool client.
// Unknown tools for this specialist are rejected without a tool call.
func (g *subgraph) executeActions(ctx context.Context, st *State, plan SubPlan) []ActionResult {
	results := make([]ActionResult, 0, len(plan.Actions))
	for i, action := range plan.Actions {
		if !g.toolNames[action.Tool] {
			results = append(results, ActionResult{
				Tool:    action.Tool,
				Success: false,
				Error:   fmt.Sprintf("herramienta desconocida: %s", action.Tool),
			})
			continue
		}

		params := g.injectParams(st, action.Params)
		g.logger.Info("Executing specialist action",
			"specialist", g.kind, "action", i+1, "total", len(plan.Actions), "tool", action.Tool)

		result := g.toolClient.CallTool(ctx, action.Tool, params)
		results = append(results, ActionResult{
			Tool:    action.Tool,
			Success: result.Success,
			Data:    result.Data,
			Error:   result.Error,
		})
	}
	return results
}

// injectParams fills the caller's handle into params that take one, so the
// LLM does not have to repeat it.
func (g *subgraph) injectParams(st *State, params map[string]any) map[string]any {
	merged := make(map[string]any, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	for _, key := range []string{"whatsapp", "phone_number"} {
		if v, ok := merged[key]; !ok || v == "" {
			merged[key] = st.Handle
		}
	}
	return merged
}

// report aggregates action results into the SpecialistReport.
func (g *subgraph) report(st *State, results []ActionResult) SpecialistReport {
	allSuccess := len(results) > 0
	data := make(map[string]any, len(results))
	var errs []string
	for _, r := range results {
		if r.Success {
			if r.Data != nil {
				data[r.Tool] = r.Data
			}
		} else {
			allSuccess = false
			if r.Error != "" {
				errs = append(errs, r.Error)
			}
		}
	}

	report := SpecialistReport{
		Specialist:     g.kind,
		Success:        allSuccess,
		Data:           data,
		RequiresReplan: !allSuccess,
	}
	if allSuccess {
		report.Summary = g.summarize(st, results)
	} else {
		report.Summary = fmt.Sprintf("El especialista %s no pudo completar la tarea.", g.kind)
		report.Error = strings.Join(errs, "; ")
		if report.Error == "" {
			report.Error = "sin acciones ejecutadas"
		}
	}
	return report
}

// asMap safely narrows a tool result payload to a map.
func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// resultFor returns the data of the first successful run of the named tool.
func resultFor(results []ActionResult, tool string) map[string]any {
	for _, r := range results {
		if r.Tool == tool && r.Success {
			return asMap(r.Data)
		}
	}
	return nil
}
