package codeplanner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/colegio-ws/gestor/pkg/agent"
)

// Executor bounds.
const (
	DefaultExecTimeout = 30 * time.Second
	maxProgramSteps    = 10
)

// execute interprets a program. Returns the result, or a non-empty error
// string (the captured "traceback") fed back into self-correction. The run
// is bounded by its own wall-clock timeout, independent of the outer request
// deadline.
func (r *Runner) execute(ctx context.Context, st *State, program *Program) (*ExecResult, string) {
	if program == nil || len(program.Steps) == 0 {
		return nil, "programa vacío: no hay pasos para ejecutar"
	}
	if len(program.Steps) > maxProgramSteps {
		return nil, fmt.Sprintf("programa demasiado largo: %d pasos (máximo %d)", len(program.Steps), maxProgramSteps)
	}

	execCtx, cancel := context.WithTimeout(ctx, r.execTimeout)
	defer cancel()

	bindings := map[string]any{}
	data := map[string]any{}

	for i, step := range program.Steps {
		if err := execCtx.Err(); err != nil {
			return nil, fmt.Sprintf("timeout en el paso %d (%s): %v", i+1, step.Tool, err)
		}
		if step.Tool == "" {
			return nil, fmt.Sprintf("paso %d sin herramienta", i+1)
		}

		params, err := resolveParams(st, bindings, step.Params)
		if err != nil {
			return nil, fmt.Sprintf("paso %d (%s): %v", i+1, step.Tool, err)
		}

		result := r.tools.CallTool(execCtx, step.Tool, params)
		if !result.Success {
			return nil, fmt.Sprintf("paso %d (%s) falló: %s", i+1, step.Tool, result.Error)
		}

		name := step.SaveAs
		if name == "" {
			name = fmt.Sprintf("paso_%d", i+1)
		}
		bindings[name] = result.Data
		data[name] = result.Data
	}

	summary := program.Summary
	if summary == "" {
		summary = fmt.Sprintf("%d herramientas ejecutadas correctamente", len(program.Steps))
	}
	return &ExecResult{Success: true, Data: data, Summary: summary}, ""
}

// resolveParams substitutes "$" bindings into the step params.
func resolveParams(st *State, bindings map[string]any, params map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(params))
	for key, value := range params {
		ref, ok := value.(string)
		if !ok || !strings.HasPrefix(ref, "$") {
			resolved[key] = value
			continue
		}

		switch ref {
		case "$handle", "$whatsapp":
			resolved[key] = st.Handle
		case "$message", "$mensaje":
			resolved[key] = st.Message
		default:
			bound, err := resolveBinding(bindings, strings.TrimPrefix(ref, "$"))
			if err != nil {
				return nil, err
			}
			resolved[key] = bound
		}
	}
	return resolved, nil
}

// resolveBinding walks "<step>.<field>..." through prior step outputs.
func resolveBinding(bindings map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	current, ok := bindings[parts[0]]
	if !ok {
		return nil, fmt.Errorf("referencia a paso desconocido: $%s", parts[0])
	}
	for _, field := range parts[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("referencia inválida $%s: %q no es un objeto", path, field)
		}
		current, ok = m[field]
		if !ok {
			return nil, fmt.Errorf("referencia inválida $%s: falta el campo %q", path, field)
		}
	}
	return current, nil
}

// fallbackProgram is used when the LLM emits an empty program: a single
// account-status call so the responder always has something to work with.
func fallbackProgram(st *State) *Program {
	return &Program{
		Steps: []Step{{
			SaveAs: "cuenta",
			Tool:   "consultar_estado_cuenta",
			Params: map[string]any{"whatsapp": st.Handle},
		}},
		Summary: "Consulta de estado de cuenta (programa por defecto)",
	}
}

// toolCaller is re-exported for wiring symmetry with the hierarchical runner.
type toolCaller = agent.ToolCaller
