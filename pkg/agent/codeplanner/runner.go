package codeplanner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/colegio-ws/gestor/pkg/agent"
	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/tools"
)

// ToolLister exposes the tool catalog for the planner prompt.
// Implemented by tools.Client.
type ToolLister interface {
	ListTools(ctx context.Context, category tools.Category) ([]tools.ToolSchema, error)
}

// Runner drives the code-planner graph: plan → execute → (self_correct →
// execute)* → reflect → (plan | respond).
type Runner struct {
	llm         llm.Client
	tools       toolCaller
	lister      ToolLister
	execTimeout time.Duration

	maxCorrections int
	maxIterations  int
	logger         *slog.Logger
}

// NewRunner assembles the code-planner runtime. lister may equal the tool
// client; zero bounds take the defaults.
func NewRunner(model llm.Client, toolClient agent.ToolCaller, lister ToolLister, maxCorrections, maxIterations int) *Runner {
	if maxCorrections <= 0 {
		maxCorrections = DefaultMaxCorrections
	}
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Runner{
		llm:            model,
		tools:          toolClient,
		lister:         lister,
		execTimeout:    DefaultExecTimeout,
		maxCorrections: maxCorrections,
		maxIterations:  maxIterations,
		logger:         slog.Default().With("component", "code-planner"),
	}
}

// Process runs the full graph for one inbound message. Exhausting either
// iteration bound still routes to respond with the best available data: the
// user always gets a final message.
func (r *Runner) Process(ctx context.Context, handle, message string) (*State, error) {
	st := &State{
		QueryID:        uuid.New().String(),
		Handle:         handle,
		Message:        message,
		MaxCorrections: r.maxCorrections,
		MaxIterations:  r.maxIterations,
	}

	catalog := r.toolCatalog(ctx)

	for st.PlannerIterations < st.MaxIterations {
		st.PlannerIterations++

		program := r.plan(ctx, st, catalog)
		st.Program = program

		result, execErr := r.execute(ctx, st, program)
		for execErr != "" && st.Corrections < st.MaxCorrections {
			st.Corrections++
			r.logger.Info("Self-correcting program",
				"correction", st.Corrections, "max", st.MaxCorrections, "error", execErr)
			program = r.selfCorrect(ctx, st, program, execErr, catalog)
			st.Program = program
			result, execErr = r.execute(ctx, st, program)
		}

		if execErr != "" {
			// Corrections exhausted; respond with whatever we have.
			st.ExecError = execErr
			break
		}
		st.ExecResult = result
		st.ExecError = ""

		valid, reason := r.reflect(ctx, st)
		if valid {
			break
		}
		st.ReflectionReason = reason
		r.logger.Info("Reflection rejected result",
			"iteration", st.PlannerIterations, "max", st.MaxIterations, "reason", reason)
	}

	r.respond(ctx, st)
	return st, nil
}

// toolCatalog renders the available tools for the planner prompt. A tool
// server outage degrades to an empty catalog rather than failing the run.
func (r *Runner) toolCatalog(ctx context.Context) string {
	if r.lister == nil {
		return "(catálogo de herramientas no disponible)"
	}
	schemas, err := r.lister.ListTools(ctx, "")
	if err != nil {
		r.logger.Warn("Failed to list tools for planner", "error", err)
		return "(catálogo de herramientas no disponible)"
	}
	var b strings.Builder
	for _, schema := range schemas {
		params, _ := json.Marshal(schema.Parameters)
		fmt.Fprintf(&b, "- %s [%s]: %s\n  parámetros: %s\n", schema.Name, schema.Category, schema.Description, params)
	}
	return b.String()
}

// plan asks the LLM for a tool program. An empty or unparseable program
// falls back to the default.
func (r *Runner) plan(ctx context.Context, st *State, catalog string) *Program {
	userPrompt := planPrompt(st, catalog)
	resp, err := r.llm.Generate(ctx, &llm.Request{
		Node:   "code_planner",
		Kind:   "planning",
		System: planSystem,
		Prompt: userPrompt,
	})
	if err != nil {
		r.logger.Warn("Planner LLM call failed, using fallback program", "error", err)
		return fallbackProgram(st)
	}

	var program Program
	if err := agent.DecodeModelJSON(resp.Text, &program); err != nil || len(program.Steps) == 0 {
		r.logger.Warn("Planner emitted no usable program, using fallback", "error", err)
		return fallbackProgram(st)
	}
	return &program
}

// selfCorrect regenerates the program with the captured error as context.
func (r *Runner) selfCorrect(ctx context.Context, st *State, failed *Program, execErr, catalog string) *Program {
	encoded, _ := json.Marshal(failed)
	resp, err := r.llm.Generate(ctx, &llm.Request{
		Node:   "code_corrector",
		Kind:   "correction",
		System: planSystem,
		Prompt: fmt.Sprintf(`Tu programa anterior falló.

PROGRAMA:
%s

ERROR DE EJECUCIÓN:
%s

%s`, encoded, execErr, planPrompt(st, catalog)),
	})
	if err != nil {
		r.logger.Warn("Self-correction LLM call failed, keeping failed program", "error", err)
		return failed
	}
	var program Program
	if err := agent.DecodeModelJSON(resp.Text, &program); err != nil || len(program.Steps) == 0 {
		return failed
	}
	return &program
}

// reflect judges whether the execution result answers the question.
// A broken reflector accepts the result rather than spinning the loop.
func (r *Runner) reflect(ctx context.Context, st *State) (bool, string) {
	encoded, _ := json.Marshal(st.ExecResult)
	resp, err := r.llm.Generate(ctx, &llm.Request{
		Node: "reflector",
		Kind: "reflection",
		System: "Sos un evaluador estricto. Juzgás si el resultado de la ejecución responde la pregunta del usuario. " +
			"Respondés SOLO con JSON: {\"valid\": true|false, \"reason\": \"breve\"}",
		Prompt: fmt.Sprintf("PREGUNTA: %s\n\nRESULTADO DE EJECUCIÓN:\n%s", st.Message, encoded),
	})
	if err != nil {
		r.logger.Warn("Reflector LLM call failed, accepting result", "error", err)
		return true, ""
	}

	var verdict struct {
		Valid  bool   `json:"valid"`
		Reason string `json:"reason"`
	}
	if err := agent.DecodeModelJSON(resp.Text, &verdict); err != nil {
		return true, ""
	}
	return verdict.Valid, verdict.Reason
}

// respond formulates the final user-facing message from the execution data.
// Never surfaces technical errors.
func (r *Runner) respond(ctx context.Context, st *State) {
	var data string
	if st.ExecResult != nil {
		encoded, _ := json.Marshal(st.ExecResult)
		data = string(encoded)
	} else {
		data = "(sin datos: la consulta quedó en revisión manual)"
	}

	resp, err := r.llm.Generate(ctx, &llm.Request{
		Node:   "responder",
		Kind:   "synthesis",
		System: agent.SynthesisSystem,
		Prompt: fmt.Sprintf("PREGUNTA DEL RESPONSABLE: %s\n\nDATOS OBTENIDOS:\n%s\n\nRedactá la respuesta final para WhatsApp, cubriendo cada parte de la pregunta:", st.Message, data),
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		if st.ExecResult != nil && st.ExecResult.Summary != "" {
			st.Response = st.ExecResult.Summary
			return
		}
		st.Response = agent.ApologyMessage
		return
	}
	st.Response = strings.TrimSpace(resp.Text)
}

const planSystem = "Sos un planificador que resuelve consultas de padres de un colegio componiendo llamadas a herramientas. " +
	"Emitís SOLO un programa JSON válido, sin markdown ni explicaciones."

func planPrompt(st *State, catalog string) string {
	return fmt.Sprintf(`CONSULTA DEL RESPONSABLE (%s): %s

HERRAMIENTAS DISPONIBLES:
%s

Emití un programa JSON con esta forma:
{"steps": [{"save_as": "nombre", "tool": "herramienta", "params": {"clave": "valor"}}], "summary": "qué resuelve"}

Reglas de binding en params:
- "$handle" → WhatsApp del responsable
- "$message" → texto del mensaje
- "$<save_as>.<campo>" → un campo del resultado de un paso anterior

Máximo %d pasos.`, st.Handle, st.Message, catalog, maxProgramSteps)
}
