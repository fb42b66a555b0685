package agent

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/colegio-ws/gestor/pkg/agent/checkpoint"
	"github.com/colegio-ws/gestor/pkg/llm"
)

// GuardianLookup resolves an inbound handle to the guardian context.
// Implemented by the mirror service; a miss returns (nil, nil).
type GuardianLookup interface {
	LookupGuardian(ctx context.Context, handle string) (*UserContext, error)
}

// DefaultMaxReplans bounds total manager invocations per inbound message at
// 1 + DefaultMaxReplans.
const DefaultMaxReplans = 3

// Runner drives the hierarchical graph: load_context → manager →
// execute_specialist* → evaluate → (manager | synthesize).
type Runner struct {
	llm         llm.Client
	specialists map[SpecialistKind]Specialist
	guardians   GuardianLookup
	store       checkpoint.Store // nil disables checkpointing
	maxReplans  int
	logger      *slog.Logger
}

// NewRunner assembles the runtime. store may be nil (the no-checkpoint entry
// point used by tests).
func NewRunner(model llm.Client, toolClient ToolCaller, guardians GuardianLookup, store checkpoint.Store, maxReplans int) *Runner {
	if maxReplans < 0 {
		maxReplans = DefaultMaxReplans
	}
	specialists := map[SpecialistKind]Specialist{
		SpecialistFinancial:      NewFinancialSpecialist(model, toolClient),
		SpecialistAdministrative: NewAdministrativeSpecialist(model, toolClient),
		SpecialistInstitutional:  NewInstitutionalSpecialist(model, toolClient),
	}
	return &Runner{
		llm:         model,
		specialists: specialists,
		guardians:   guardians,
		store:       store,
		maxReplans:  maxReplans,
		logger:      slog.Default().With("component", "agent-runner"),
	}
}

// Process runs the full graph for one inbound message. The thread id (the
// handle) keys checkpointing; state is persisted after every node so an
// interrupted run leaves a resumable trail.
func (r *Runner) Process(ctx context.Context, handle, message string) (*State, error) {
	st := &State{
		QueryID:    uuid.New().String(),
		Handle:     handle,
		Message:    message,
		MaxReplans: r.maxReplans,
		Memory:     map[string]any{},
	}

	// Conversation continuity: carry the opaque memory of the previous turn.
	if prev := r.loadCheckpoint(ctx, handle); prev != nil && prev.Memory != nil {
		st.Memory = prev.Memory
	}

	r.loadContext(ctx, st)
	r.save(ctx, st)

	for {
		r.manager(ctx, st)
		r.save(ctx, st)

		// Post-manager router.
		if st.Plan == nil || st.Plan.Intent == IntentGreeting || len(st.Plan.Steps) == 0 {
			break
		}

		replanning := false
		for st.StepIndex < len(st.Plan.Steps) {
			r.executeSpecialist(ctx, st)
			r.save(ctx, st)

			r.evaluate(st)
			r.save(ctx, st)

			if st.NeedsReplan {
				replanning = true
				break
			}
		}
		if !replanning {
			break
		}
	}

	r.synthesize(ctx, st)

	// Remember the turn for the next message on this thread.
	st.Memory["last_message"] = st.Message
	st.Memory["last_response"] = st.Response
	if st.Plan != nil {
		st.Memory["last_intent"] = string(st.Plan.Intent)
	}
	r.save(ctx, st)

	return st, nil
}

// loadContext resolves the guardian mirror row. A miss leaves User nil and
// never aborts the run.
func (r *Runner) loadContext(ctx context.Context, st *State) {
	if r.guardians == nil {
		return
	}
	user, err := r.guardians.LookupGuardian(ctx, st.Handle)
	if err != nil {
		r.logger.Warn("Guardian lookup failed, continuing without context",
			"handle", st.Handle, "error", err)
		return
	}
	st.User = user
}

// executeSpecialist dispatches the step at the cursor and advances it.
func (r *Runner) executeSpecialist(ctx context.Context, st *State) {
	step := st.Plan.Steps[st.StepIndex]
	specialist := r.specialists[step.Specialist]

	r.logger.Info("Dispatching specialist",
		"specialist", step.Specialist, "step", st.StepIndex+1, "total", len(st.Plan.Steps))

	report := specialist.Run(ctx, st, step)
	st.Reports = append(st.Reports, report)
	st.StepIndex++
}

// evaluate decides whether the last report triggers a replan. The replan
// counter caps total manager invocations at 1 + MaxReplans.
func (r *Runner) evaluate(st *State) {
	last := st.LastReport()
	if last != nil && last.RequiresReplan && st.ReplanCount < st.MaxReplans {
		st.ReplanCount++
		st.NeedsReplan = true
		r.logger.Info("Replanning", "attempt", st.ReplanCount, "max", st.MaxReplans)
		return
	}
	st.NeedsReplan = false
}

// Checkpoint envelope. Version-stamped so restarts after a deploy can still
// decode in-flight conversations.
type checkpointEnvelope struct {
	Version int    `json:"version"`
	State   *State `json:"state"`
}

const checkpointVersion = 1

func (r *Runner) save(ctx context.Context, st *State) {
	if r.store == nil {
		return
	}
	encoded, err := json.Marshal(checkpointEnvelope{Version: checkpointVersion, State: st})
	if err != nil {
		r.logger.Error("Failed to encode checkpoint", "handle", st.Handle, "error", err)
		return
	}
	if err := r.store.Put(ctx, st.Handle, encoded); err != nil {
		r.logger.Warn("Failed to persist checkpoint", "handle", st.Handle, "error", err)
	}
}

func (r *Runner) loadCheckpoint(ctx context.Context, threadID string) *State {
	if r.store == nil {
		return nil
	}
	encoded, ok, err := r.store.Get(ctx, threadID)
	if err != nil {
		r.logger.Warn("Failed to load checkpoint", "thread_id", threadID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var envelope checkpointEnvelope
	if err := json.Unmarshal(encoded, &envelope); err != nil || envelope.Version != checkpointVersion {
		r.logger.Warn("Discarding unreadable checkpoint", "thread_id", threadID, "error", err)
		return nil
	}
	return envelope.State
}
