// Package agent implements the hierarchical agent runtime: a manager that
// plans specialist steps per inbound message, specialist subgraphs that
// execute tool actions, a replan loop, and a synthesizer that produces the
// single user-facing reply.
package agent

// Intent is the manager's classification of an inbound message.
type Intent string

// Manager intents.
const (
	IntentFinancialQuery     Intent = "financial_query"
	IntentPaymentRequest     Intent = "payment_request"
	IntentPaymentClaim       Intent = "payment_claim"
	IntentComplaint          Intent = "complaint"
	IntentWithdrawalRequest  Intent = "withdrawal_request"
	IntentPlanRequest        Intent = "plan_request"
	IntentInstitutionalQuery Intent = "institutional_query"
	IntentGreeting           Intent = "greeting"
	IntentOther              Intent = "other"
)

// SpecialistKind is the tagged variant selecting a specialist subgraph.
type SpecialistKind string

// Specialist kinds.
const (
	SpecialistFinancial      SpecialistKind = "financiero"
	SpecialistAdministrative SpecialistKind = "administrativo"
	SpecialistInstitutional  SpecialistKind = "institucional"
)

// PlanStep is one strategic step of a MasterPlan.
type PlanStep struct {
	Specialist SpecialistKind `json:"specialist"`
	Goal       string         `json:"goal"`
	Params     map[string]any `json:"params,omitempty"`
	Priority   int            `json:"priority,omitempty"`
}

// MasterPlan is the manager LLM's strategic plan.
type MasterPlan struct {
	Intent        Intent     `json:"intent"`
	Confidence    float64    `json:"confidence"`
	Steps         []PlanStep `json:"steps"`
	RequiresHuman bool       `json:"requires_human"`
	Reasoning     string     `json:"reasoning"`
}

// ActionPlan is one tactical tool action of a SubPlan.
type ActionPlan struct {
	Tool        string         `json:"tool"`
	Params      map[string]any `json:"params,omitempty"`
	Description string         `json:"description,omitempty"`
}

// SubPlan is a specialist LLM's tactical plan.
type SubPlan struct {
	Specialist SpecialistKind `json:"specialist"`
	Actions    []ActionPlan   `json:"actions"`
	Reasoning  string         `json:"reasoning,omitempty"`
}

// ActionResult is the outcome of one executed tool action.
type ActionResult struct {
	Tool    string `json:"tool"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SpecialistReport is the structured result of one specialist run. It feeds
// both the synthesizer and the replan decision.
type SpecialistReport struct {
	Specialist     SpecialistKind `json:"specialist"`
	Success        bool           `json:"success"`
	Data           map[string]any `json:"data,omitempty"`
	Summary        string         `json:"summary"`
	Error          string         `json:"error,omitempty"`
	RequiresReplan bool           `json:"requires_replan"`
}

// StudentRef is the per-student slice of the loaded user context.
type StudentRef struct {
	ID    string `json:"id"`
	Name  string `json:"nombre"`
	Grade string `json:"grado"`
}

// UserContext is the guardian context loaded from the mirror.
type UserContext struct {
	GuardianID string       `json:"guardian_id"`
	Name       string       `json:"nombre"`
	Students   []StudentRef `json:"alumnos"`
}

// State is the mutable per-request state the runtime graph operates on.
// It is JSON-serializable for checkpointing; Memory carries opaque
// conversation continuity across turns of the same thread.
type State struct {
	QueryID string `json:"query_id"`
	Handle  string `json:"handle"`
	Message string `json:"message"`

	User *UserContext `json:"user,omitempty"`

	Plan        *MasterPlan        `json:"plan,omitempty"`
	StepIndex   int                `json:"step_index"`
	Reports     []SpecialistReport `json:"reports,omitempty"`
	ReplanCount int                `json:"replan_count"`
	MaxReplans  int                `json:"max_replans"`
	NeedsReplan bool               `json:"needs_replan"`

	Response string `json:"response,omitempty"`
	Err      string `json:"error,omitempty"`

	Memory map[string]any `json:"memory,omitempty"`
}

// LastReport returns the most recent specialist report, or nil.
func (s *State) LastReport() *SpecialistReport {
	if len(s.Reports) == 0 {
		return nil
	}
	return &s.Reports[len(s.Reports)-1]
}
