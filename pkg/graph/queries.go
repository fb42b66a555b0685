package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/models"
)

// Reports runs the analytic queries the admin surface exposes.
type Reports struct {
	graph Querier
	model llm.Client // nil disables the executive summary
}

// NewReports creates a Reports facade.
func NewReports(graph Querier, model llm.Client) *Reports {
	return &Reports{graph: graph, model: model}
}

// GuardianProfile returns the stored enrichment for one guardian.
func (r *Reports) GuardianProfile(ctx context.Context, handle string) (map[string]any, error) {
	rows, err := r.graph.Run(ctx, `
		MATCH (g:Guardian {whatsapp: $handle})
		RETURN g.payer_profile AS payer_profile, g.risk_level AS risk_level, g.patterns AS patterns`,
		map[string]any{"handle": models.NormalizeHandle(handle)})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	return map[string]any{
		"found":         true,
		"payer_profile": row["payer_profile"],
		"risk_level":    row["risk_level"],
		"patterns":      row["patterns"],
	}, nil
}

// RiskScore computes a 0..1 delinquency score for one guardian from overdue
// load and ignored reminders.
func (r *Reports) RiskScore(ctx context.Context, handle string) (map[string]any, error) {
	rows, err := r.graph.Run(ctx, `
		MATCH (g:Guardian {whatsapp: $handle})
		OPTIONAL MATCH (g)-[:RESPONSIBLE_OF]->(:Student)-[:OWES]->(over:Installment {state: 'vencida'})
		OPTIONAL MATCH (g)-[:RESPONSIBLE_OF]->(:Student)-[:OWES]->(pend:Installment {state: 'pendiente'})
		OPTIONAL MATCH (g)-[ig:IGNORED_NOTIFICATION]->(:Installment)
		RETURN count(DISTINCT over) AS overdue, count(DISTINCT pend) AS pending,
		       count(DISTINCT ig) AS ignored, g.risk_level AS stored_level`,
		map[string]any{"handle": models.NormalizeHandle(handle)})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	overdue := asInt(rows[0]["overdue"])
	pending := asInt(rows[0]["pending"])
	ignored := asInt(rows[0]["ignored"])

	score := ComputeRiskScore(overdue, pending, ignored)
	return map[string]any{
		"found":      true,
		"risk_score": score,
		"risk_level": RiskLevelForScore(score),
		"overdue":    overdue,
		"pending":    pending,
		"ignored":    ignored,
	}, nil
}

// ComputeRiskScore weighs overdue installments heaviest, then ignored
// reminders, then open pending load. Clamped to [0,1].
func ComputeRiskScore(overdue, pending, ignored int) float64 {
	score := 0.35*float64(overdue) + 0.15*float64(ignored) + 0.05*float64(pending)
	if score > 1 {
		return 1
	}
	return score
}

// RiskLevelForScore buckets a score.
func RiskLevelForScore(score float64) RiskLevel {
	switch {
	case score >= 0.7:
		return RiskHigh
	case score >= 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// CashProjection estimates expected collections for the coming weeks:
// pending installments due in the window, weighted by the payer profile of
// the responsible guardian.
func (r *Reports) CashProjection(ctx context.Context, weeks int) (map[string]any, error) {
	if weeks <= 0 {
		weeks = 4
	}
	rows, err := r.graph.Run(ctx, `
		MATCH (g:Guardian)-[:RESPONSIBLE_OF]->(:Student)-[:OWES]->(i:Installment {state: 'pendiente'})
		WHERE i.due_date <= date() + duration({weeks: $weeks})
		RETURN i.id AS id, i.amount AS amount, coalesce(g.payer_profile, 'nuevo') AS profile`,
		map[string]any{"weeks": weeks})
	if err != nil {
		return nil, err
	}

	var nominal, expected float64
	for _, row := range rows {
		amount := asFloat(row["amount"])
		nominal += amount
		expected += amount * CollectionProbability(PayerProfile(asString(row["profile"])))
	}

	return map[string]any{
		"weeks":           weeks,
		"installments":    len(rows),
		"nominal_total":   nominal,
		"expected_total":  expected,
		"collection_rate": rate(expected, nominal),
		"generated_at":    time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// CollectionProbability maps a payer profile to its expected on-window
// collection probability.
func CollectionProbability(profile PayerProfile) float64 {
	switch profile {
	case PayerPunctual:
		return 0.97
	case PayerOccasional:
		return 0.80
	case PayerDelinquent:
		return 0.45
	default:
		return 0.70
	}
}

func rate(expected, nominal float64) float64 {
	if nominal == 0 {
		return 0
	}
	return expected / nominal
}

// BehaviorPatterns groups guardians per payer profile with their patterns.
func (r *Reports) BehaviorPatterns(ctx context.Context) (map[string]any, error) {
	rows, err := r.graph.Run(ctx, `
		MATCH (g:Guardian)
		WHERE g.payer_profile IS NOT NULL
		RETURN g.payer_profile AS profile, count(g) AS guardians,
		       collect(DISTINCT g.patterns) AS patterns`, nil)
	if err != nil {
		return nil, err
	}

	profiles := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, map[string]any{
			"profile":   row["profile"],
			"guardians": asInt(row["guardians"]),
			"patterns":  row["patterns"],
		})
	}
	return map[string]any{"profiles": profiles}, nil
}

// ExecutiveSummary produces an LLM-written overview of the current
// collections picture for the administration.
func (r *Reports) ExecutiveSummary(ctx context.Context) (string, error) {
	if r.model == nil {
		return "", fmt.Errorf("executive summary requires an LLM")
	}

	projection, err := r.CashProjection(ctx, 4)
	if err != nil {
		return "", err
	}
	patterns, err := r.BehaviorPatterns(ctx)
	if err != nil {
		return "", err
	}

	evidence, _ := json.Marshal(map[string]any{
		"proyeccion_caja": projection,
		"comportamiento":  patterns,
	})

	resp, err := r.model.Generate(ctx, &llm.Request{
		Node: "kg_executive_summary",
		Kind: "synthesis",
		System: "Sos analista de cobranzas de un colegio. Redactás un resumen ejecutivo breve " +
			"(4-6 oraciones) para la administración, en tono profesional y accionable.",
		Prompt: fmt.Sprintf("Datos del período:\n%s\n\nResumen ejecutivo:", evidence),
	})
	if err != nil {
		return "", fmt.Errorf("executive summary generation failed: %w", err)
	}
	return resp.Text, nil
}
