package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/colegio-ws/gestor/pkg/llm"
)

// Enricher derives payer_profile / risk_level / patterns per guardian from
// the behavioral evidence in the graph.
type Enricher struct {
	graph  Querier
	model  llm.Client
	logger *slog.Logger
}

// NewEnricher creates an Enricher.
func NewEnricher(graph Querier, model llm.Client) *Enricher {
	return &Enricher{graph: graph, model: model, logger: slog.Default().With("component", "graph-enricher")}
}

// CollectFacts aggregates per-guardian payment behavior from the graph.
func (e *Enricher) CollectFacts(ctx context.Context) ([]PaymentFact, error) {
	rows, err := e.graph.Run(ctx, `
		MATCH (g:Guardian)
		OPTIONAL MATCH (g)-[p:PAID]->(:Installment)
		OPTIONAL MATCH (g)-[:RESPONSIBLE_OF]->(:Student)-[:OWES]->(pend:Installment {state: 'pendiente'})
		OPTIONAL MATCH (g)-[:RESPONSIBLE_OF]->(:Student)-[:OWES]->(over:Installment {state: 'vencida'})
		OPTIONAL MATCH (g)-[ig:IGNORED_NOTIFICATION]->(:Installment)
		OPTIONAL MATCH (g)-[:CREATED_TICKET]->(t:Ticket)
		RETURN g.whatsapp AS handle,
		       count(CASE WHEN p.lateness_days <= 0 THEN 1 END) AS on_time,
		       count(CASE WHEN p.lateness_days > 0 THEN 1 END) AS late,
		       coalesce(avg(CASE WHEN p.lateness_days > 0 THEN p.lateness_days END), 0) AS avg_lateness,
		       count(DISTINCT pend) AS pending,
		       count(DISTINCT over) AS overdue,
		       count(DISTINCT ig) AS ignored,
		       count(DISTINCT t) AS tickets`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to collect payment facts: %w", err)
	}

	facts := make([]PaymentFact, 0, len(rows))
	for _, row := range rows {
		facts = append(facts, PaymentFact{
			Handle:           asString(row["handle"]),
			PaidOnTime:       asInt(row["on_time"]),
			PaidLate:         asInt(row["late"]),
			AvgLatenessDays:  asFloat(row["avg_lateness"]),
			PendingCount:     asInt(row["pending"]),
			OverdueCount:     asInt(row["overdue"]),
			IgnoredReminders: asInt(row["ignored"]),
			TicketCount:      asInt(row["tickets"]),
		})
	}
	return facts, nil
}

// Enrich classifies one guardian and writes the result onto the node.
func (e *Enricher) Enrich(ctx context.Context, fact PaymentFact) (*GuardianInsight, error) {
	insight, err := e.classify(ctx, fact)
	if err != nil {
		return nil, err
	}

	_, err = e.graph.Run(ctx, `
		MATCH (g:Guardian {whatsapp: $handle})
		SET g.payer_profile = $profile, g.risk_level = $risk, g.patterns = $patterns`,
		map[string]any{
			"handle":   fact.Handle,
			"profile":  string(insight.PayerProfile),
			"risk":     string(insight.RiskLevel),
			"patterns": insight.Patterns,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to store insight for %s: %w", fact.Handle, err)
	}
	return insight, nil
}

// EnrichAll sweeps every guardian. Per-guardian failures are logged and
// skipped so one bad record does not abort the batch.
func (e *Enricher) EnrichAll(ctx context.Context) (int, error) {
	facts, err := e.CollectFacts(ctx)
	if err != nil {
		return 0, err
	}
	enriched := 0
	for _, fact := range facts {
		if _, err := e.Enrich(ctx, fact); err != nil {
			e.logger.Warn("Enrichment failed for guardian", "error", err)
			continue
		}
		enriched++
	}
	return enriched, nil
}

// classify asks the LLM for the profile; on failure it falls back to the
// deterministic heuristic so the batch always converges.
func (e *Enricher) classify(ctx context.Context, fact PaymentFact) (*GuardianInsight, error) {
	heuristic := HeuristicInsight(fact)
	if e.model == nil {
		return heuristic, nil
	}

	encoded, _ := json.Marshal(fact)
	resp, err := e.model.Generate(ctx, &llm.Request{
		Node: "kg_enrichment",
		Kind: "enrichment",
		System: "Clasificás el comportamiento de pago de responsables de un colegio. " +
			"Respondés SOLO con JSON: {\"payer_profile\": \"puntual|ocasional|moroso|nuevo\", " +
			"\"risk_level\": \"low|medium|high\", \"patterns\": [\"...\"]}",
		Prompt: fmt.Sprintf("Evidencia de comportamiento:\n%s", encoded),
	})
	if err != nil {
		e.logger.Warn("Enrichment LLM call failed, using heuristic", "error", err)
		return heuristic, nil
	}

	var insight GuardianInsight
	if err := json.Unmarshal([]byte(resp.Text), &insight); err != nil {
		e.logger.Warn("Enrichment output unparseable, using heuristic", "error", err)
		return heuristic, nil
	}
	insight.Handle = fact.Handle
	if insight.PayerProfile == "" {
		insight.PayerProfile = heuristic.PayerProfile
	}
	if insight.RiskLevel == "" {
		insight.RiskLevel = heuristic.RiskLevel
	}
	return &insight, nil
}

// HeuristicInsight is the deterministic fallback classification.
func HeuristicInsight(fact PaymentFact) *GuardianInsight {
	insight := &GuardianInsight{Handle: fact.Handle, Patterns: []string{}}

	totalPaid := fact.PaidOnTime + fact.PaidLate
	switch {
	case totalPaid == 0 && fact.OverdueCount == 0:
		insight.PayerProfile = PayerNew
	case fact.OverdueCount >= 2 || (totalPaid > 0 && fact.PaidLate > fact.PaidOnTime && fact.IgnoredReminders >= 2):
		insight.PayerProfile = PayerDelinquent
	case fact.PaidLate > 0:
		insight.PayerProfile = PayerOccasional
	default:
		insight.PayerProfile = PayerPunctual
	}

	switch insight.PayerProfile {
	case PayerDelinquent:
		insight.RiskLevel = RiskHigh
	case PayerOccasional:
		insight.RiskLevel = RiskMedium
	default:
		insight.RiskLevel = RiskLow
	}

	if fact.AvgLatenessDays > 0 {
		insight.Patterns = append(insight.Patterns,
			fmt.Sprintf("paga con %.0f días de atraso promedio", fact.AvgLatenessDays))
	}
	if fact.IgnoredReminders > 0 {
		insight.Patterns = append(insight.Patterns, "ignora recordatorios de vencimiento")
	}
	return insight
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}
