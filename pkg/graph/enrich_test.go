package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-ws/gestor/pkg/llm"
)

// fakeQuerier records cypher statements and returns scripted rows.
type fakeQuerier struct {
	rows    map[string][]map[string]any // substring → rows
	queries []string
}

func (f *fakeQuerier) Run(_ context.Context, cypher string, _ map[string]any) ([]map[string]any, error) {
	f.queries = append(f.queries, cypher)
	for needle, rows := range f.rows {
		if needle != "" && strings.Contains(cypher, needle) {
			return rows, nil
		}
	}
	return nil, nil
}

func (f *fakeQuerier) Close(context.Context) error { return nil }

func TestHeuristicInsight(t *testing.T) {
	tests := []struct {
		name    string
		fact    PaymentFact
		profile PayerProfile
		risk    RiskLevel
	}{
		{"new guardian", PaymentFact{}, PayerNew, RiskLow},
		{"punctual", PaymentFact{PaidOnTime: 5}, PayerPunctual, RiskLow},
		{"occasional", PaymentFact{PaidOnTime: 3, PaidLate: 2, AvgLatenessDays: 4}, PayerOccasional, RiskMedium},
		{"delinquent by overdue", PaymentFact{PaidLate: 1, OverdueCount: 3}, PayerDelinquent, RiskHigh},
		{"delinquent by ignoring", PaymentFact{PaidOnTime: 1, PaidLate: 4, IgnoredReminders: 3}, PayerDelinquent, RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			insight := HeuristicInsight(tt.fact)
			assert.Equal(t, tt.profile, insight.PayerProfile)
			assert.Equal(t, tt.risk, insight.RiskLevel)
		})
	}
}

func TestEnrichFallsBackToHeuristicOnBadLLM(t *testing.T) {
	querier := &fakeQuerier{rows: map[string][]map[string]any{}}
	enricher := NewEnricher(querier, llm.NewScripted("no soy json"))

	insight, err := enricher.Enrich(context.Background(), PaymentFact{
		Handle: "+549", PaidOnTime: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, PayerPunctual, insight.PayerProfile)

	// The insight was written back to the graph.
	var wrote bool
	for _, q := range querier.queries {
		if strings.Contains(q, "SET g.payer_profile") {
			wrote = true
		}
	}
	assert.True(t, wrote)
}

func TestEnrichUsesLLMVerdict(t *testing.T) {
	querier := &fakeQuerier{rows: map[string][]map[string]any{}}
	enricher := NewEnricher(querier, llm.NewScripted(
		`{"payer_profile": "moroso", "risk_level": "high", "patterns": ["promete y no paga"]}`))

	insight, err := enricher.Enrich(context.Background(), PaymentFact{Handle: "+549", PaidOnTime: 4})
	require.NoError(t, err)
	assert.Equal(t, PayerDelinquent, insight.PayerProfile)
	assert.Equal(t, RiskHigh, insight.RiskLevel)
	assert.Equal(t, []string{"promete y no paga"}, insight.Patterns)
}

func TestComputeRiskScore(t *testing.T) {
	assert.InDelta(t, 0.0, ComputeRiskScore(0, 0, 0), 1e-9)
	assert.InDelta(t, 0.35, ComputeRiskScore(1, 0, 0), 1e-9)
	assert.InDelta(t, 1.0, ComputeRiskScore(3, 0, 0), 1e-9, "clamped at 1")
	assert.Equal(t, RiskLow, RiskLevelForScore(0.1))
	assert.Equal(t, RiskMedium, RiskLevelForScore(0.4))
	assert.Equal(t, RiskHigh, RiskLevelForScore(0.8))
}

func TestCollectionProbabilityOrdering(t *testing.T) {
	assert.Greater(t, CollectionProbability(PayerPunctual), CollectionProbability(PayerOccasional))
	assert.Greater(t, CollectionProbability(PayerOccasional), CollectionProbability(PayerDelinquent))
}

func TestCashProjectionWeighting(t *testing.T) {
	querier := &fakeQuerier{rows: map[string][]map[string]any{
		"OWES": {
			{"id": "c1", "amount": 100.0, "profile": "puntual"},
			{"id": "c2", "amount": 100.0, "profile": "moroso"},
		},
	}}
	reports := NewReports(querier, nil)

	projection, err := reports.CashProjection(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 2, projection["installments"])
	assert.InDelta(t, 200.0, projection["nominal_total"].(float64), 1e-9)
	assert.InDelta(t, 142.0, projection["expected_total"].(float64), 1e-9)
	assert.InDelta(t, 0.71, projection["collection_rate"].(float64), 1e-9)
}
