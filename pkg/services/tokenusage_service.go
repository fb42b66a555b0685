package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/models"
)

// TokenUsageService persists finalized token sessions for cost analysis.
type TokenUsageService struct {
	db *sqlx.DB
}

// NewTokenUsageService creates a TokenUsageService.
func NewTokenUsageService(db *sqlx.DB) *TokenUsageService {
	return &TokenUsageService{db: db}
}

// Save stores the aggregate of a finalized session. Duplicate query ids are
// ignored (a retried background job writes once).
func (s *TokenUsageService) Save(ctx context.Context, session *llm.TokenSession) error {
	if session == nil {
		return NewValidationError("session", "required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_usage (query_id, handle, message, provider, model,
			prompt_tokens, completion_tokens, total_tokens, inference_count, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (query_id) DO NOTHING`,
		session.QueryID, session.Handle, session.Message, session.Provider, session.Model,
		session.TotalPromptTokens, session.TotalCompletionTokens, session.TotalTokens,
		len(session.Inferences), session.StartTime, session.EndTime)
	if err != nil {
		return fmt.Errorf("failed to save token usage: %w", err)
	}
	return nil
}

// Get returns the record for one query.
func (s *TokenUsageService) Get(ctx context.Context, queryID string) (*models.TokenUsageRecord, error) {
	var record models.TokenUsageRecord
	err := s.db.GetContext(ctx, &record, `
		SELECT query_id, handle, message, provider, model,
		       prompt_tokens, completion_tokens, total_tokens, inference_count, started_at, ended_at
		FROM token_usage WHERE query_id = $1`, queryID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token usage: %w", err)
	}
	return &record, nil
}

// UsageTotals aggregates consumption over a handle (all time).
type UsageTotals struct {
	Queries          int `db:"queries" json:"queries"`
	PromptTokens     int `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int `db:"total_tokens" json:"total_tokens"`
}

// TotalsByHandle sums token usage for one handle.
func (s *TokenUsageService) TotalsByHandle(ctx context.Context, handle string) (*UsageTotals, error) {
	var totals UsageTotals
	err := s.db.GetContext(ctx, &totals, `
		SELECT COUNT(*) AS queries,
		       COALESCE(SUM(prompt_tokens), 0) AS prompt_tokens,
		       COALESCE(SUM(completion_tokens), 0) AS completion_tokens,
		       COALESCE(SUM(total_tokens), 0) AS total_tokens
		FROM token_usage WHERE handle = $1`, models.NormalizeHandle(handle))
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate token usage: %w", err)
	}
	return &totals, nil
}
