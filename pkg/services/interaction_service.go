package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-ws/gestor/pkg/models"
)

// InteractionService appends to the message log. The log is append-only:
// there are no update or delete paths.
type InteractionService struct {
	db *sqlx.DB
}

// NewInteractionService creates an InteractionService.
func NewInteractionService(db *sqlx.DB) *InteractionService {
	return &InteractionService{db: db}
}

// Record appends one interaction. ID and timestamp are assigned here.
func (s *InteractionService) Record(ctx context.Context, interaction models.Interaction) (*models.Interaction, error) {
	if interaction.Handle == "" {
		return nil, NewValidationError("handle", "required")
	}
	if interaction.Kind == "" {
		return nil, NewValidationError("kind", "required")
	}

	interaction.ID = uuid.New().String()
	interaction.Handle = models.NormalizeHandle(interaction.Handle)
	interaction.CreatedAt = time.Now().UTC()

	var extras []byte
	if interaction.Extras != nil {
		var err error
		if extras, err = json.Marshal(interaction.Extras); err != nil {
			return nil, fmt.Errorf("failed to encode interaction extras: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, handle, installment_id, kind, text, agent, extras, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		interaction.ID, interaction.Handle, interaction.InstallmentID,
		interaction.Kind, interaction.Text, interaction.Agent, extras, interaction.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record interaction: %w", err)
	}
	return &interaction, nil
}

// RecordExchange logs an inbound message and the bot's reply as two rows.
// Runs on the background dispatcher; errors are returned for logging only.
func (s *InteractionService) RecordExchange(ctx context.Context, handle, inbound, reply, agentTag string) error {
	if _, err := s.Record(ctx, models.Interaction{
		Handle: handle,
		Kind:   models.InteractionInbound,
		Text:   inbound,
	}); err != nil {
		return err
	}
	_, err := s.Record(ctx, models.Interaction{
		Handle: handle,
		Kind:   models.InteractionBotReply,
		Text:   reply,
		Agent:  agentTag,
	})
	return err
}

// ListByHandle returns the most recent interactions for a handle.
func (s *InteractionService) ListByHandle(ctx context.Context, handle string, limit int) ([]models.Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, handle, installment_id, kind, text, agent, extras, created_at
		FROM interactions
		WHERE handle = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		models.NormalizeHandle(handle), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanInteractions(rows)
}

func scanInteractions(rows *sqlx.Rows) ([]models.Interaction, error) {
	interactions := []models.Interaction{}
	for rows.Next() {
		var interaction models.Interaction
		var extras []byte
		if err := rows.Scan(
			&interaction.ID, &interaction.Handle, &interaction.InstallmentID,
			&interaction.Kind, &interaction.Text, &interaction.Agent,
			&extras, &interaction.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		if len(extras) > 0 {
			_ = json.Unmarshal(extras, &interaction.Extras)
		}
		interactions = append(interactions, interaction)
	}
	return interactions, rows.Err()
}
