package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-ws/gestor/pkg/models"
)

// TicketService manages the escalation queue.
// Transitions: pending → in_progress → resolved; resolving stamps
// resolved_at and the admin reply.
type TicketService struct {
	db *sqlx.DB
}

// NewTicketService creates a TicketService.
func NewTicketService(db *sqlx.DB) *TicketService {
	return &TicketService{db: db}
}

// Create inserts a pending ticket.
func (s *TicketService) Create(ctx context.Context, ticket models.Ticket) (*models.Ticket, error) {
	if ticket.Reason == "" {
		return nil, NewValidationError("reason", "required")
	}
	if !models.ValidTicketCategory(ticket.Category) {
		ticket.Category = models.TicketGeneric
	}
	if ticket.Priority == "" {
		ticket.Priority = models.PriorityMedium
	}

	ticket.ID = uuid.New().String()
	ticket.State = models.TicketPending
	ticket.CreatedAt = time.Now().UTC()

	var contextJSON []byte
	if ticket.Context != nil {
		var err error
		if contextJSON, err = json.Marshal(ticket.Context); err != nil {
			return nil, fmt.Errorf("failed to encode ticket context: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, student_id, guardian_id, category, reason, context, state, priority, admin_reply, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', $9)`,
		ticket.ID, ticket.StudentID, ticket.GuardianID, ticket.Category,
		ticket.Reason, contextJSON, ticket.State, ticket.Priority, ticket.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return &ticket, nil
}

// Get returns a ticket by id.
func (s *TicketService) Get(ctx context.Context, id string) (*models.Ticket, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, student_id, guardian_id, category, reason, context, state, priority, admin_reply, created_at, resolved_at
		FROM tickets WHERE id = $1`, id)
	return scanTicket(row)
}

// List returns tickets, optionally filtered by state, newest first.
func (s *TicketService) List(ctx context.Context, state models.TicketState, limit int) ([]models.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, student_id, guardian_id, category, reason, context, state, priority, admin_reply, created_at, resolved_at
		FROM tickets`
	args := []any{}
	if state != "" {
		query += ` WHERE state = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, state, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tickets := []models.Ticket{}
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}
	return tickets, rows.Err()
}

// Start moves a pending ticket to in_progress.
func (s *TicketService) Start(ctx context.Context, id string) (*models.Ticket, error) {
	return s.transition(ctx, id, models.TicketPending, models.TicketInProgress)
}

// Resolve moves a ticket to resolved, stamping resolved_at and the admin
// reply. Pending tickets resolve directly (implicit in_progress).
func (s *TicketService) Resolve(ctx context.Context, id, adminReply string) (*models.Ticket, error) {
	if adminReply == "" {
		return nil, NewValidationError("admin_reply", "required")
	}

	ticket, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.State == models.TicketResolved {
		return nil, fmt.Errorf("%w: ticket %s is already resolved", ErrInvalidTransition, id)
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		UPDATE tickets SET state = $1, admin_reply = $2, resolved_at = $3 WHERE id = $4`,
		models.TicketResolved, adminReply, now, id)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve ticket %s: %w", id, err)
	}

	ticket.State = models.TicketResolved
	ticket.AdminReply = adminReply
	ticket.ResolvedAt = &now
	return ticket, nil
}

// transition performs a guarded state change.
func (s *TicketService) transition(ctx context.Context, id string, from, to models.TicketState) (*models.Ticket, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET state = $1 WHERE id = $2 AND state = $3`,
		to, id, from)
	if err != nil {
		return nil, fmt.Errorf("failed to transition ticket %s: %w", id, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		// Either the ticket does not exist or it is not in `from`.
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: ticket %s is not %s", ErrInvalidTransition, id, from)
	}
	return s.Get(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	var ticket models.Ticket
	var contextJSON []byte
	var resolvedAt sql.NullTime
	err := row.Scan(
		&ticket.ID, &ticket.StudentID, &ticket.GuardianID, &ticket.Category,
		&ticket.Reason, &contextJSON, &ticket.State, &ticket.Priority,
		&ticket.AdminReply, &ticket.CreatedAt, &resolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ticket: %w", err)
	}
	if len(contextJSON) > 0 {
		_ = json.Unmarshal(contextJSON, &ticket.Context)
	}
	if resolvedAt.Valid {
		ticket.ResolvedAt = &resolvedAt.Time
	}
	return &ticket, nil
}
