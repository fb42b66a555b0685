package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-ws/gestor/pkg/models"
)

func ticketRows(state models.TicketState, resolvedAt any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "guardian_id", "category", "reason", "context",
		"state", "priority", "admin_reply", "created_at", "resolved_at",
	}).AddRow(
		"T-1", "A001", "R001", string(models.TicketPlanRequest), "Quiero un plan de pagos",
		[]byte(`{"phone":"+549"}`), string(state), string(models.PriorityMedium), "",
		time.Now().UTC(), resolvedAt,
	)
}

func TestCreateTicketDefaults(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewTicketService(db)

	mock.ExpectExec(`INSERT INTO tickets`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ticket, err := svc.Create(context.Background(), models.Ticket{
		StudentID: "A001",
		Category:  "categoria_inventada",
		Reason:    "ayuda",
	})
	require.NoError(t, err)
	assert.Equal(t, models.TicketGeneric, ticket.Category, "unknown category falls back to generic")
	assert.Equal(t, models.PriorityMedium, ticket.Priority)
	assert.Equal(t, models.TicketPending, ticket.State)
	assert.NotEmpty(t, ticket.ID)
	assert.Len(t, ticket.ShortID(), 8)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTicketRequiresReason(t *testing.T) {
	db, _ := newMockDB(t)
	svc := NewTicketService(db)

	_, err := svc.Create(context.Background(), models.Ticket{StudentID: "A001"})
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestResolveTicket(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewTicketService(db)

	mock.ExpectQuery(`SELECT .* FROM tickets WHERE id`).
		WillReturnRows(ticketRows(models.TicketInProgress, nil))
	mock.ExpectExec(`UPDATE tickets SET state`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ticket, err := svc.Resolve(context.Background(), "T-1", "Cuotas en 3 pagos aprobadas")
	require.NoError(t, err)
	assert.Equal(t, models.TicketResolved, ticket.State)
	assert.Equal(t, "Cuotas en 3 pagos aprobadas", ticket.AdminReply)
	require.NotNil(t, ticket.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAlreadyResolved(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewTicketService(db)

	mock.ExpectQuery(`SELECT .* FROM tickets WHERE id`).
		WillReturnRows(ticketRows(models.TicketResolved, time.Now().UTC()))

	_, err := svc.Resolve(context.Background(), "T-1", "otra vez")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResolveRequiresReply(t *testing.T) {
	db, _ := newMockDB(t)
	svc := NewTicketService(db)

	_, err := svc.Resolve(context.Background(), "T-1", "")
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestStartTransitionGuard(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewTicketService(db)

	// No pending row matched; the follow-up Get finds nothing → not found.
	mock.ExpectExec(`UPDATE tickets SET state`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM tickets WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Start(context.Background(), "T-404")
	assert.ErrorIs(t, err, ErrNotFound)

	// Row exists but is already in progress → invalid transition.
	mock.ExpectExec(`UPDATE tickets SET state`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT .* FROM tickets WHERE id`).
		WillReturnRows(ticketRows(models.TicketInProgress, nil))

	_, err = svc.Start(context.Background(), "T-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTicketNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewTicketService(db)

	mock.ExpectQuery(`SELECT .* FROM tickets WHERE id`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}
