package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colegio-ws/gestor/pkg/models"
	"github.com/colegio-ws/gestor/pkg/whatsapp"
)

type fakeSender struct {
	sent []string
	fail bool
}

func (f *fakeSender) SendText(_ context.Context, to, text, _ string) *whatsapp.SendResult {
	if f.fail {
		return &whatsapp.SendResult{Success: false, To: to, Error: "provider down"}
	}
	f.sent = append(f.sent, text)
	return &whatsapp.SendResult{Success: true, To: to, MessageID: "sim_1", Simulated: true}
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func expectHandleLookup(mock sqlmock.Sqlmock, handle string) {
	mock.ExpectQuery(`SELECT g\.handle`).
		WillReturnRows(sqlmock.NewRows([]string{"handle"}).AddRow(handle))
}

func expectStudentName(mock sqlmock.Sqlmock, name string) {
	mock.ExpectQuery(`SELECT name FROM student_mirror`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(name))
}

func testInstallment() models.InstallmentMirror {
	return models.InstallmentMirror{
		ID:        "C-A001-03",
		StudentID: "A001",
		Number:    3,
		Amount:    45000,
		DueDate:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		State:     models.InstallmentPending,
		PayLink:   "https://pagos/c003",
	}
}

func TestSendReminderFirstTime(t *testing.T) {
	db, mock := newMockDB(t)
	sender := &fakeSender{}
	svc := NewNotificationService(db, NewMirrorService(db), sender)

	expectHandleLookup(mock, "+5491112345001")
	mock.ExpectExec(`INSERT INTO notification_sent`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectStudentName(mock, "Juan Pérez García")

	sent, err := svc.SendReminder(context.Background(), testInstallment(), 3)
	require.NoError(t, err)
	assert.True(t, sent)
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "Juan Pérez García")
	assert.Contains(t, sender.sent[0], "$45,000")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendReminderDeduplicated(t *testing.T) {
	db, mock := newMockDB(t)
	sender := &fakeSender{}
	svc := NewNotificationService(db, NewMirrorService(db), sender)

	expectHandleLookup(mock, "+5491112345001")
	// Conflict: the (installment, kind) pair already exists → 0 rows.
	mock.ExpectExec(`INSERT INTO notification_sent`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sent, err := svc.SendReminder(context.Background(), testInstallment(), 3)
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Empty(t, sender.sent, "no message for a duplicate claim")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendReminderReleasesClaimOnSendFailure(t *testing.T) {
	db, mock := newMockDB(t)
	sender := &fakeSender{fail: true}
	svc := NewNotificationService(db, NewMirrorService(db), sender)

	expectHandleLookup(mock, "+5491112345001")
	mock.ExpectExec(`INSERT INTO notification_sent`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectStudentName(mock, "Juan")
	mock.ExpectExec(`DELETE FROM notification_sent`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sent, err := svc.SendReminder(context.Background(), testInstallment(), 3)
	assert.Error(t, err)
	assert.False(t, sent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendReminderUnknownWindow(t *testing.T) {
	db, _ := newMockDB(t)
	svc := NewNotificationService(db, NewMirrorService(db), &fakeSender{})

	_, err := svc.SendReminder(context.Background(), testInstallment(), 5)
	assert.Error(t, err)
}

func TestSendPaymentConfirmationIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	sender := &fakeSender{}
	svc := NewNotificationService(db, NewMirrorService(db), sender)

	// First delivery.
	expectHandleLookup(mock, "+5491112345001")
	mock.ExpectExec(`INSERT INTO notification_sent`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectStudentName(mock, "Ana Pérez García")

	sent, err := svc.SendPaymentConfirmation(context.Background(), "C-A002-03", "A002", 42000)
	require.NoError(t, err)
	assert.True(t, sent)

	// Duplicate webhook delivery: claim conflicts, nothing sent.
	expectHandleLookup(mock, "+5491112345001")
	mock.ExpectExec(`INSERT INTO notification_sent`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	sent, err = svc.SendPaymentConfirmation(context.Background(), "C-A002-03", "A002", 42000)
	require.NoError(t, err)
	assert.False(t, sent)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "Pago confirmado")
	assert.NoError(t, mock.ExpectationsWereMet())
}
