package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/colegio-ws/gestor/pkg/masking"
	"github.com/colegio-ws/gestor/pkg/models"
	"github.com/colegio-ws/gestor/pkg/whatsapp"
)

// MessageSender is the slice of the WhatsApp client the notifier needs.
type MessageSender interface {
	SendText(ctx context.Context, to, text, replyTo string) *whatsapp.SendResult
}

// NotificationService sends due-date reminders and payment confirmations.
// Dedupe key is (installment_id, kind): each kind is sent at most once per
// installment, enforced by the unique index so concurrent sweeps converge.
type NotificationService struct {
	db     *sqlx.DB
	mirror *MirrorService
	sender MessageSender
	logger *slog.Logger
}

// NewNotificationService creates a NotificationService.
func NewNotificationService(db *sqlx.DB, mirror *MirrorService, sender MessageSender) *NotificationService {
	return &NotificationService{
		db:     db,
		mirror: mirror,
		sender: sender,
		logger: slog.Default().With("component", "notification-service"),
	}
}

// claim records the (installment, kind) pair. Returns false when the pair
// was already claimed (duplicate).
func (s *NotificationService) claim(ctx context.Context, installmentID, handle string, kind models.NotificationKind) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_sent (id, installment_id, handle, kind, sent_at, read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (installment_id, kind) DO NOTHING`,
		uuid.New().String(), installmentID, handle, kind, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim notification: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected == 1, nil
}

// release drops a claim after a failed send so a later sweep can retry.
func (s *NotificationService) release(ctx context.Context, installmentID string, kind models.NotificationKind) {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM notification_sent WHERE installment_id = $1 AND kind = $2`,
		installmentID, kind); err != nil {
		s.logger.Error("Failed to release notification claim",
			"installment", installmentID, "kind", kind, "error", err)
	}
}

// SendReminder delivers one due-date reminder for an installment, at most
// once per (installment, kind).
func (s *NotificationService) SendReminder(ctx context.Context, inst models.InstallmentMirror, daysBefore int) (bool, error) {
	kind := models.ReminderKindForDays(daysBefore)
	if kind == "" {
		return false, NewValidationError("days_before", fmt.Sprintf("no reminder kind for %d days", daysBefore))
	}

	handle, err := s.mirror.GuardianHandleForStudent(ctx, inst.StudentID)
	if err != nil {
		return false, fmt.Errorf("no reachable guardian for student %s: %w", inst.StudentID, err)
	}

	claimed, err := s.claim(ctx, inst.ID, handle, kind)
	if err != nil {
		return false, err
	}
	if !claimed {
		s.logger.Info("Reminder already sent, skipping",
			"installment", inst.ID, "kind", kind)
		return false, nil
	}

	studentName := s.mirror.StudentName(ctx, inst.StudentID)
	message := whatsapp.ReminderMessage(studentName, inst.Amount, inst.DueDate.Format("2006-01-02"), daysBefore, inst.PayLink)

	result := s.sender.SendText(ctx, handle, message, "")
	if !result.Success {
		s.release(ctx, inst.ID, kind)
		return false, fmt.Errorf("reminder send failed: %s", result.Error)
	}

	s.logger.Info("Reminder sent",
		"installment", inst.ID, "kind", kind, "handle", masking.MaskHandle(handle))
	return true, nil
}

// SweepReminders sends every D-7/D-3/D-1 reminder due as of now.
// Returns the number of reminders delivered.
func (s *NotificationService) SweepReminders(ctx context.Context, now time.Time) int {
	sent := 0
	for _, days := range []int{7, 3, 1} {
		due := now.AddDate(0, 0, days)
		installments, err := s.mirror.PendingInstallmentsDue(ctx, due)
		if err != nil {
			s.logger.Error("Reminder sweep query failed", "days", days, "error", err)
			continue
		}
		for _, inst := range installments {
			ok, err := s.SendReminder(ctx, inst, days)
			if err != nil {
				s.logger.Warn("Reminder not sent", "installment", inst.ID, "error", err)
				continue
			}
			if ok {
				sent++
			}
		}
	}
	return sent
}

// SendPaymentConfirmation notifies the guardian that a payment was received.
// Idempotent via the (installment, confirmacion_pago) claim, so duplicate
// webhook deliveries send a single message.
func (s *NotificationService) SendPaymentConfirmation(ctx context.Context, installmentID, studentID string, amount float64) (bool, error) {
	handle, err := s.mirror.GuardianHandleForStudent(ctx, studentID)
	if err != nil {
		return false, fmt.Errorf("no reachable guardian for student %s: %w", studentID, err)
	}

	claimed, err := s.claim(ctx, installmentID, handle, models.NotificationPaymentConfirmation)
	if err != nil {
		return false, err
	}
	if !claimed {
		s.logger.Info("Payment confirmation already sent, skipping", "installment", installmentID)
		return false, nil
	}

	studentName := s.mirror.StudentName(ctx, studentID)
	message := whatsapp.PaymentConfirmationMessage(studentName, amount)

	result := s.sender.SendText(ctx, handle, message, "")
	if !result.Success {
		s.release(ctx, installmentID, models.NotificationPaymentConfirmation)
		return false, fmt.Errorf("confirmation send failed: %s", result.Error)
	}

	s.logger.Info("Payment confirmation sent",
		"installment", installmentID, "handle", masking.MaskHandle(handle))
	return true, nil
}

// ListByInstallment returns the notifications recorded for an installment.
func (s *NotificationService) ListByInstallment(ctx context.Context, installmentID string) ([]models.NotificationSent, error) {
	var sent []models.NotificationSent
	err := s.db.SelectContext(ctx, &sent, `
		SELECT id, installment_id, handle, kind, sent_at, read
		FROM notification_sent
		WHERE installment_id = $1
		ORDER BY sent_at`, installmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return sent, nil
}
