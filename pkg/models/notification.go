package models

import "time"

// NotificationKind identifies an outbound notification type.
// At most one notification of each kind is sent per installment.
type NotificationKind string

// Notification kinds.
const (
	NotificationReminderD7          NotificationKind = "recordatorio_d7"
	NotificationReminderD3          NotificationKind = "recordatorio_d3"
	NotificationReminderD1          NotificationKind = "recordatorio_d1"
	NotificationPaymentConfirmation NotificationKind = "confirmacion_pago"
)

// ReminderKindForDays maps a days-before-due window to its reminder kind.
// Returns "" for windows without a reminder.
func ReminderKindForDays(days int) NotificationKind {
	switch days {
	case 7:
		return NotificationReminderD7
	case 3:
		return NotificationReminderD3
	case 1:
		return NotificationReminderD1
	}
	return ""
}

// NotificationSent records one delivered notification; the unique
// (installment_id, kind) pair is the dedupe key.
type NotificationSent struct {
	ID            string           `json:"id" db:"id"`
	InstallmentID string           `json:"cuota_id" db:"installment_id"`
	Handle        string           `json:"whatsapp" db:"handle"`
	Kind          NotificationKind `json:"tipo" db:"kind"`
	SentAt        time.Time        `json:"sent_at" db:"sent_at"`
	Read          bool             `json:"leida" db:"read"`
}
