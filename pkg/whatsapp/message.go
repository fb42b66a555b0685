package whatsapp

import (
	"fmt"

	"github.com/colegio-ws/gestor/pkg/models"
)

// Message builders for the automatic notifications.

// ReminderMessage renders a due-date reminder for a student's installment.
func ReminderMessage(studentName string, amount float64, dueDate string, daysBefore int, payLink string) string {
	var urgency string
	switch daysBefore {
	case 1:
		urgency = "⚠️ *Vence mañana*"
	case 3:
		urgency = "📅 Vence en 3 días"
	default:
		urgency = "📅 Próximo vencimiento"
	}

	msg := fmt.Sprintf(
		"%s\n\nLa cuota de %s vence el %s.\n\n💰 Monto: %s",
		urgency, studentName, dueDate, models.FormatAmount(amount),
	)
	if payLink != "" {
		msg += fmt.Sprintf("\n\n🔗 Podés pagarla acá: %s", payLink)
	}
	return msg
}

// PaymentConfirmationMessage renders the payment-confirmed notification.
func PaymentConfirmationMessage(studentName string, amount float64) string {
	return fmt.Sprintf(
		"✅ *Pago confirmado*\n\nRecibimos el pago de la cuota de %s.\n\n💰 Monto: %s\n\n¡Gracias por tu pago! 🙌",
		studentName, models.FormatAmount(amount),
	)
}
