package models

import "time"

// InteractionKind classifies a logged message.
type InteractionKind string

// Interaction kinds.
const (
	InteractionInbound      InteractionKind = "entrante"
	InteractionBotReply     InteractionKind = "respuesta_bot"
	InteractionPaymentClaim InteractionKind = "confirmacion_pago"
	InteractionAdminReply   InteractionKind = "respuesta_admin"
)

// Interaction is one entry of the append-only message log.
type Interaction struct {
	ID            string          `json:"id" db:"id"`
	Handle        string          `json:"whatsapp" db:"handle"`
	InstallmentID string          `json:"cuota_id,omitempty" db:"installment_id"`
	Kind          InteractionKind `json:"tipo" db:"kind"`
	Text          string          `json:"texto" db:"text"`
	Agent         string          `json:"agente,omitempty" db:"agent"`
	Extras        map[string]any  `json:"extras,omitempty" db:"-"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
