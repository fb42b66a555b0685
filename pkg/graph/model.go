// Package graph implements the insights service: ETL from the
// orchestrator's cache tables into a property graph, LLM enrichment of payer
// behavior, and the analytic report queries behind /api/v1/reports.
package graph

// Node labels.
const (
	NodeGuardian        = "Guardian"
	NodeStudent         = "Student"
	NodeInstallment     = "Installment"
	NodeGrade           = "Grade"
	NodeTicket          = "Ticket"
	NodeBehaviorCluster = "BehaviorCluster"
)

// Edge types.
const (
	EdgeResponsibleOf       = "RESPONSIBLE_OF"
	EdgeEnrolledIn          = "ENROLLED_IN"
	EdgeOwes                = "OWES"
	EdgePaid                = "PAID"
	EdgeInteracted          = "INTERACTED"
	EdgeIgnoredNotification = "IGNORED_NOTIFICATION"
	EdgeCreatedTicket       = "CREATED_TICKET"
	EdgeBelongsTo           = "BELONGS_TO"
)

// PayerProfile classifies a guardian's payment behavior.
type PayerProfile string

// Payer profiles.
const (
	PayerPunctual   PayerProfile = "puntual"
	PayerOccasional PayerProfile = "ocasional"
	PayerDelinquent PayerProfile = "moroso"
	PayerNew        PayerProfile = "nuevo"
)

// RiskLevel buckets a guardian's delinquency risk.
type RiskLevel string

// Risk levels.
const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// GuardianInsight is the LLM-derived enrichment stored on a Guardian node.
type GuardianInsight struct {
	Handle       string       `json:"whatsapp"`
	PayerProfile PayerProfile `json:"payer_profile"`
	RiskLevel    RiskLevel    `json:"risk_level"`
	Patterns     []string     `json:"patterns"`
}

// PaymentFact is the behavioral evidence fed to the enrichment prompt.
type PaymentFact struct {
	Handle           string  `json:"whatsapp"`
	PaidOnTime       int     `json:"pagos_en_termino"`
	PaidLate         int     `json:"pagos_tarde"`
	AvgLatenessDays  float64 `json:"atraso_promedio_dias"`
	PendingCount     int     `json:"cuotas_pendientes"`
	OverdueCount     int     `json:"cuotas_vencidas"`
	IgnoredReminders int     `json:"recordatorios_ignorados"`
	TicketCount      int     `json:"tickets"`
}
