// Package models defines the domain types shared by the gestor services:
// canonical ERP entities, orchestrator-owned records, and their wire shapes.
package models

import (
	"fmt"
	"strings"
	"time"
)

// GuardianRelation tags how a guardian relates to a student.
type GuardianRelation string

// Guardian relation values.
const (
	RelationFather GuardianRelation = "padre"
	RelationMother GuardianRelation = "madre"
	RelationTutor  GuardianRelation = "tutor"
)

// InstallmentState is the lifecycle state of an installment.
type InstallmentState string

// Installment states. Transitions: pending → paid (payment confirmation),
// pending → overdue (due-date batch). paid is terminal.
const (
	InstallmentPending InstallmentState = "pendiente"
	InstallmentPaid    InstallmentState = "pagada"
	InstallmentOverdue InstallmentState = "vencida"
)

// Guardian is a responsible party for one or more students.
// Handle is unique after normalization (NormalizeHandle).
type Guardian struct {
	ID       string           `json:"id" db:"id"`
	Name     string           `json:"nombre" db:"name"`
	Handle   string           `json:"whatsapp" db:"handle"`
	Email    string           `json:"email,omitempty" db:"email"`
	Relation GuardianRelation `json:"relacion" db:"relation"`
}

// Student is an enrolled pupil. Many-to-many with guardians via a join table.
type Student struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"nombre" db:"name"`
	Grade     string    `json:"grado" db:"grade"`
	Active    bool      `json:"activo" db:"active"`
	BirthDate time.Time `json:"fecha_nacimiento" db:"birth_date"`
}

// PaymentPlan groups the installments of a school year.
type PaymentPlan struct {
	ID               string  `json:"id" db:"id"`
	Label            string  `json:"nombre" db:"label"`
	InstallmentCount int     `json:"cantidad_cuotas" db:"installment_count"`
	Amount           float64 `json:"monto_cuota" db:"amount"`
	Year             int     `json:"anio" db:"year"`
}

// Installment is a single scheduled payment for a student.
type Installment struct {
	ID        string           `json:"id" db:"id"`
	StudentID string           `json:"alumno_id" db:"student_id"`
	PlanID    string           `json:"plan_id" db:"plan_id"`
	Number    int              `json:"numero" db:"number"`
	Amount    float64          `json:"monto" db:"amount"`
	DueDate   time.Time        `json:"fecha_vencimiento" db:"due_date"`
	State     InstallmentState `json:"estado" db:"state"`
	PayLink   string           `json:"link_pago,omitempty" db:"pay_link"`
	PaidAt    *time.Time       `json:"fecha_pago,omitempty" db:"paid_at"`
}

// Payment records a confirmed payment against an installment.
// An installment has at most one successful payment.
type Payment struct {
	ID            string    `json:"id" db:"id"`
	InstallmentID string    `json:"cuota_id" db:"installment_id"`
	Amount        float64   `json:"monto" db:"amount"`
	PaidAt        time.Time `json:"fecha_pago" db:"paid_at"`
	Method        string    `json:"medio,omitempty" db:"method"`
	Reference     string    `json:"referencia,omitempty" db:"reference"`
}

// GuardianView is the ERP wire shape for a guardian with embedded students.
type GuardianView struct {
	Guardian
	Students []Student `json:"alumnos"`
}

// StudentView is the ERP wire shape for a student with embedded guardians.
type StudentView struct {
	Student
	Guardians []Guardian `json:"responsables,omitempty"`
}

// InstallmentView is the ERP wire shape for an installment, optionally
// embedding the student and plan.
type InstallmentView struct {
	Installment
	Student *Student     `json:"alumno,omitempty"`
	Plan    *PaymentPlan `json:"plan,omitempty"`
}

// FormatAmount renders an amount for user-facing messages with thousands
// separators and no decimals, e.g. 132000 → "$132,000".
func FormatAmount(amount float64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	whole := fmt.Sprintf("%.0f", amount)
	var parts []string
	for len(whole) > 3 {
		parts = append([]string{whole[len(whole)-3:]}, parts...)
		whole = whole[:len(whole)-3]
	}
	parts = append([]string{whole}, parts...)
	out := "$" + strings.Join(parts, ",")
	if neg {
		out = "-" + out
	}
	return out
}
