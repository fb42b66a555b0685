package models

import "time"

// Mirror rows are eventually-consistent replicas of ERP state, keyed by the
// ERP stable id. They are written only by webhook receipt or batch resync,
// never by the agent.

// GuardianMirror caches a guardian for handle lookup during agent runs.
type GuardianMirror struct {
	ID       string    `db:"id"`
	Name     string    `db:"name"`
	Handle   string    `db:"handle"`
	Email    string    `db:"email"`
	LastSync time.Time `db:"last_sync"`
}

// StudentMirror caches a student.
type StudentMirror struct {
	ID       string    `db:"id"`
	Name     string    `db:"name"`
	Grade    string    `db:"grade"`
	Active   bool      `db:"active"`
	LastSync time.Time `db:"last_sync"`
}

// InstallmentMirror caches an installment for reminders and account queries.
type InstallmentMirror struct {
	ID        string           `db:"id"`
	StudentID string           `db:"student_id"`
	Number    int              `db:"number"`
	Amount    float64          `db:"amount"`
	DueDate   time.Time        `db:"due_date"`
	State     InstallmentState `db:"state"`
	PayLink   string           `db:"pay_link"`
	PaidAt    *time.Time       `db:"paid_at"`
	LastSync  time.Time        `db:"last_sync"`
}

// GuardianStudentMirror is the join table between guardian and student
// mirrors. Neither side owns the other.
type GuardianStudentMirror struct {
	GuardianID string `db:"guardian_id"`
	StudentID  string `db:"student_id"`
}
