package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/colegio-ws/gestor/pkg/agent"
	"github.com/colegio-ws/gestor/pkg/erp"
	"github.com/colegio-ws/gestor/pkg/models"
)

// MirrorService owns the eventually-consistent replicas of ERP state.
// Rows are written only on webhook receipt or batch resync.
type MirrorService struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewMirrorService creates a MirrorService.
func NewMirrorService(db *sqlx.DB) *MirrorService {
	return &MirrorService{db: db, logger: slog.Default().With("component", "mirror-service")}
}

// UpsertGuardian creates or refreshes a guardian mirror row.
func (s *MirrorService) UpsertGuardian(ctx context.Context, g models.Guardian) error {
	if g.ID == "" {
		return NewValidationError("id", "required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guardian_mirror (id, name, handle, email, last_sync)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, handle = EXCLUDED.handle,
		    email = EXCLUDED.email, last_sync = EXCLUDED.last_sync`,
		g.ID, g.Name, models.NormalizeHandle(g.Handle), g.Email, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert guardian mirror %s: %w", g.ID, err)
	}
	return nil
}

// UpsertStudent creates or refreshes a student mirror row.
func (s *MirrorService) UpsertStudent(ctx context.Context, st models.Student) error {
	if st.ID == "" {
		return NewValidationError("id", "required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO student_mirror (id, name, grade, active, last_sync)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, grade = EXCLUDED.grade,
		    active = EXCLUDED.active, last_sync = EXCLUDED.last_sync`,
		st.ID, st.Name, st.Grade, st.Active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert student mirror %s: %w", st.ID, err)
	}
	return nil
}

// LinkGuardianStudent records the join row; duplicates are ignored.
func (s *MirrorService) LinkGuardianStudent(ctx context.Context, guardianID, studentID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guardian_student_mirror (guardian_id, student_id)
		VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		guardianID, studentID)
	if err != nil {
		return fmt.Errorf("failed to link guardian %s to student %s: %w", guardianID, studentID, err)
	}
	return nil
}

// UpsertInstallment creates or refreshes an installment mirror row.
func (s *MirrorService) UpsertInstallment(ctx context.Context, inst models.Installment) error {
	if inst.ID == "" {
		return NewValidationError("id", "required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO installment_mirror (id, student_id, number, amount, due_date, state, pay_link, paid_at, last_sync)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET student_id = EXCLUDED.student_id, number = EXCLUDED.number,
		    amount = EXCLUDED.amount, due_date = EXCLUDED.due_date,
		    state = EXCLUDED.state, pay_link = EXCLUDED.pay_link,
		    paid_at = EXCLUDED.paid_at, last_sync = EXCLUDED.last_sync`,
		inst.ID, inst.StudentID, inst.Number, inst.Amount, inst.DueDate,
		inst.State, inst.PayLink, inst.PaidAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert installment mirror %s: %w", inst.ID, err)
	}
	return nil
}

// MarkInstallmentPaid flips the mirror row to paid on webhook receipt.
// Upsert semantics: a row the mirror has never seen is created paid.
func (s *MirrorService) MarkInstallmentPaid(ctx context.Context, installmentID, studentID string, amount float64, paidAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO installment_mirror (id, student_id, number, amount, due_date, state, pay_link, paid_at, last_sync)
		VALUES ($1, $2, 0, $3, $4, $5, '', $4, $6)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state, paid_at = EXCLUDED.paid_at, last_sync = EXCLUDED.last_sync`,
		installmentID, studentID, amount, paidAt, models.InstallmentPaid, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark installment %s paid: %w", installmentID, err)
	}
	return nil
}

// LookupGuardian resolves a handle to the agent's user context.
// Implements agent.GuardianLookup; a miss returns (nil, nil).
func (s *MirrorService) LookupGuardian(ctx context.Context, handle string) (*agent.UserContext, error) {
	var guardian models.GuardianMirror
	err := s.db.GetContext(ctx, &guardian, `
		SELECT id, name, handle, email, last_sync
		FROM guardian_mirror WHERE handle = $1`,
		models.NormalizeHandle(handle))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up guardian by handle: %w", err)
	}

	var students []models.StudentMirror
	err = s.db.SelectContext(ctx, &students, `
		SELECT s.id, s.name, s.grade, s.active, s.last_sync
		FROM student_mirror s
		JOIN guardian_student_mirror gs ON gs.student_id = s.id
		WHERE gs.guardian_id = $1
		ORDER BY s.id`, guardian.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load guardian students: %w", err)
	}

	user := &agent.UserContext{GuardianID: guardian.ID, Name: guardian.Name}
	for _, st := range students {
		user.Students = append(user.Students, agent.StudentRef{ID: st.ID, Name: st.Name, Grade: st.Grade})
	}
	return user, nil
}

// PendingInstallmentsDue lists mirror installments pending and due on the
// given date (used by the reminder sweep).
func (s *MirrorService) PendingInstallmentsDue(ctx context.Context, due time.Time) ([]models.InstallmentMirror, error) {
	var installments []models.InstallmentMirror
	err := s.db.SelectContext(ctx, &installments, `
		SELECT id, student_id, number, amount, due_date, state, pay_link, paid_at, last_sync
		FROM installment_mirror
		WHERE state = $1 AND due_date = $2
		ORDER BY id`,
		models.InstallmentPending, due.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending installments: %w", err)
	}
	return installments, nil
}

// GuardianHandleForStudent finds a reachable handle for a student.
func (s *MirrorService) GuardianHandleForStudent(ctx context.Context, studentID string) (string, error) {
	var handle string
	err := s.db.GetContext(ctx, &handle, `
		SELECT g.handle
		FROM guardian_mirror g
		JOIN guardian_student_mirror gs ON gs.guardian_id = g.id
		WHERE gs.student_id = $1 AND g.handle <> ''
		ORDER BY g.id LIMIT 1`, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to find guardian handle for student %s: %w", studentID, err)
	}
	return handle, nil
}

// StudentName returns a mirror student's display name, or "" on a miss.
func (s *MirrorService) StudentName(ctx context.Context, studentID string) string {
	var name string
	err := s.db.GetContext(ctx, &name, `SELECT name FROM student_mirror WHERE id = $1`, studentID)
	if err != nil {
		return ""
	}
	return name
}

// Resync pulls a guardian (and their students' installments) from the ERP
// into the mirror. Used on webhook gaps and at startup.
func (s *MirrorService) Resync(ctx context.Context, erpClient *erp.Client, handle string) error {
	view, err := erpClient.GetGuardianByHandle(ctx, handle)
	if err != nil {
		return fmt.Errorf("resync: %w", err)
	}
	if view == nil {
		return nil
	}

	if err := s.UpsertGuardian(ctx, view.Guardian); err != nil {
		return err
	}
	for _, student := range view.Students {
		if err := s.UpsertStudent(ctx, student); err != nil {
			return err
		}
		if err := s.LinkGuardianStudent(ctx, view.ID, student.ID); err != nil {
			return err
		}
		installments, err := erpClient.GetStudentInstallments(ctx, student.ID, "")
		if err != nil {
			return fmt.Errorf("resync installments for %s: %w", student.ID, err)
		}
		for _, inst := range installments {
			if err := s.UpsertInstallment(ctx, inst); err != nil {
				return err
			}
		}
	}
	s.logger.Info("Mirror resynced", "guardian", view.ID, "students", len(view.Students))
	return nil
}
