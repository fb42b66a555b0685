// Package erpserver implements the ERP service: the source of record for
// students, guardians, installments and payments, with a REST API and the
// outbound payment-confirmed webhook.
package erpserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/colegio-ws/gestor/pkg/models"
)

// Store errors.
var (
	ErrNotFound    = fmt.Errorf("not found")
	ErrAlreadyPaid = fmt.Errorf("installment already paid")
)

// Store holds the canonical entities in memory, guarded by a RWMutex.
// The handle index is keyed by normalized handles.
type Store struct {
	mu sync.RWMutex

	guardians    map[string]*models.Guardian
	students     map[string]*models.Student
	plans        map[string]*models.PaymentPlan
	installments map[string]*models.Installment
	payments     map[string]*models.Payment

	// guardian_id ↔ student_id join rows
	guardianStudents map[string]map[string]bool
	studentGuardians map[string]map[string]bool

	handleIndex map[string]string // normalized handle → guardian id
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		guardians:        make(map[string]*models.Guardian),
		students:         make(map[string]*models.Student),
		plans:            make(map[string]*models.PaymentPlan),
		installments:     make(map[string]*models.Installment),
		payments:         make(map[string]*models.Payment),
		guardianStudents: make(map[string]map[string]bool),
		studentGuardians: make(map[string]map[string]bool),
		handleIndex:      make(map[string]string),
	}
}

// AddGuardian inserts a guardian. Fails when the normalized handle collides.
func (s *Store) AddGuardian(g models.Guardian) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := models.NormalizeHandle(g.Handle)
	if existing, ok := s.handleIndex[normalized]; ok && existing != g.ID {
		return fmt.Errorf("handle %q already registered to guardian %s", normalized, existing)
	}
	g.Handle = normalized
	s.guardians[g.ID] = &g
	s.handleIndex[normalized] = g.ID
	return nil
}

// AddStudent inserts a student.
func (s *Store) AddStudent(st models.Student) {
	s.mu.Lock()
	s.students[st.ID] = &st
	s.mu.Unlock()
}

// AddPlan inserts a payment plan.
func (s *Store) AddPlan(p models.PaymentPlan) {
	s.mu.Lock()
	s.plans[p.ID] = &p
	s.mu.Unlock()
}

// AddInstallment inserts an installment.
func (s *Store) AddInstallment(i models.Installment) {
	s.mu.Lock()
	s.installments[i.ID] = &i
	s.mu.Unlock()
}

// Link associates a guardian with a student (join table, neither side owns
// the other).
func (s *Store) Link(guardianID, studentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.guardianStudents[guardianID] == nil {
		s.guardianStudents[guardianID] = make(map[string]bool)
	}
	if s.studentGuardians[studentID] == nil {
		s.studentGuardians[studentID] = make(map[string]bool)
	}
	s.guardianStudents[guardianID][studentID] = true
	s.studentGuardians[studentID][guardianID] = true
}

// Student returns a student by id.
func (s *Store) Student(id string) (*models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *st
	return &copied, nil
}

// StudentGuardians returns the guardians linked to a student.
func (s *Store) StudentGuardians(studentID string) []models.Guardian {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Guardian
	for gid := range s.studentGuardians[studentID] {
		if g, ok := s.guardians[gid]; ok {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GuardianByHandle looks up a guardian by normalized handle and embeds the
// linked students.
func (s *Store) GuardianByHandle(handle string) (*models.GuardianView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	gid, ok := s.handleIndex[models.NormalizeHandle(handle)]
	if !ok {
		return nil, ErrNotFound
	}
	g := s.guardians[gid]
	view := &models.GuardianView{Guardian: *g, Students: []models.Student{}}
	for sid := range s.guardianStudents[gid] {
		if st, ok := s.students[sid]; ok {
			view.Students = append(view.Students, *st)
		}
	}
	sort.Slice(view.Students, func(i, j int) bool { return view.Students[i].ID < view.Students[j].ID })
	return view, nil
}

// Installment returns an installment by id.
func (s *Store) Installment(id string) (*models.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.installments[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *inst
	return &copied, nil
}

// Plan returns a payment plan by id.
func (s *Store) Plan(id string) (*models.PaymentPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

// StudentInstallments lists a student's installments, optionally filtered by
// state, ordered by sequence number.
func (s *Store) StudentInstallments(studentID string, state models.InstallmentState) []models.Installment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Installment{}
	for _, inst := range s.installments {
		if inst.StudentID != studentID {
			continue
		}
		if state != "" && inst.State != state {
			continue
		}
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// QueryInstallments lists installments by state and due-date window.
// limit <= 0 means no limit.
func (s *Store) QueryInstallments(state models.InstallmentState, dueFrom, dueTo time.Time, limit int) []models.Installment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Installment{}
	for _, inst := range s.installments {
		if state != "" && inst.State != state {
			continue
		}
		if !dueFrom.IsZero() && inst.DueDate.Before(dueFrom) {
			continue
		}
		if !dueTo.IsZero() && inst.DueDate.After(dueTo) {
			continue
		}
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].DueDate.Before(out[j].DueDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ConfirmPayment transitions an installment pending→paid and records the
// payment. A second confirmation fails with ErrAlreadyPaid; paid is terminal.
func (s *Store) ConfirmPayment(installmentID string, amount float64, method, reference string) (*models.Payment, *models.Installment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.installments[installmentID]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if inst.State == models.InstallmentPaid {
		return nil, nil, ErrAlreadyPaid
	}

	now := time.Now().UTC()
	payment := &models.Payment{
		ID:            newPaymentID(),
		InstallmentID: installmentID,
		Amount:        amount,
		PaidAt:        now,
		Method:        method,
		Reference:     reference,
	}
	s.payments[payment.ID] = payment

	inst.State = models.InstallmentPaid
	inst.PaidAt = &now

	paymentCopy := *payment
	instCopy := *inst
	return &paymentCopy, &instCopy, nil
}

// MarkOverdue flips pending installments whose due date has passed.
// Returns the number of rows transitioned.
func (s *Store) MarkOverdue(asOf time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, inst := range s.installments {
		if inst.State == models.InstallmentPending && inst.DueDate.Before(asOf) {
			inst.State = models.InstallmentOverdue
			count++
		}
	}
	return count
}

// newPaymentID generates an id of the form PAY-<8 uppercase hex>.
func newPaymentID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return "PAY-" + strings.ToUpper(hex.EncodeToString(buf))
}
