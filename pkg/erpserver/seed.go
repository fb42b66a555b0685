package erpserver

import (
	"fmt"
	"time"

	"github.com/colegio-ws/gestor/pkg/models"
)

// Seed populates the store with a small demo dataset: one guardian with two
// students on the yearly plan, plus a second guardian, matching the fixtures
// the tool server mocks describe.
func Seed(store *Store) error {
	plan := models.PaymentPlan{
		ID:               "PLAN-2026",
		Label:            "Plan anual 2026",
		InstallmentCount: 10,
		Amount:           45000,
		Year:             2026,
	}
	store.AddPlan(plan)

	guardians := []models.Guardian{
		{ID: "R001", Name: "María García", Handle: "+54 9 11 1234-5001", Email: "maria.garcia@example.com", Relation: models.RelationMother},
		{ID: "R002", Name: "Pedro López", Handle: "+5491112345002", Relation: models.RelationFather},
	}
	for _, g := range guardians {
		if err := store.AddGuardian(g); err != nil {
			return fmt.Errorf("failed to seed guardian %s: %w", g.ID, err)
		}
	}

	students := []models.Student{
		{ID: "A001", Name: "Juan Pérez García", Grade: "3ro A", Active: true, BirthDate: date(2017, 5, 12)},
		{ID: "A002", Name: "Ana Pérez García", Grade: "1ro B", Active: true, BirthDate: date(2019, 9, 3)},
		{ID: "A003", Name: "Lucía López", Grade: "5to A", Active: true, BirthDate: date(2015, 2, 20)},
	}
	for _, st := range students {
		store.AddStudent(st)
	}

	store.Link("R001", "A001")
	store.Link("R001", "A002")
	store.Link("R002", "A003")

	// Ten installments per student; the first two of the year already paid.
	for _, st := range students {
		amount := plan.Amount
		if st.ID == "A002" {
			amount = 42000
		}
		for n := 1; n <= plan.InstallmentCount; n++ {
			id := fmt.Sprintf("C-%s-%02d", st.ID, n)
			inst := models.Installment{
				ID:        id,
				StudentID: st.ID,
				PlanID:    plan.ID,
				Number:    n,
				Amount:    amount,
				DueDate:   date(2026, time.Month(n+2), 15),
				State:     models.InstallmentPending,
				PayLink:   "https://pagos.colegio.edu.ar/" + id,
			}
			if n <= 2 {
				paidAt := inst.DueDate.Add(-48 * time.Hour)
				inst.State = models.InstallmentPaid
				inst.PaidAt = &paidAt
			}
			store.AddInstallment(inst)
		}
	}
	return nil
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
