package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/colegio-ws/gestor/pkg/models"
)

// ETL loads the orchestrator's cache tables into the graph. The cache is
// read-only from here: analytics never writes back.
type ETL struct {
	db     *sqlx.DB
	graph  Querier
	logger *slog.Logger
}

// NewETL creates the ETL over the cache DB and the graph store.
func NewETL(db *sqlx.DB, graph Querier) *ETL {
	return &ETL{db: db, graph: graph, logger: slog.Default().With("component", "graph-etl")}
}

// Sync runs one full load: guardians, students, installments, tickets, and
// the behavioral edges derived from interactions and notifications.
func (e *ETL) Sync(ctx context.Context) error {
	start := time.Now()

	if err := e.syncGuardians(ctx); err != nil {
		return fmt.Errorf("etl guardians: %w", err)
	}
	if err := e.syncStudents(ctx); err != nil {
		return fmt.Errorf("etl students: %w", err)
	}
	if err := e.syncInstallments(ctx); err != nil {
		return fmt.Errorf("etl installments: %w", err)
	}
	if err := e.syncTickets(ctx); err != nil {
		return fmt.Errorf("etl tickets: %w", err)
	}
	if err := e.syncIgnoredNotifications(ctx); err != nil {
		return fmt.Errorf("etl notifications: %w", err)
	}

	e.logger.Info("Graph sync complete", "elapsed", time.Since(start))
	return nil
}

func (e *ETL) syncGuardians(ctx context.Context) error {
	var guardians []models.GuardianMirror
	if err := e.db.SelectContext(ctx, &guardians, `
		SELECT id, name, handle, email, last_sync FROM guardian_mirror`); err != nil {
		return err
	}
	for _, g := range guardians {
		_, err := e.graph.Run(ctx, `
			MERGE (g:Guardian {id: $id})
			SET g.name = $name, g.whatsapp = $handle`,
			map[string]any{"id": g.ID, "name": g.Name, "handle": g.Handle})
		if err != nil {
			return err
		}
	}

	var links []models.GuardianStudentMirror
	if err := e.db.SelectContext(ctx, &links, `
		SELECT guardian_id, student_id FROM guardian_student_mirror`); err != nil {
		return err
	}
	for _, link := range links {
		_, err := e.graph.Run(ctx, `
			MATCH (g:Guardian {id: $gid})
			MERGE (s:Student {id: $sid})
			MERGE (g)-[:RESPONSIBLE_OF]->(s)`,
			map[string]any{"gid": link.GuardianID, "sid": link.StudentID})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *ETL) syncStudents(ctx context.Context) error {
	var students []models.StudentMirror
	if err := e.db.SelectContext(ctx, &students, `
		SELECT id, name, grade, active, last_sync FROM student_mirror`); err != nil {
		return err
	}
	for _, st := range students {
		_, err := e.graph.Run(ctx, `
			MERGE (s:Student {id: $id})
			SET s.name = $name, s.active = $active
			MERGE (gr:Grade {name: $grade})
			MERGE (s)-[:ENROLLED_IN]->(gr)`,
			map[string]any{"id": st.ID, "name": st.Name, "active": st.Active, "grade": st.Grade})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *ETL) syncInstallments(ctx context.Context) error {
	var installments []models.InstallmentMirror
	if err := e.db.SelectContext(ctx, &installments, `
		SELECT id, student_id, number, amount, due_date, state, pay_link, paid_at, last_sync
		FROM installment_mirror`); err != nil {
		return err
	}
	for _, inst := range installments {
		params := map[string]any{
			"id": inst.ID, "sid": inst.StudentID, "amount": inst.Amount,
			"due": inst.DueDate.Format("2006-01-02"), "state": string(inst.State),
		}
		_, err := e.graph.Run(ctx, `
			MERGE (i:Installment {id: $id})
			SET i.amount = $amount, i.due_date = date($due), i.state = $state
			WITH i
			MATCH (s:Student {id: $sid})
			MERGE (s)-[:OWES]->(i)`, params)
		if err != nil {
			return err
		}

		// PAID edge from the paying guardian, with lateness for enrichment.
		if inst.State == models.InstallmentPaid && inst.PaidAt != nil {
			lateness := int(inst.PaidAt.Sub(inst.DueDate).Hours() / 24)
			_, err := e.graph.Run(ctx, `
				MATCH (g:Guardian)-[:RESPONSIBLE_OF]->(s:Student {id: $sid})
				MATCH (i:Installment {id: $id})
				MERGE (g)-[p:PAID]->(i)
				SET p.date = $paidAt, p.amount = $amount, p.lateness_days = $lateness`,
				map[string]any{
					"sid": inst.StudentID, "id": inst.ID,
					"paidAt": inst.PaidAt.Format(time.RFC3339), "amount": inst.Amount,
					"lateness": lateness,
				})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *ETL) syncTickets(ctx context.Context) error {
	rows, err := e.db.QueryxContext(ctx, `
		SELECT id, guardian_id, category, priority, state FROM tickets WHERE guardian_id <> ''`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, guardianID, category, priority, state string
		if err := rows.Scan(&id, &guardianID, &category, &priority, &state); err != nil {
			return err
		}
		_, err := e.graph.Run(ctx, `
			MERGE (t:Ticket {id: $id})
			SET t.category = $category, t.priority = $priority, t.state = $state
			WITH t
			MATCH (g:Guardian {id: $gid})
			MERGE (g)-[:CREATED_TICKET]->(t)`,
			map[string]any{"id": id, "category": category, "priority": priority, "state": state, "gid": guardianID})
		if err != nil {
			return err
		}
	}
	return rows.Err()
}

// syncIgnoredNotifications adds IGNORED_NOTIFICATION edges for reminders that
// were sent but whose installment is still unpaid.
func (e *ETL) syncIgnoredNotifications(ctx context.Context) error {
	rows, err := e.db.QueryxContext(ctx, `
		SELECT n.handle, n.installment_id
		FROM notification_sent n
		JOIN installment_mirror i ON i.id = n.installment_id
		WHERE n.kind LIKE 'recordatorio%' AND i.state <> 'pagada'`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var handle, installmentID string
		if err := rows.Scan(&handle, &installmentID); err != nil {
			return err
		}
		_, err := e.graph.Run(ctx, `
			MATCH (g:Guardian {whatsapp: $handle})
			MATCH (i:Installment {id: $id})
			MERGE (g)-[:IGNORED_NOTIFICATION]->(i)`,
			map[string]any{"handle": handle, "id": installmentID})
		if err != nil {
			return err
		}
	}
	return rows.Err()
}
