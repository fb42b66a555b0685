package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/colegio-ws/gestor/pkg/models"
)

// ticketMessages renders the user-facing confirmation per category.
var ticketMessages = map[models.TicketCategory]string{
	models.TicketPlanRequest: "✅ Registré tu solicitud de plan de pagos.\n\n📝 Ticket: #%s\n\n" +
		"El área administrativa va a evaluar tu situación y te contactará por este medio con las opciones disponibles.\n\n" +
		"⏰ Tiempo estimado: 24-48 horas hábiles.",
	models.TicketComplaint: "📋 Tu reclamo fue registrado correctamente.\n\n📝 Ticket: #%s\n\n" +
		"Un representante del colegio va a revisar tu caso y te contactará para darle solución.\n\n" +
		"⏰ Tiempo estimado: 24 horas hábiles.",
	models.TicketWithdrawal: "📝 Tu solicitud de baja fue registrada.\n\nTicket: #%s\n\n" +
		"El área administrativa se comunicará contigo para continuar con el proceso.\n\n" +
		"⚠️ Recordá que pueden aplicarse políticas de baja anticipada.",
	models.TicketAuthorityInfo: "📋 Tu solicitud de información fue registrada.\n\n📝 Ticket: #%s\n\n" +
		"Te contactaremos con la información solicitada.\n\n⏰ Tiempo estimado: 24-48 horas hábiles.",
	models.TicketGeneric: "✅ Tu consulta fue derivada al área administrativa.\n\n📝 Ticket: #%s\n\n" +
		"Te responderán a la brevedad por este medio.\n\n⏰ Tiempo estimado: 24-48 horas hábiles.",
}

func ticketMessage(category models.TicketCategory, shortID string) string {
	tmpl, ok := ticketMessages[category]
	if !ok {
		tmpl = ticketMessages[models.TicketGeneric]
	}
	return fmt.Sprintf(tmpl, shortID)
}

// mockTicketStore is the in-memory fallback that keeps tickets whose creation
// on the orchestrator failed. In mock mode both ticket tools return their mock
// response and the store is not used. Process-local, no cross-process
// coherence.
type mockTicketStore struct {
	mu      sync.RWMutex
	tickets map[string]map[string]any
}

func newMockTicketStore() *mockTicketStore {
	return &mockTicketStore{tickets: make(map[string]map[string]any)}
}

func (s *mockTicketStore) put(id string, ticket map[string]any) {
	s.mu.Lock()
	s.tickets[id] = ticket
	s.mu.Unlock()
}

func (s *mockTicketStore) get(id string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	return t, ok
}

// ClassifyPriority derives a priority from the category and free-text reason.
// Complaints and urgency markers raise priority; informational requests lower it.
func ClassifyPriority(category models.TicketCategory, reason string) models.TicketPriority {
	lower := strings.ToLower(reason)
	for _, marker := range []string{"urgente", "grave", "ya mismo", "judicial", "abogado"} {
		if strings.Contains(lower, marker) {
			return models.PriorityHigh
		}
	}
	switch category {
	case models.TicketComplaint, models.TicketWithdrawal:
		return models.PriorityHigh
	case models.TicketAuthorityInfo:
		return models.PriorityLow
	default:
		return models.PriorityMedium
	}
}

// RegisterAdminTools registers the admin category: ticket creation, lookup,
// and priority classification against the orchestrator's admin API.
func RegisterAdminTools(reg *Registry, gestorURL string) {
	gestor := newUpstream(gestorURL)
	mockStore := newMockTicketStore()

	reg.Register(
		"crear_ticket",
		"Crea un ticket de escalamiento para atención humana (plan_pago, reclamo, baja, consulta_admin, info_autoridades).",
		CategoryAdmin,
		[]Param{
			{Name: "categoria", Type: TypeString},
			{Name: "motivo", Type: TypeString},
			{Name: "phone_number", Type: TypeString},
			{Name: "prioridad", Type: TypeString, HasDefault: true},
			{Name: "alumno_id", Type: TypeString, HasDefault: true},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			category := models.TicketCategory(StringArg(args, "categoria", string(models.TicketGeneric)))
			if !models.ValidTicketCategory(category) {
				category = models.TicketGeneric
			}
			reason := StringArg(args, "motivo", "")
			handle := StringArg(args, "phone_number", "")
			priority := models.TicketPriority(StringArg(args, "prioridad", ""))
			if priority == "" {
				priority = ClassifyPriority(category, reason)
			}

			payload := map[string]any{
				"categoria":    category,
				"motivo":       reason,
				"phone_number": handle,
				"prioridad":    priority,
				"alumno_id":    StringArg(args, "alumno_id", ""),
			}

			var created models.Ticket
			err := gestor.postJSON(ctx, "/api/v1/tickets", payload, &created)
			if err != nil {
				// Orchestrator down: fall back to the local store so the
				// escalation is never silently lost.
				ticketID := uuid.New().String()
				payload["id"] = ticketID
				payload["estado"] = string(models.TicketPending)
				payload["created_at"] = time.Now().UTC().Format(time.RFC3339)
				mockStore.put(ticketID, payload)

				shortID := ticketID[:8]
				return map[string]any{
					"created":   true,
					"ticket_id": ticketID,
					"categoria": category,
					"prioridad": priority,
					"mensaje":   ticketMessage(category, shortID),
					"fallback":  true,
				}, nil
			}

			return map[string]any{
				"created":   true,
				"ticket_id": created.ID,
				"categoria": created.Category,
				"prioridad": created.Priority,
				"mensaje":   ticketMessage(created.Category, created.ShortID()),
			}, nil
		},
		map[string]any{
			"created":   true,
			"ticket_id": "mock-ticket-001",
			"categoria": "consulta_admin",
			"prioridad": "media",
			"mensaje":   ticketMessage(models.TicketGeneric, "mock-tic"),
		},
	)

	reg.Register(
		"consultar_ticket",
		"Consulta el estado de un ticket existente por su ID.",
		CategoryAdmin,
		[]Param{{Name: "ticket_id", Type: TypeString}},
		func(ctx context.Context, args map[string]any) (any, error) {
			ticketID := StringArg(args, "ticket_id", "")
			if ticketID == "" {
				return nil, fmt.Errorf("ticket_id is required")
			}
			var ticket models.Ticket
			if err := gestor.getJSON(ctx, "/api/v1/tickets/"+ticketID, &ticket); err != nil {
				if errors.Is(err, errNotFound) {
					if cached, ok := mockStore.get(ticketID); ok {
						return map[string]any{"found": true, "ticket": cached}, nil
					}
					return map[string]any{"found": false}, nil
				}
				return nil, err
			}
			return map[string]any{"found": true, "ticket": ticket}, nil
		},
		map[string]any{
			"found": true,
			"ticket": map[string]any{
				"id":     "mock-ticket-001",
				"estado": "pendiente",
			},
		},
	)

	reg.Register(
		"clasificar_prioridad",
		"Clasifica la prioridad de una solicitud según su categoría y motivo.",
		CategoryAdmin,
		[]Param{
			{Name: "categoria", Type: TypeString},
			{Name: "motivo", Type: TypeString, HasDefault: true},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			category := models.TicketCategory(StringArg(args, "categoria", string(models.TicketGeneric)))
			priority := ClassifyPriority(category, StringArg(args, "motivo", ""))
			return map[string]any{"prioridad": priority}, nil
		},
		map[string]any{"prioridad": "media"},
	)
}
