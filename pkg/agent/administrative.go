package agent

import (
	"fmt"
	"log/slog"

	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/models"
)

// NewAdministrativeSpecialist builds the administrative specialist:
// escalation tickets and their follow-up.
func NewAdministrativeSpecialist(model llm.Client, toolClient ToolCaller) Specialist {
	return &subgraph{
		kind: SpecialistAdministrative,
		system: SpecialistSystem(SpecialistAdministrative,
			"Escalás solicitudes al área administrativa mediante tickets.",
			[]string{
				"crear_ticket - Crea un ticket (params: categoria [plan_pago|reclamo|baja|consulta_admin|info_autoridades], motivo, phone_number, prioridad opcional, alumno_id opcional)",
				"consultar_ticket - Consulta el estado de un ticket (param: ticket_id)",
				"clasificar_prioridad - Clasifica la prioridad de una solicitud (params: categoria, motivo)",
			}),
		toolNames: map[string]bool{
			"crear_ticket":         true,
			"consultar_ticket":     true,
			"clasificar_prioridad": true,
		},
		llm:        model,
		toolClient: toolClient,
		defaultPlan: func(st *State) SubPlan {
			return SubPlan{
				Specialist: SpecialistAdministrative,
				Actions: []ActionPlan{{
					Tool: "crear_ticket",
					Params: map[string]any{
						"categoria":    string(models.TicketGeneric),
						"motivo":       st.Message,
						"phone_number": st.Handle,
					},
					Description: "Escalar la consulta al área administrativa",
				}},
				Reasoning: "Plan por defecto ante error de planificación",
			}
		},
		summarize: summarizeAdministrative,
		logger:    slog.Default().With("component", "specialist-administrativo"),
	}
}

func summarizeAdministrative(_ *State, results []ActionResult) string {
	if ticket := resultFor(results, "crear_ticket"); ticket != nil {
		if msg, ok := ticket["mensaje"].(string); ok && msg != "" {
			return msg
		}
		if id, ok := ticket["ticket_id"].(string); ok {
			short := id
			if len(short) > 8 {
				short = short[:8]
			}
			return fmt.Sprintf("✅ Tu solicitud fue registrada.\n\n📝 Ticket: #%s\n\nTe responderán a la brevedad.", short)
		}
	}

	if lookup := resultFor(results, "consultar_ticket"); lookup != nil {
		if found, _ := lookup["found"].(bool); found {
			ticket := asMap(lookup["ticket"])
			return fmt.Sprintf("📋 Tu ticket está en estado: %v.", ticket["estado"])
		}
		return "No encontré un ticket con ese número. 🤔 Verificá el código e intentá de nuevo."
	}

	return "Tu solicitud fue derivada al área administrativa."
}
