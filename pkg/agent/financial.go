package agent

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/models"
)

// NewFinancialSpecialist builds the financial specialist: account status,
// payment links, and payment-claim registration.
func NewFinancialSpecialist(model llm.Client, toolClient ToolCaller) Specialist {
	return &subgraph{
		kind: SpecialistFinancial,
		system: SpecialistSystem(SpecialistFinancial,
			"Resolvés consultas de pagos y cuotas.",
			[]string{
				"consultar_estado_cuenta - Obtiene alumnos, cuotas pendientes y deuda total del responsable (param: whatsapp)",
				"obtener_link_pago - Genera el link de pago de una cuota (param: cuota_id)",
				"registrar_confirmacion_pago - Registra que el responsable dice haber pagado (params: cuota_id, whatsapp)",
			}),
		toolNames: map[string]bool{
			"consultar_estado_cuenta":     true,
			"obtener_link_pago":           true,
			"registrar_confirmacion_pago": true,
		},
		llm:        model,
		toolClient: toolClient,
		defaultPlan: func(st *State) SubPlan {
			return SubPlan{
				Specialist: SpecialistFinancial,
				Actions: []ActionPlan{{
					Tool:        "consultar_estado_cuenta",
					Params:      map[string]any{"whatsapp": st.Handle},
					Description: "Consultar estado de cuenta del responsable",
				}},
				Reasoning: "Plan por defecto ante error de planificación",
			}
		},
		summarize: summarizeFinancial,
		logger:    slog.Default().With("component", "specialist-financiero"),
	}
}

// summarizeFinancial renders the account status block: per-student pending
// installments plus the formatted total debt.
func summarizeFinancial(_ *State, results []ActionResult) string {
	var b strings.Builder

	if account := resultFor(results, "consultar_estado_cuenta"); account != nil {
		if found, _ := account["found"].(bool); !found {
			b.WriteString("No encontré tu número registrado en el sistema. 🤔 " +
				"Contactá a administración para verificar tus datos.\n")
		} else {
			b.WriteString("📋 Estado de cuenta:\n\n")
			if students, ok := account["alumnos"].([]any); ok {
				for _, raw := range students {
					student := asMap(raw)
					fmt.Fprintf(&b, "👤 %s (%s):\n", student["nombre"], student["grado"])
					if cuotas, ok := student["cuotas_pendientes"].([]any); ok {
						for _, rawCuota := range cuotas {
							cuota := asMap(rawCuota)
							amount, _ := cuota["monto"].(float64)
							fmt.Fprintf(&b, "  • Cuota %v: %s (vence %v)\n",
								cuota["numero"], models.FormatAmount(amount), cuota["vencimiento"])
						}
					}
					b.WriteString("\n")
				}
			}
			if debt, ok := account["deuda_total"].(float64); ok {
				if debt > 0 {
					fmt.Fprintf(&b, "💰 Total adeudado: %s\n", models.FormatAmount(debt))
				} else {
					b.WriteString("✅ ¡Estás al día! No hay cuotas pendientes. 🎉\n")
				}
			}
		}
	}

	if link := resultFor(results, "obtener_link_pago"); link != nil {
		if found, _ := link["found"].(bool); found {
			fmt.Fprintf(&b, "🔗 Link de pago: %v\n", link["link_pago"])
		}
	}

	if claim := resultFor(results, "registrar_confirmacion_pago"); claim != nil {
		if registered, _ := claim["registered"].(bool); registered {
			b.WriteString("✅ Registré tu aviso de pago; queda pendiente de validación.\n")
		}
	}

	if b.Len() == 0 {
		return "Consulta financiera procesada."
	}
	return strings.TrimRight(b.String(), "\n")
}
