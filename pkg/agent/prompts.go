package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WelcomeMessage is the greeting reply. It enumerates the service areas so a
// first-time user knows what to ask.
const WelcomeMessage = "¡Hola! 👋 Soy el asistente del Colegio. ¿En qué puedo ayudarte?\n\n" +
	"Puedo informarte sobre:\n" +
	"• Tu estado de cuenta y cuotas pendientes\n" +
	"• Links de pago y vencimientos\n" +
	"• Trámites administrativos (planes de pago, reclamos)\n" +
	"• Información institucional (horarios, contacto, autoridades)"

// ApologyMessage is the generic fallback when the runtime cannot produce a
// plan. It never exposes technical detail.
const ApologyMessage = "Disculpá, tuve un problema procesando tu consulta. 😅\n\n" +
	"¿Podés intentar de nuevo? Si el problema persiste, escribí \"hablar con alguien\" " +
	"para que te atienda una persona."

// ManagerSystem is the manager's system prompt.
const ManagerSystem = "Sos el coordinador del asistente de WhatsApp de un colegio. " +
	"Tu trabajo es interpretar el mensaje de un padre/responsable y armar un plan estratégico " +
	"delegando en especialistas. Respondés SOLO con JSON válido, sin markdown."

// Manager builds the manager prompt. Prior reports are included when
// replanning so the manager can adjust course.
func Manager(st *State) string {
	var b strings.Builder

	fmt.Fprintf(&b, "MENSAJE DEL RESPONSABLE: %s\n\n", st.Message)
	b.WriteString(UserContextSummary(st.User))

	if len(st.Reports) > 0 {
		b.WriteString("\nREPORTES DE INTENTOS ANTERIORES (replanificación):\n")
		for _, report := range st.Reports {
			encoded, _ := json.Marshal(report)
			fmt.Fprintf(&b, "- %s\n", encoded)
		}
		b.WriteString("Ajustá el plan teniendo en cuenta los fallos anteriores.\n")
	}

	b.WriteString(`
Intenciones posibles: financial_query, payment_request, payment_claim, complaint, withdrawal_request, plan_request, institutional_query, greeting, other.

Especialistas disponibles:
- financiero: estado de cuenta, links de pago, confirmaciones de pago
- administrativo: tickets de escalamiento (plan de pagos, reclamos, bajas, consultas)
- institucional: horarios, calendario, autoridades, contacto, información general

Para un saludo simple usá intent "greeting" y steps vacío.

Respondé SOLO con este JSON:
{"intent": "...", "confidence": 0.0, "steps": [{"specialist": "financiero|administrativo|institucional", "goal": "meta concreta", "params": {}, "priority": 1}], "requires_human": false, "reasoning": "breve"}`)

	return b.String()
}

// UserContextSummary renders the loaded guardian context for prompts.
func UserContextSummary(user *UserContext) string {
	if user == nil {
		return "CONTEXTO: responsable no identificado en el sistema.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "CONTEXTO: responsable %s.\nAlumnos a cargo:\n", user.Name)
	for _, student := range user.Students {
		fmt.Fprintf(&b, "- %s (%s), id %s\n", student.Name, student.Grade, student.ID)
	}
	return b.String()
}

// SpecialistSystem builds a specialist's system prompt from its identity and
// tool list.
func SpecialistSystem(kind SpecialistKind, description string, toolLines []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sos el Especialista %s del colegio. %s\n\nHerramientas disponibles:\n", kind, description)
	for i, line := range toolLines {
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}
	b.WriteString("\nRespondés SOLO con JSON válido, sin markdown.")
	return b.String()
}

// SpecialistPlan builds the tactical-planning prompt for a specialist.
func SpecialistPlan(st *State, step PlanStep) string {
	params, _ := json.Marshal(step.Params)
	return fmt.Sprintf(`META: %s
PARÁMETROS: %s
WHATSAPP DEL RESPONSABLE: %s

%s
Planificá las acciones mínimas para cumplir la meta.

Respondé SOLO con este JSON:
{"actions": [{"tool": "nombre_herramienta", "params": {}, "description": "qué hace"}], "reasoning": "por qué"}`,
		step.Goal, params, st.Handle, UserContextSummary(st.User))
}

// SynthesisSystem is the synthesizer's system prompt. The synthesizer never
// surfaces technical detail to the user.
const SynthesisSystem = "Sos el asistente de WhatsApp de un colegio. Redactás UNA respuesta final " +
	"empática y concisa (máximo 3 párrafos cortos) a partir de los reportes de los especialistas. " +
	"Nunca menciones errores técnicos, herramientas ni sistemas internos: si algo falló, " +
	"decí que el caso quedó en revisión manual y que lo van a contactar. " +
	"Formateá montos con separador de miles (ej: $45,000) y usá emojis con moderación."

// Synthesis builds the synthesizer prompt from the accumulated reports.
func Synthesis(st *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MENSAJE ORIGINAL: %s\n\nREPORTES DE LOS ESPECIALISTAS:\n", st.Message)
	for _, report := range st.Reports {
		status := "ok"
		if !report.Success {
			status = "falló (reformulalo como revisión manual, sin detalles técnicos)"
		}
		fmt.Fprintf(&b, "\n[%s — %s]\n%s\n", report.Specialist, status, report.Summary)
		if report.Success && len(report.Data) > 0 {
			encoded, _ := json.Marshal(report.Data)
			fmt.Fprintf(&b, "Datos: %s\n", encoded)
		}
	}
	b.WriteString("\nRedactá la respuesta final para WhatsApp:")
	return b.String()
}

// AdminReplyReformulation asks the LLM to turn a back-office reply into a
// WhatsApp-friendly message.
func AdminReplyReformulation(adminReply string) string {
	return fmt.Sprintf(`Reformulá esta respuesta técnica del administrador en lenguaje amigable para WhatsApp (máximo 3 párrafos cortos, emojis con moderación, terminá con un próximo paso claro):

%s

Respuesta reformulada:`, adminReply)
}
