package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/colegio-ws/gestor/pkg/llm"
)

// NewInstitutionalSpecialist builds the institutional specialist: static
// school information (hours, calendar, authorities, contact).
func NewInstitutionalSpecialist(model llm.Client, toolClient ToolCaller) Specialist {
	return &subgraph{
		kind: SpecialistInstitutional,
		system: SpecialistSystem(SpecialistInstitutional,
			"Respondés consultas de información institucional.",
			[]string{
				"horarios - Horarios del colegio y de atención administrativa",
				"calendario - Calendario escolar y vencimientos",
				"autoridades - Autoridades del colegio por nivel",
				"contacto - Teléfonos, email y dirección",
				"info_general - Información general institucional",
			}),
		toolNames: map[string]bool{
			"horarios":     true,
			"calendario":   true,
			"autoridades":  true,
			"contacto":     true,
			"info_general": true,
		},
		llm:        model,
		toolClient: toolClient,
		defaultPlan: func(_ *State) SubPlan {
			return SubPlan{
				Specialist: SpecialistInstitutional,
				Actions: []ActionPlan{{
					Tool:        "info_general",
					Description: "Información general del colegio",
				}},
				Reasoning: "Plan por defecto ante error de planificación",
			}
		},
		summarize: summarizeInstitutional,
		logger:    slog.Default().With("component", "specialist-institucional"),
	}
}

func summarizeInstitutional(_ *State, results []ActionResult) string {
	titles := map[string]string{
		"horarios":     "🕐 Horarios",
		"calendario":   "📅 Calendario",
		"autoridades":  "👥 Autoridades",
		"contacto":     "📞 Contacto",
		"info_general": "🏫 El colegio",
	}

	var b strings.Builder
	for _, r := range results {
		if !r.Success {
			continue
		}
		data := asMap(r.Data)
		if data == nil {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", titles[r.Tool])

		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  • %s: %s\n", strings.ReplaceAll(k, "_", " "), renderValue(data[k]))
		}
		b.WriteString("\n")
	}

	if b.Len() == 0 {
		return "Consulta institucional procesada."
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		if val {
			return "sí"
		}
		return "no"
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ", ")
	default:
		encoded, _ := json.Marshal(v)
		return string(encoded)
	}
}
