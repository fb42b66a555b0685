package tools

import "context"

// Institutional knowledge tools. The content is static school information;
// they live in the admin category because the administrative office owns it.

var schoolInfo = struct {
	hours       map[string]any
	calendar    map[string]any
	authorities map[string]any
	contact     map[string]any
	general     map[string]any
}{
	hours: map[string]any{
		"lunes_a_viernes": "07:30 a 17:00",
		"administracion":  "08:00 a 14:00",
		"atencion_padres": "09:00 a 12:00 (con turno previo)",
	},
	calendar: map[string]any{
		"inicio_clases":       "2026-03-02",
		"receso_invernal":     "2026-07-20 al 2026-07-31",
		"fin_clases":          "2026-12-18",
		"vencimiento_cuotas":  "día 15 de cada mes",
		"reuniones_de_padres": "primer viernes de cada mes",
	},
	authorities: map[string]any{
		"direccion_general":    "Lic. Marta Domínguez",
		"direccion_primaria":   "Prof. Carlos Ruiz",
		"direccion_secundaria": "Prof. Silvia Paredes",
		"administracion":       "Cdor. Jorge Benítez",
	},
	contact: map[string]any{
		"telefono":  "+54 11 4555-0100",
		"email":     "administracion@colegio.edu.ar",
		"direccion": "Av. Rivadavia 4500, CABA",
		"web":       "https://colegio.edu.ar",
	},
	general: map[string]any{
		"niveles":     []any{"inicial", "primaria", "secundaria"},
		"idiomas":     []any{"inglés intensivo", "portugués optativo"},
		"comedor":     true,
		"transporte":  true,
		"descripcion": "Colegio bilingüe laico con jornada extendida.",
	},
}

// RegisterInfoTools registers the institutional information tools.
func RegisterInfoTools(reg *Registry) {
	static := func(name, description string, payload map[string]any) {
		reg.Register(name, description, CategoryAdmin, nil,
			func(context.Context, map[string]any) (any, error) { return payload, nil },
			payload,
		)
	}

	static("horarios", "Informa los horarios del colegio y de atención administrativa.", schoolInfo.hours)
	static("calendario", "Informa el calendario escolar y las fechas de vencimiento de cuotas.", schoolInfo.calendar)
	static("autoridades", "Informa las autoridades del colegio por nivel.", schoolInfo.authorities)
	static("contacto", "Informa teléfonos, email y dirección del colegio.", schoolInfo.contact)
	static("info_general", "Información general institucional: niveles, servicios y propuesta.", schoolInfo.general)
}
