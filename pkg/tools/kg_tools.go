package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/colegio-ws/gestor/pkg/models"
)

// RegisterKGTools registers the kg category: payer-behavior lookups served by
// the insights service.
func RegisterKGTools(reg *Registry, graphURL string) {
	graph := newUpstream(graphURL)

	reg.Register(
		"perfil_pagador",
		"Obtiene el perfil de pagador de un responsable (puntual, ocasional, moroso, nuevo).",
		CategoryKG,
		[]Param{{Name: "whatsapp", Type: TypeString}},
		func(ctx context.Context, args map[string]any) (any, error) {
			handle := models.NormalizeHandle(StringArg(args, "whatsapp", ""))
			if handle == "" {
				return nil, fmt.Errorf("whatsapp is required")
			}
			var profile map[string]any
			if err := graph.getJSON(ctx, "/api/v1/reports/guardians/"+handle+"/profile", &profile); err != nil {
				if errors.Is(err, errNotFound) {
					return map[string]any{"found": false}, nil
				}
				return nil, err
			}
			return profile, nil
		},
		map[string]any{
			"found":         true,
			"payer_profile": "ocasional",
			"risk_level":    "medium",
			"patterns":      []any{"paga después del primer recordatorio"},
		},
	)

	reg.Register(
		"riesgo_mora",
		"Obtiene el score de riesgo de mora de un responsable.",
		CategoryKG,
		[]Param{{Name: "whatsapp", Type: TypeString}},
		func(ctx context.Context, args map[string]any) (any, error) {
			handle := models.NormalizeHandle(StringArg(args, "whatsapp", ""))
			if handle == "" {
				return nil, fmt.Errorf("whatsapp is required")
			}
			var risk map[string]any
			if err := graph.getJSON(ctx, "/api/v1/reports/risk/"+handle, &risk); err != nil {
				if errors.Is(err, errNotFound) {
					return map[string]any{"found": false}, nil
				}
				return nil, err
			}
			return risk, nil
		},
		map[string]any{
			"found":      true,
			"risk_score": 0.35,
			"risk_level": "medium",
		},
	)
}
