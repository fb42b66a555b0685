package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/colegio-ws/gestor/pkg/models"
)

// RegisterNotifTools registers the notif category: outbound notification
// dispatch and delivery status, backed by the orchestrator.
func RegisterNotifTools(reg *Registry, gestorURL string) {
	gestor := newUpstream(gestorURL)

	reg.Register(
		"enviar_notificacion",
		"Envía un mensaje de WhatsApp a un responsable a través del orquestador.",
		CategoryNotif,
		[]Param{
			{Name: "whatsapp", Type: TypeString},
			{Name: "mensaje", Type: TypeString},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			handle := models.NormalizeHandle(StringArg(args, "whatsapp", ""))
			message := StringArg(args, "mensaje", "")
			if handle == "" || message == "" {
				return nil, fmt.Errorf("whatsapp and mensaje are required")
			}
			var result map[string]any
			err := gestor.postJSON(ctx, "/api/v1/notifications/send", map[string]any{
				"whatsapp": handle,
				"mensaje":  message,
			}, &result)
			if err != nil {
				return nil, err
			}
			return result, nil
		},
		map[string]any{"success": true, "simulated": true, "message_id": "sim_mock"},
	)

	reg.Register(
		"estado_notificaciones",
		"Consulta qué notificaciones se enviaron para una cuota.",
		CategoryNotif,
		[]Param{{Name: "cuota_id", Type: TypeString}},
		func(ctx context.Context, args map[string]any) (any, error) {
			installmentID := StringArg(args, "cuota_id", "")
			if installmentID == "" {
				return nil, fmt.Errorf("cuota_id is required")
			}
			var sent []models.NotificationSent
			if err := gestor.getJSON(ctx, "/api/v1/notifications?cuota_id="+installmentID, &sent); err != nil {
				if errors.Is(err, errNotFound) {
					return map[string]any{"cuota_id": installmentID, "notificaciones": []any{}}, nil
				}
				return nil, err
			}
			return map[string]any{"cuota_id": installmentID, "notificaciones": sent}, nil
		},
		map[string]any{
			"cuota_id": "mock-cuota-003",
			"notificaciones": []any{
				map[string]any{"tipo": "recordatorio_d7", "leida": true},
			},
		},
	)
}
