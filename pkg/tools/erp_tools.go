package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/colegio-ws/gestor/pkg/models"
)

// mockAccountStatus is the canned payload for the account-status tool: a
// guardian with two students and pending installments.
var mockAccountStatus = map[string]any{
	"found":       true,
	"responsable": "María García",
	"alumnos": []any{
		map[string]any{
			"id":     "mock-alumno-001",
			"nombre": "Juan Pérez García",
			"grado":  "3ro A",
			"cuotas_pendientes": []any{
				map[string]any{"id": "c003", "numero": 3, "monto": 45000.0, "vencimiento": "2026-03-15"},
				map[string]any{"id": "c004", "numero": 4, "monto": 45000.0, "vencimiento": "2026-04-15"},
			},
		},
		map[string]any{
			"id":     "mock-alumno-002",
			"nombre": "Ana Pérez García",
			"grado":  "1ro B",
			"cuotas_pendientes": []any{
				map[string]any{"id": "c103", "numero": 3, "monto": 42000.0, "vencimiento": "2026-03-15"},
			},
		},
	},
	"deuda_total": 132000.0,
}

// RegisterERPTools registers the erp category: account status, payment
// links, payment claims, and student lookup against the ERP service.
func RegisterERPTools(reg *Registry, erpURL string) {
	erp := newUpstream(erpURL)

	reg.Register(
		"consultar_estado_cuenta",
		"Consulta el estado de cuenta de un responsable por su WhatsApp. Retorna alumnos, cuotas pendientes y deuda total.",
		CategoryERP,
		[]Param{{Name: "whatsapp", Type: TypeString}},
		func(ctx context.Context, args map[string]any) (any, error) {
			handle := models.NormalizeHandle(StringArg(args, "whatsapp", ""))
			if handle == "" {
				return nil, fmt.Errorf("whatsapp is required")
			}

			var guardian models.GuardianView
			if err := erp.getJSON(ctx, "/api/v1/guardians/by-handle/"+handle, &guardian); err != nil {
				if errors.Is(err, errNotFound) {
					return map[string]any{"found": false}, nil
				}
				return nil, err
			}

			students := make([]map[string]any, 0, len(guardian.Students))
			var totalDebt float64
			for _, student := range guardian.Students {
				var pending []models.InstallmentView
				path := fmt.Sprintf("/api/v1/students/%s/installments?state=%s", student.ID, models.InstallmentPending)
				if err := erp.getJSON(ctx, path, &pending); err != nil && !errors.Is(err, errNotFound) {
					return nil, err
				}

				cuotas := make([]map[string]any, 0, len(pending))
				for _, inst := range pending {
					totalDebt += inst.Amount
					cuotas = append(cuotas, map[string]any{
						"id":          inst.ID,
						"numero":      inst.Number,
						"monto":       inst.Amount,
						"vencimiento": inst.DueDate.Format("2006-01-02"),
						"link_pago":   inst.PayLink,
					})
				}
				students = append(students, map[string]any{
					"id":                student.ID,
					"nombre":            student.Name,
					"grado":             student.Grade,
					"cuotas_pendientes": cuotas,
				})
			}

			return map[string]any{
				"found":       true,
				"responsable": guardian.Name,
				"alumnos":     students,
				"deuda_total": totalDebt,
			}, nil
		},
		mockAccountStatus,
	)

	reg.Register(
		"obtener_link_pago",
		"Obtiene el link de pago de una cuota específica.",
		CategoryERP,
		[]Param{{Name: "cuota_id", Type: TypeString}},
		func(ctx context.Context, args map[string]any) (any, error) {
			installmentID := StringArg(args, "cuota_id", "")
			if installmentID == "" {
				return nil, fmt.Errorf("cuota_id is required")
			}
			var inst models.InstallmentView
			if err := erp.getJSON(ctx, "/api/v1/installments/"+installmentID, &inst); err != nil {
				if errors.Is(err, errNotFound) {
					return map[string]any{"found": false}, nil
				}
				return nil, err
			}
			return map[string]any{
				"found":       true,
				"cuota_id":    inst.ID,
				"monto":       inst.Amount,
				"vencimiento": inst.DueDate.Format("2006-01-02"),
				"link_pago":   inst.PayLink,
			}, nil
		},
		map[string]any{
			"found":       true,
			"cuota_id":    "c003",
			"monto":       45000.0,
			"vencimiento": "2026-03-15",
			"link_pago":   "https://pagos.colegio.edu/c003",
		},
	)

	reg.Register(
		"registrar_confirmacion_pago",
		"Registra que el responsable confirmó haber realizado un pago; queda pendiente de validación.",
		CategoryERP,
		[]Param{
			{Name: "cuota_id", Type: TypeString},
			{Name: "whatsapp", Type: TypeString},
		},
		func(ctx context.Context, args map[string]any) (any, error) {
			installmentID := StringArg(args, "cuota_id", "")
			if installmentID == "" {
				return nil, fmt.Errorf("cuota_id is required")
			}
			// A claim is not a confirmation: the handler does not call the
			// ERP confirm endpoint and does not store the claim; it only
			// echoes it back as registered.
			return map[string]any{
				"registered": true,
				"cuota_id":   installmentID,
				"message":    "Pago registrado, pendiente de validación",
			}, nil
		},
		map[string]any{
			"registered": true,
			"cuota_id":   "mock-cuota-003",
			"message":    "Pago registrado, pendiente de validación",
		},
	)

	reg.Register(
		"buscar_alumno",
		"Busca información de un alumno por su ID.",
		CategoryERP,
		[]Param{{Name: "alumno_id", Type: TypeString}},
		func(ctx context.Context, args map[string]any) (any, error) {
			studentID := StringArg(args, "alumno_id", "")
			if studentID == "" {
				return nil, fmt.Errorf("alumno_id is required")
			}
			var student models.StudentView
			if err := erp.getJSON(ctx, "/api/v1/students/"+studentID, &student); err != nil {
				if errors.Is(err, errNotFound) {
					return map[string]any{"found": false}, nil
				}
				return nil, err
			}
			return map[string]any{"found": true, "alumno": student}, nil
		},
		map[string]any{
			"found": true,
			"alumno": map[string]any{
				"id":     "mock-alumno-001",
				"nombre": "Juan Pérez García",
				"grado":  "3ro A",
			},
		},
	)
}
