package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/colegio-ws/gestor/pkg/models"
)

// paymentConfirmedEvent is the reliable webhook payload from the ERP.
type paymentConfirmedEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Data      struct {
		InstallmentID string  `json:"installment_id"`
		StudentID     string  `json:"student_id"`
		Amount        float64 `json:"amount"`
		PaidAt        string  `json:"paid_at"`
	} `json:"data"`
}

// erpPaymentConfirmedHandler updates the mirror and enqueues the outbound
// confirmation. Duplicate deliveries are tolerated: the mirror update is an
// upsert and the notification deduplicates.
func (s *Server) erpPaymentConfirmedHandler(c *echo.Context) error {
	var event paymentConfirmedEvent
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "invalid payload"})
	}
	if event.Data.InstallmentID == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "installment_id is required"})
	}

	paidAt, err := time.Parse(time.RFC3339, event.Data.PaidAt)
	if err != nil {
		paidAt = time.Now().UTC()
	}

	if err := s.mirror.MarkInstallmentPaid(c.Request().Context(),
		event.Data.InstallmentID, event.Data.StudentID, event.Data.Amount, paidAt); err != nil {
		slog.Error("Failed to mirror payment confirmation",
			"installment", event.Data.InstallmentID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "mirror update failed"})
	}

	data := event.Data
	s.dispatcher.Enqueue("payment-confirmation:"+data.InstallmentID, func(ctx context.Context) {
		if _, err := s.notifier.SendPaymentConfirmation(ctx, data.InstallmentID, data.StudentID, data.Amount); err != nil {
			slog.Warn("Payment confirmation not sent",
				"installment", data.InstallmentID, "error", err)
		}
	})

	return c.JSON(http.StatusOK, map[string]any{"status": "processed"})
}

// erpInstallmentGeneratedHandler upserts a new installment mirror row.
func (s *Server) erpInstallmentGeneratedHandler(c *echo.Context) error {
	var inst models.Installment
	if err := c.Bind(&inst); err != nil || inst.ID == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "invalid installment"})
	}
	if inst.State == "" {
		inst.State = models.InstallmentPending
	}
	if err := s.mirror.UpsertInstallment(c.Request().Context(), inst); err != nil {
		slog.Error("Failed to upsert installment mirror", "installment", inst.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "mirror update failed"})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "processed"})
}

// erpStudentUpdatedHandler upserts a student mirror row, optionally linking
// guardians when the payload embeds them.
func (s *Server) erpStudentUpdatedHandler(c *echo.Context) error {
	var view models.StudentView
	if err := c.Bind(&view); err != nil || view.ID == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "invalid student"})
	}
	ctx := c.Request().Context()
	if err := s.mirror.UpsertStudent(ctx, view.Student); err != nil {
		slog.Error("Failed to upsert student mirror", "student", view.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "mirror update failed"})
	}
	for _, guardian := range view.Guardians {
		if err := s.mirror.UpsertGuardian(ctx, guardian); err != nil {
			continue
		}
		_ = s.mirror.LinkGuardianStudent(ctx, guardian.ID, view.ID)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "processed"})
}

// erpGuardianUpdatedHandler upserts a guardian mirror row, optionally
// linking students when the payload embeds them.
func (s *Server) erpGuardianUpdatedHandler(c *echo.Context) error {
	var view models.GuardianView
	if err := c.Bind(&view); err != nil || view.ID == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "invalid guardian"})
	}
	ctx := c.Request().Context()
	if err := s.mirror.UpsertGuardian(ctx, view.Guardian); err != nil {
		slog.Error("Failed to upsert guardian mirror", "guardian", view.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "mirror update failed"})
	}
	for _, student := range view.Students {
		if err := s.mirror.UpsertStudent(ctx, student); err != nil {
			continue
		}
		_ = s.mirror.LinkGuardianStudent(ctx, view.ID, student.ID)
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "processed"})
}
