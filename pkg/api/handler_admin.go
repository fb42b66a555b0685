package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/colegio-ws/gestor/pkg/agent"
	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/masking"
	"github.com/colegio-ws/gestor/pkg/models"
	"github.com/colegio-ws/gestor/pkg/services"
)

func (s *Server) listTicketsHandler(c *echo.Context) error {
	state := models.TicketState(c.QueryParam("state"))
	tickets, err := s.tickets.List(c.Request().Context(), state, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "failed to list tickets"})
	}
	return c.JSON(http.StatusOK, map[string]any{"tickets": tickets, "count": len(tickets)})
}

// createTicketRequest is the body the tool server posts.
type createTicketRequest struct {
	Category    models.TicketCategory `json:"categoria"`
	Reason      string                `json:"motivo"`
	PhoneNumber string                `json:"phone_number"`
	Priority    models.TicketPriority `json:"prioridad"`
	StudentID   string                `json:"alumno_id"`
	GuardianID  string                `json:"responsable_id"`
}

func (s *Server) createTicketHandler(c *echo.Context) error {
	var req createTicketRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "invalid body"})
	}

	ticket := models.Ticket{
		StudentID:  req.StudentID,
		GuardianID: req.GuardianID,
		Category:   req.Category,
		Reason:     req.Reason,
		Priority:   req.Priority,
		Context:    map[string]any{"phone_number": models.NormalizeHandle(req.PhoneNumber)},
	}

	created, err := s.tickets.Create(c.Request().Context(), ticket)
	if err != nil {
		var validation *services.ValidationError
		if errors.As(err, &validation) {
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": validation.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "failed to create ticket"})
	}
	return c.JSON(http.StatusOK, created)
}

func (s *Server) getTicketHandler(c *echo.Context) error {
	ticket, err := s.tickets.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, services.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "ticket not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "failed to load ticket"})
	}
	return c.JSON(http.StatusOK, ticket)
}

type replyTicketRequest struct {
	Reply string `json:"respuesta"`
}

// replyTicketHandler resolves a ticket with the admin's reply, reformulates
// it in user-friendly language, and delivers it over WhatsApp.
func (s *Server) replyTicketHandler(c *echo.Context) error {
	var req replyTicketRequest
	if err := c.Bind(&req); err != nil || req.Reply == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "respuesta is required"})
	}

	ticket, err := s.tickets.Resolve(c.Request().Context(), c.Param("id"), req.Reply)
	switch {
	case errors.Is(err, services.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]any{"error": "ticket not found"})
	case errors.Is(err, services.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, map[string]any{"error": "ticket already resolved"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "failed to resolve ticket"})
	}

	handle, _ := ticket.Context["phone_number"].(string)
	if handle == "" {
		slog.Warn("Resolved ticket has no reachable handle", "ticket", ticket.ID)
		return c.JSON(http.StatusOK, map[string]any{"ticket": ticket, "delivered": false})
	}

	reply := req.Reply
	s.dispatcher.Enqueue("ticket-reply:"+ticket.ID, func(ctx context.Context) {
		message := s.reformulateReply(ctx, reply)
		if result := s.messenger.SendText(ctx, handle, message, ""); !result.Success {
			slog.Error("Failed to deliver ticket reply",
				"ticket", ticket.ID, "handle", masking.MaskHandle(handle), "error", result.Error)
			return
		}
		if _, err := s.interactions.Record(ctx, models.Interaction{
			Handle: handle,
			Kind:   models.InteractionAdminReply,
			Text:   message,
			Agent:  "admin",
			Extras: map[string]any{"ticket_id": ticket.ID},
		}); err != nil {
			slog.Error("Failed to record admin reply", "ticket", ticket.ID, "error", err)
		}
	})

	return c.JSON(http.StatusOK, map[string]any{"ticket": ticket, "delivered": true})
}

// reformulateReply turns back-office wording into a WhatsApp-friendly
// message. Falls back to the original text when the model is unavailable.
func (s *Server) reformulateReply(ctx context.Context, adminReply string) string {
	if s.model == nil {
		return adminReply
	}
	resp, err := s.model.Generate(ctx, &llm.Request{
		Node:   "reformulador_admin",
		Kind:   "synthesis",
		System: agent.SynthesisSystem,
		Prompt: agent.AdminReplyReformulation(adminReply),
	})
	if err != nil || resp.Text == "" {
		slog.Warn("Admin reply reformulation failed, sending original", "error", err)
		return adminReply
	}
	return resp.Text
}

func (s *Server) listInteractionsHandler(c *echo.Context) error {
	handle := c.QueryParam("whatsapp")
	if handle == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "whatsapp is required"})
	}
	interactions, err := s.interactions.ListByHandle(c.Request().Context(), handle, 0)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "failed to list interactions"})
	}
	return c.JSON(http.StatusOK, map[string]any{"interactions": interactions, "count": len(interactions)})
}

func (s *Server) listNotificationsHandler(c *echo.Context) error {
	installmentID := c.QueryParam("cuota_id")
	if installmentID == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "cuota_id is required"})
	}
	sent, err := s.notifier.ListByInstallment(c.Request().Context(), installmentID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "failed to list notifications"})
	}
	return c.JSON(http.StatusOK, sent)
}

type sendNotificationRequest struct {
	Handle  string `json:"whatsapp"`
	Message string `json:"mensaje"`
}

// sendNotificationHandler is the direct-send path used by the notif tools.
func (s *Server) sendNotificationHandler(c *echo.Context) error {
	var req sendNotificationRequest
	if err := c.Bind(&req); err != nil || req.Handle == "" || req.Message == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "whatsapp and mensaje are required"})
	}
	result := s.messenger.SendText(c.Request().Context(), models.NormalizeHandle(req.Handle), req.Message, "")
	if !result.Success {
		return c.JSON(http.StatusBadGateway, result)
	}
	return c.JSON(http.StatusOK, result)
}

type resyncRequest struct {
	Handle string `json:"whatsapp"`
}

// resyncMirrorHandler pulls one guardian's ERP state into the mirror. Used
// to backfill webhook gaps and to onboard handles seen before their webhook.
func (s *Server) resyncMirrorHandler(c *echo.Context) error {
	if s.erpClient == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"error": "erp client not configured"})
	}
	var req resyncRequest
	if err := c.Bind(&req); err != nil || req.Handle == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "whatsapp is required"})
	}
	if err := s.mirror.Resync(c.Request().Context(), s.erpClient, req.Handle); err != nil {
		slog.Error("Mirror resync failed", "handle", masking.MaskHandle(req.Handle), "error", err)
		return c.JSON(http.StatusBadGateway, map[string]any{"error": "resync failed"})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "synced"})
}

func (s *Server) getTokenUsageHandler(c *echo.Context) error {
	record, err := s.tokenUsage.Get(c.Request().Context(), c.Param("query_id"))
	if errors.Is(err, services.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "query not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "failed to load token usage"})
	}
	return c.JSON(http.StatusOK, record)
}

func (s *Server) tokenUsageTotalsHandler(c *echo.Context) error {
	handle := c.QueryParam("whatsapp")
	if handle == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "whatsapp is required"})
	}
	totals, err := s.tokenUsage.TotalsByHandle(c.Request().Context(), handle)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "failed to aggregate token usage"})
	}
	return c.JSON(http.StatusOK, totals)
}
