package erpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/colegio-ws/gestor/pkg/models"
	"github.com/colegio-ws/gestor/pkg/version"
	"github.com/colegio-ws/gestor/pkg/webhook"
)

// Server is the ERP REST API.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	store      *Store
	webhooks   *webhook.Client // nil disables outbound delivery
}

// NewServer creates the ERP server. webhooks may be nil (delivery disabled,
// used by read-only tests).
func NewServer(store *Store, webhooks *webhook.Client) *Server {
	e := echo.New()
	s := &Server{echo: e, store: store, webhooks: webhooks}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(1 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/students/:id", s.getStudentHandler)
	v1.GET("/students/:id/installments", s.studentInstallmentsHandler)
	v1.GET("/guardians/by-handle/:handle", s.guardianByHandleHandler)
	v1.GET("/installments", s.queryInstallmentsHandler)
	v1.GET("/installments/:id", s.getInstallmentHandler)
	v1.POST("/payments/confirm", s.confirmPaymentHandler)
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the echo handler for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": version.Full(),
	})
}

func (s *Server) getStudentHandler(c *echo.Context) error {
	student, err := s.store.Student(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "student not found"})
	}
	view := models.StudentView{Student: *student}
	if embedsGuardians(c.QueryParam("embed")) {
		view.Guardians = s.store.StudentGuardians(student.ID)
	}
	return c.JSON(http.StatusOK, view)
}

func embedsGuardians(embed string) bool {
	for _, part := range strings.Split(embed, ",") {
		if strings.TrimSpace(part) == "guardians" {
			return true
		}
	}
	return false
}

func (s *Server) studentInstallmentsHandler(c *echo.Context) error {
	if _, err := s.store.Student(c.Param("id")); err != nil {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "student not found"})
	}
	state := models.InstallmentState(c.QueryParam("state"))
	installments := s.store.StudentInstallments(c.Param("id"), state)
	return c.JSON(http.StatusOK, installments)
}

func (s *Server) guardianByHandleHandler(c *echo.Context) error {
	view, err := s.store.GuardianByHandle(c.Param("handle"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "guardian not found"})
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) getInstallmentHandler(c *echo.Context) error {
	inst, err := s.store.Installment(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "installment not found"})
	}

	view := models.InstallmentView{Installment: *inst}
	for _, part := range strings.Split(c.QueryParam("embed"), ",") {
		switch strings.TrimSpace(part) {
		case "student":
			if st, err := s.store.Student(inst.StudentID); err == nil {
				view.Student = st
			}
		case "plan":
			if p, err := s.store.Plan(inst.PlanID); err == nil {
				view.Plan = p
			}
		}
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) queryInstallmentsHandler(c *echo.Context) error {
	state := models.InstallmentState(c.QueryParam("state"))

	var dueFrom, dueTo time.Time
	var err error
	if v := c.QueryParam("due_from"); v != "" {
		if dueFrom, err = time.Parse("2006-01-02", v); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "invalid due_from"})
		}
	}
	if v := c.QueryParam("due_to"); v != "" {
		if dueTo, err = time.Parse("2006-01-02", v); err != nil {
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "invalid due_to"})
		}
	}
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "invalid limit"})
		}
	}

	return c.JSON(http.StatusOK, s.store.QueryInstallments(state, dueFrom, dueTo, limit))
}

// confirmPaymentRequest is the body of POST /api/v1/payments/confirm.
type confirmPaymentRequest struct {
	InstallmentID string  `json:"installment_id"`
	Amount        float64 `json:"amount"`
	Method        string  `json:"method"`
	Reference     string  `json:"reference"`
}

func (s *Server) confirmPaymentHandler(c *echo.Context) error {
	var req confirmPaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "invalid request body"})
	}
	if req.InstallmentID == "" {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "installment_id is required"})
	}
	if req.Amount <= 0 {
		return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "amount must be positive"})
	}
	if req.Method == "" {
		req.Method = "transferencia"
	}

	payment, inst, err := s.store.ConfirmPayment(req.InstallmentID, req.Amount, req.Method, req.Reference)
	switch {
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]any{"error": "installment not found"})
	case errors.Is(err, ErrAlreadyPaid):
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "AlreadyPaid", "message": "installment is already paid"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}

	// Non-blocking webhook delivery; the retry loop owns its own lifetime.
	if s.webhooks != nil {
		go s.webhooks.SendPaymentConfirmed(context.Background(), webhook.PaymentConfirmedData{
			InstallmentID: inst.ID,
			StudentID:     inst.StudentID,
			Amount:        payment.Amount,
			PaidAt:        payment.PaidAt.Format(time.RFC3339),
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"message":     "payment confirmed",
		"payment":     payment,
		"installment": inst,
	})
}
