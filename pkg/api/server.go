// Package api implements the orchestrator's HTTP surface: the WhatsApp and
// ERP webhook fan-in plus the back-office admin endpoints.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/colegio-ws/gestor/pkg/config"
	"github.com/colegio-ws/gestor/pkg/database"
	"github.com/colegio-ws/gestor/pkg/dispatch"
	"github.com/colegio-ws/gestor/pkg/erp"
	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/services"
	"github.com/colegio-ws/gestor/pkg/version"
	"github.com/colegio-ws/gestor/pkg/whatsapp"
)

// AgentRunner processes one inbound message and returns the reply text and
// the agent tag recorded on the interaction log.
type AgentRunner interface {
	Process(ctx context.Context, handle, text string) (reply string, agentTag string, err error)
}

// Server is the orchestrator HTTP server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	cfg        *config.OrchestratorConfig
	dbClient   *database.Client
	dispatcher *dispatch.Dispatcher
	runner     AgentRunner
	messenger  *whatsapp.Client
	model      llm.Client  // used by the admin-reply reformulation
	erpClient  *erp.Client // nil disables mirror resync

	mirror       *services.MirrorService
	interactions *services.InteractionService
	tickets      *services.TicketService
	notifier     *services.NotificationService
	tokenUsage   *services.TokenUsageService
}

// Deps bundles the server's dependencies.
type Deps struct {
	Config     *config.OrchestratorConfig
	DBClient   *database.Client
	Dispatcher *dispatch.Dispatcher
	Runner     AgentRunner
	Messenger  *whatsapp.Client
	Model      llm.Client
	ERP        *erp.Client

	Mirror       *services.MirrorService
	Interactions *services.InteractionService
	Tickets      *services.TicketService
	Notifier     *services.NotificationService
	TokenUsage   *services.TokenUsageService
}

// NewServer creates the orchestrator server.
func NewServer(deps Deps) *Server {
	e := echo.New()
	s := &Server{
		echo:         e,
		cfg:          deps.Config,
		dbClient:     deps.DBClient,
		dispatcher:   deps.Dispatcher,
		runner:       deps.Runner,
		messenger:    deps.Messenger,
		model:        deps.Model,
		erpClient:    deps.ERP,
		mirror:       deps.Mirror,
		interactions: deps.Interactions,
		tickets:      deps.Tickets,
		notifier:     deps.Notifier,
		tokenUsage:   deps.TokenUsage,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(1 * 1024 * 1024))

	s.echo.GET("/health", s.healthHandler)

	// Messaging provider fan-in.
	s.echo.GET("/webhook/whatsapp", s.whatsappVerifyHandler)
	s.echo.POST("/webhook/whatsapp", s.whatsappInboundHandler)

	// ERP event fan-in.
	s.echo.POST("/webhook/erp/payment-confirmed", s.erpPaymentConfirmedHandler)
	s.echo.POST("/webhook/erp/installment-generated", s.erpInstallmentGeneratedHandler)
	s.echo.POST("/webhook/erp/student-updated", s.erpStudentUpdatedHandler)
	s.echo.POST("/webhook/erp/guardian-updated", s.erpGuardianUpdatedHandler)

	// Admin surface.
	v1 := s.echo.Group("/api/v1")
	v1.GET("/tickets", s.listTicketsHandler)
	v1.POST("/tickets", s.createTicketHandler)
	v1.GET("/tickets/:id", s.getTicketHandler)
	v1.POST("/tickets/:id/reply", s.replyTicketHandler)
	v1.GET("/interactions", s.listInteractionsHandler)
	v1.GET("/notifications", s.listNotificationsHandler)
	v1.POST("/notifications/send", s.sendNotificationHandler)
	v1.POST("/mirror/resync", s.resyncMirrorHandler)
	v1.GET("/token-usage/:query_id", s.getTokenUsageHandler)
	v1.GET("/token-usage", s.tokenUsageTotalsHandler)
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
	status := http.StatusOK
	payload := map[string]any{
		"status":  "healthy",
		"version": version.Full(),
	}
	if s.dbClient != nil {
		dbHealth, err := database.Health(c.Request().Context(), s.dbClient.DB())
		payload["database"] = dbHealth
		if err != nil {
			payload["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	if s.dispatcher != nil {
		payload["dispatcher"] = s.dispatcher.Health()
	}
	return c.JSON(status, payload)
}
