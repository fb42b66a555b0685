package graph

import (
	"context"
	"net"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/colegio-ws/gestor/pkg/version"
)

// Server exposes the analytic reports under /api/v1/reports.
// The orchestrator never calls this at message time; it is an admin surface
// plus the backing store for the kg tools.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	reports    *Reports
	etl        *ETL
	enricher   *Enricher
}

// NewServer creates the insights HTTP server.
func NewServer(reports *Reports, etl *ETL, enricher *Enricher) *Server {
	e := echo.New()
	s := &Server{echo: e, reports: reports, etl: etl, enricher: enricher}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(1 * 1024 * 1024))

	s.echo.GET("/health", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "healthy", "version": version.Full()})
	})

	v1 := s.echo.Group("/api/v1")
	v1.POST("/etl/sync", s.syncHandler)
	v1.POST("/etl/enrich", s.enrichHandler)

	reports := v1.Group("/reports")
	reports.GET("/guardians/:handle/profile", s.profileHandler)
	reports.GET("/risk/:handle", s.riskHandler)
	reports.GET("/cash-projection", s.cashProjectionHandler)
	reports.GET("/behavior-patterns", s.behaviorPatternsHandler)
	reports.GET("/executive-summary", s.executiveSummaryHandler)
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

func (s *Server) syncHandler(c *echo.Context) error {
	if err := s.etl.Sync(c.Request().Context()); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "synced"})
}

func (s *Server) enrichHandler(c *echo.Context) error {
	enriched, err := s.enricher.EnrichAll(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{"status": "enriched", "guardians": enriched})
}

func (s *Server) profileHandler(c *echo.Context) error {
	profile, err := s.reports.GuardianProfile(c.Request().Context(), c.Param("handle"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "profile query failed"})
	}
	if profile == nil {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "guardian not found"})
	}
	return c.JSON(http.StatusOK, profile)
}

func (s *Server) riskHandler(c *echo.Context) error {
	risk, err := s.reports.RiskScore(c.Request().Context(), c.Param("handle"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "risk query failed"})
	}
	if risk == nil {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "guardian not found"})
	}
	return c.JSON(http.StatusOK, risk)
}

func (s *Server) cashProjectionHandler(c *echo.Context) error {
	weeks := 4
	if v := c.QueryParam("weeks"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusUnprocessableEntity, map[string]any{"error": "invalid weeks"})
		}
		weeks = parsed
	}
	projection, err := s.reports.CashProjection(c.Request().Context(), weeks)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "projection query failed"})
	}
	return c.JSON(http.StatusOK, projection)
}

func (s *Server) behaviorPatternsHandler(c *echo.Context) error {
	patterns, err := s.reports.BehaviorPatterns(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "patterns query failed"})
	}
	return c.JSON(http.StatusOK, patterns)
}

func (s *Server) executiveSummaryHandler(c *echo.Context) error {
	summary, err := s.reports.ExecutiveSummary(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]any{"error": "summary generation failed"})
	}
	return c.JSON(http.StatusOK, map[string]any{"summary": summary})
}
