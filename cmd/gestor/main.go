// Gestor orchestrator: WhatsApp webhook fan-in, agent runtime, ERP mirror,
// ticket admin API, and outbound messaging.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/colegio-ws/gestor/pkg/agent"
	"github.com/colegio-ws/gestor/pkg/agent/checkpoint"
	"github.com/colegio-ws/gestor/pkg/agent/codeplanner"
	"github.com/colegio-ws/gestor/pkg/api"
	"github.com/colegio-ws/gestor/pkg/config"
	"github.com/colegio-ws/gestor/pkg/database"
	"github.com/colegio-ws/gestor/pkg/dispatch"
	"github.com/colegio-ws/gestor/pkg/erp"
	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/services"
	"github.com/colegio-ws/gestor/pkg/tools"
	"github.com/colegio-ws/gestor/pkg/version"
	"github.com/colegio-ws/gestor/pkg/whatsapp"
)

// hierarchicalRunner adapts the hierarchical graph to the API seam.
type hierarchicalRunner struct{ runner *agent.Runner }

func (h *hierarchicalRunner) Process(ctx context.Context, handle, text string) (string, string, error) {
	st, err := h.runner.Process(ctx, handle, text)
	if err != nil {
		return "", "coordinador", err
	}
	return st.Response, "coordinador", nil
}

// codePlannerRunner adapts the code-planner graph to the API seam.
type codePlannerRunner struct{ runner *codeplanner.Runner }

func (c *codePlannerRunner) Process(ctx context.Context, handle, text string) (string, string, error) {
	st, err := c.runner.Process(ctx, handle, text)
	if err != nil {
		return "", "code_planner", err
	}
	return st.Response, "code_planner", nil
}

func setupLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file, using existing environment")
	}

	cfg, err := config.LoadOrchestratorFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)
	slog.Info("Starting gestor", "version", version.Full(), "agent_mode", cfg.AgentMode)

	ctx := context.Background()

	dbClient, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL, migrations applied")

	// LLM client with token tracking.
	baseModel, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		slog.Error("Failed to create LLM client", "error", err)
		os.Exit(1)
	}
	model := llm.NewTracked(baseModel)
	slog.Info("LLM client ready", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	// Checkpoint store: Redis when configured, in-memory otherwise.
	var store checkpoint.Store
	if cfg.RedisURL != "" {
		redisStore, err := checkpoint.NewRedisStoreFromURL(cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect checkpoint store", "error", err)
			os.Exit(1)
		}
		defer func() { _ = redisStore.Close() }()
		store = redisStore
		slog.Info("Checkpoint store: redis")
	} else {
		store = checkpoint.NewMemoryStore()
		slog.Warn("Checkpoint store: in-memory (conversations do not survive restarts)")
	}

	// Services.
	db := dbClient.DB()
	mirror := services.NewMirrorService(db)
	interactions := services.NewInteractionService(db)
	tickets := services.NewTicketService(db)
	tokenUsage := services.NewTokenUsageService(db)

	messenger := whatsapp.NewClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneNumberID)
	notifier := services.NewNotificationService(db, mirror, messenger)

	toolClient := tools.NewClient(cfg.MCPToolsURL)
	if !toolClient.Ping(ctx) {
		slog.Warn("Tool server unreachable at startup", "url", cfg.MCPToolsURL)
	}

	erpClient := erp.Shared(cfg.ERPURL)
	if !erpClient.HealthCheck(ctx) {
		slog.Warn("ERP unreachable at startup", "url", cfg.ERPURL)
	}

	// Agent runtime selected by configuration.
	var runner api.AgentRunner
	switch cfg.AgentMode {
	case config.AgentModeCodePlanner:
		runner = &codePlannerRunner{runner: codeplanner.NewRunner(
			model, toolClient, toolClient,
			codeplanner.DefaultMaxCorrections, codeplanner.DefaultMaxIterations)}
	default:
		runner = &hierarchicalRunner{runner: agent.NewRunner(
			model, toolClient, mirror, store, cfg.MaxReplans)}
	}

	dispatcher := dispatch.New(dispatch.DefaultWorkerCount, dispatch.DefaultQueueSize, cfg.RequestTimeout)
	defer dispatcher.Stop()

	server := api.NewServer(api.Deps{
		Config:       cfg,
		DBClient:     dbClient,
		Dispatcher:   dispatcher,
		Runner:       runner,
		Messenger:    messenger,
		Model:        model,
		ERP:          erpClient,
		Mirror:       mirror,
		Interactions: interactions,
		Tickets:      tickets,
		Notifier:     notifier,
		TokenUsage:   tokenUsage,
	})

	// Hourly reminder sweep (D-7/D-3/D-1), deduplicated in the DB.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go runReminderSweep(sweepCtx, notifier)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(server.Shutdown)
}

func runReminderSweep(ctx context.Context, notifier *services.NotificationService) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sent := notifier.SweepReminders(ctx, time.Now().UTC())
			if sent > 0 {
				slog.Info("Reminder sweep delivered notifications", "sent", sent)
			}
		}
	}
}

func waitForShutdown(shutdown func(context.Context) error) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
