// ERP service: canonical students, guardians, installments and payments,
// plus the reliable payment-confirmed webhook to the orchestrator.
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

	"github.com/colegio-ws/gestor/pkg/config"
	"github.com/colegio-ws/gestor/pkg/erpserver"
	"github.com/colegio-ws/gestor/pkg/version"
	"github.com/colegio-ws/gestor/pkg/webhook"
)

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

	cfg, err := config.LoadERPFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)
	slog.Info("Starting erp service", "version", version.Full())

	store := erpserver.NewStore()
	if err := erpserver.Seed(store); err != nil {
		slog.Error("Failed to seed store", "error", err)
		os.Exit(1)
	}
	slog.Info("Store seeded")

	webhooks := webhook.NewClient(cfg.GestorWSURL, cfg.WebhookMaxRetries, cfg.WebhookBaseDelay)
	server := erpserver.NewServer(store, webhooks)

	// Daily overdue batch: pending installments past due flip to overdue.
	overdueCtx, stopOverdue := context.WithCancel(context.Background())
	defer stopOverdue()
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-overdueCtx.Done():
				return
			case <-ticker.C:
				if count := store.MarkOverdue(time.Now().UTC()); count > 0 {
					slog.Info("Marked installments overdue", "count", count)
				}
			}
		}
	}()

	go func() {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
