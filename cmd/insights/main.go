// Insights service: ETL from the orchestrator's cache tables into the
// property graph, LLM enrichment, and the report API.
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
	"github.com/colegio-ws/gestor/pkg/database"
	"github.com/colegio-ws/gestor/pkg/graph"
	"github.com/colegio-ws/gestor/pkg/llm"
	"github.com/colegio-ws/gestor/pkg/version"
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

	cfg, err := config.LoadGraphFromEnv()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.LogLevel)
	slog.Info("Starting insights service", "version", version.Full())

	ctx := context.Background()

	// Read-only view over the orchestrator's cache tables.
	dbClient, err := database.NewClient(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to cache database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = dbClient.Close() }()

	neoClient, err := graph.NewNeo4jClient(ctx, cfg)
	if err != nil {
		slog.Error("Failed to connect to graph store", "error", err)
		os.Exit(1)
	}
	defer func() { _ = neoClient.Close(ctx) }()
	slog.Info("Connected to graph store", "uri", cfg.Neo4jURI)

	model, err := llm.New(ctx, cfg.LLM)
	if err != nil {
		slog.Warn("LLM unavailable, enrichment falls back to heuristics", "error", err)
		model = nil
	}

	etl := graph.NewETL(dbClient.DB(), neoClient)
	enricher := graph.NewEnricher(neoClient, model)
	reports := graph.NewReports(neoClient, model)
	server := graph.NewServer(reports, etl, enricher)

	// Nightly batch: sync then enrich.
	batchCtx, stopBatch := context.WithCancel(ctx)
	defer stopBatch()
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-batchCtx.Done():
				return
			case <-ticker.C:
				if err := etl.Sync(batchCtx); err != nil {
					slog.Error("Nightly graph sync failed", "error", err)
					continue
				}
				enriched, err := enricher.EnrichAll(batchCtx)
				if err != nil {
					slog.Error("Nightly enrichment failed", "error", err)
					continue
				}
				slog.Info("Nightly batch complete", "guardians_enriched", enriched)
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}
