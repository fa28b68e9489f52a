// Package main implements the predictor service: scheduled solar power
// forecasting over Open-Meteo weather data, with prediction retrieval,
// readings ingest, error metrics and a model playground over HTTP.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/solarops/sunforecast/cmd/predictor/config"
	"github.com/solarops/sunforecast/cmd/predictor/logger"
	"github.com/solarops/sunforecast/cmd/predictor/metrics"
	"github.com/solarops/sunforecast/cmd/predictor/router"
	"github.com/solarops/sunforecast/cmd/predictor/server"
	"github.com/solarops/sunforecast/pkg/clock"
	"github.com/solarops/sunforecast/pkg/evaluation"
	"github.com/solarops/sunforecast/pkg/features"
	"github.com/solarops/sunforecast/pkg/httpx"
	"github.com/solarops/sunforecast/pkg/modelmanager"
	"github.com/solarops/sunforecast/pkg/openmeteo"
	"github.com/solarops/sunforecast/pkg/pipeline"
	"github.com/solarops/sunforecast/pkg/playground"
	"github.com/solarops/sunforecast/pkg/readings"
	"github.com/solarops/sunforecast/pkg/schedule"
	"github.com/solarops/sunforecast/pkg/state"
	"github.com/solarops/sunforecast/pkg/store"
)

func main() {
	cfg := config.ParseFlags()

	log := logger.New(cfg)
	slog.SetDefault(log)

	log.Info("starting predictor",
		"version", "v0.1.0",
		"timezone", cfg.ForecastTimezone,
		"listen", cfg.Listen,
	)

	loc, err := time.LoadLocation(cfg.ForecastTimezone)
	if err != nil {
		log.Error("invalid forecast timezone", "timezone", cfg.ForecastTimezone, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database access is the one dependency the service cannot run without.
	// The model manager and the weather provider are retried every cycle.
	db, err := store.Open(ctx, store.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Name:     cfg.DBName,
		MinConns: cfg.DBMinConns,
		MaxConns: cfg.DBMaxConns,
	})
	if err != nil {
		log.Error("database connection failed", "host", cfg.DBHost, "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	registry := modelmanager.NewClient(cfg.ModelManagerBaseURL)
	cache := state.NewCache(registry, log)

	// An empty base URL selects the public Open-Meteo API.
	weather := openmeteo.NewClient(cfg.OpenMeteoBaseURL, loc)

	var writer *store.AsyncWriter
	writer = store.NewAsyncWriter(log, func(label string, err error) {
		m.RecordWriteBatch(err)
		m.WriteQueueDepth.Set(float64(writer.Pending()))
	})

	resolver := features.NewResolver(log)
	engine := evaluation.NewEngine(db, log)
	pipe := pipeline.New(cache, weather, resolver, db, writer, m, log)

	clk := clock.New(loc)
	sched, err := schedule.New(pipe, clk, loc, log)
	if err != nil {
		log.Error("scheduler setup failed", "error", err)
		os.Exit(1)
	}

	// Warm the state snapshot before the first trigger so early HTTP
	// requests see plants and models. Failures are non-fatal: the next
	// cycle refreshes again.
	warmCtx, warmCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := cache.Refresh(warmCtx); err != nil {
		log.Warn("initial state refresh incomplete", "error", err)
	}
	warmCancel()

	sched.Start()

	ingester := readings.NewIngester(db, engine, registry, loc, log)
	play := playground.New(cache, db, log)

	handlers := server.New(db, sched, cache, engine, ingester, play, log)
	httpServer := httpx.NewServer(cfg.Listen, router.SetupRoutes(handlers), log)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	log.Info("shutting down")
	cancel()

	// Order matters: stop triggering new cycles and wait for the in-flight
	// run, stop the listener so no manual trigger can enqueue more writes,
	// drain the write backlog, then release the pool.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.Error("scheduler shutdown failed", "error", err)
	}
	shutdownCancel()

	if err := httpServer.Stop(10 * time.Second); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	writer.Close()

	if err := db.Close(); err != nil {
		log.Error("database close failed", "error", err)
	}

	log.Info("shutdown complete")
}
