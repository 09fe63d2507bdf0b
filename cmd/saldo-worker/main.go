package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"saldo/internal/app"
	"saldo/internal/config"
	"saldo/internal/log"
	"saldo/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := app.NewLogger(cfg)
	log.SetDefault(logger)

	logger.Info("Starting saldo-worker")

	// The worker serves no HTTP traffic, so authentication is not required.
	if err := cfg.ValidateBackground(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err)
		os.Exit(1)
	}
	defer a.Close()

	if a.Events.Consumer == nil {
		logger.Info("Events backend has no reconcile queue, running periodic sweeps only",
			"events", cfg.EventsBackend)
	}

	w := worker.NewReconcileWorker(a.Ledger, a.Events.Consumer, cfg.ReconcileInterval, logger)
	logger.Info("Reconcile worker started", "interval", cfg.ReconcileInterval)

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Reconcile worker failed", log.FieldError, err)
		cancel()
		a.Close()
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
