package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"saldo/internal/app"
	"saldo/internal/config"
	apphttp "saldo/internal/http"
	"saldo/internal/log"
	"saldo/internal/worker"
)

func main() {
	// Load .env if present; real environment variables win.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := app.NewLogger(cfg)
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Failed to release resources", log.FieldError, err)
		}
	}()

	verifier, err := a.Verifier()
	if err != nil {
		logger.Error("Failed to configure authentication", log.FieldError, err)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:              ":" + cfg.Port,
		Ledger:            a.Ledger,
		Verifier:          verifier,
		Ready:             a.Store.Ready,
		Logger:            logger,
		RequestsPerMinute: cfg.RateLimitPerMinute,
		WritesPerMinute:   cfg.WriteLimitPerMinute,
		TrustedProxies:    cfg.TrustedProxies,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", log.FieldError, err)
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	go a.Caches.Run(ctx, app.CacheSweepInterval)

	if cfg.EmbeddedWorker {
		w := worker.NewReconcileWorker(a.Ledger, a.Events.Consumer, cfg.ReconcileInterval, logger)
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Error("Embedded reconcile worker stopped", log.FieldError, err)
			}
		}()
		logger.Info("Embedded reconcile worker started", "interval", cfg.ReconcileInterval)
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting saldo server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", cfg.EventsBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		cancel()
		return
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
