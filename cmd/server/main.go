package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutorhive/tutorhive/adapter/api"
	"github.com/tutorhive/tutorhive/internal/app"
	"github.com/tutorhive/tutorhive/pkg/config"
	"github.com/tutorhive/tutorhive/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	logger.Info("starting tutorhive API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer container.Close()
	logger.Info("connected to database")

	webhook := api.NewWebhookHandler(
		container.ConfirmPaymentHandler,
		container.ConfirmSubscriptionHandler,
		cfg.StripeWebhookSecret,
		logger,
	)
	admin := api.NewAdminHandler(container.Sweeper, container.AuditRecorder, logger)

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.APIAddr
	server := api.NewServer(serverCfg, api.ServerDeps{
		Webhook:      webhook,
		Admin:        admin,
		Health:       container.Health,
		Metrics:      container.Metrics,
		PromExporter: api.NewPromExporter(container.Metrics),
		Logger:       logger,
	})

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
