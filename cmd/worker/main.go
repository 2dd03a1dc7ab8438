package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tutorhive/tutorhive/internal/app"
	notificationSubs "github.com/tutorhive/tutorhive/internal/notifications/application/subscribers"
	notificationInfra "github.com/tutorhive/tutorhive/internal/notifications/infrastructure"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/eventbus"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/outbox"
	"github.com/tutorhive/tutorhive/pkg/config"
	"github.com/tutorhive/tutorhive/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	logger.Info("starting tutorhive worker")

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

	// Event publisher
	var publisher eventbus.Publisher
	rabbitPublisher, err := eventbus.NewRabbitMQPublisher(cfg.RabbitMQURL, logger)
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
			publisher = eventbus.NewNoopPublisher(logger)
		} else {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
	} else {
		publisher = rabbitPublisher
		defer rabbitPublisher.Close()
	}
	logger.Info("event publisher initialized")

	// Outbox processor
	processorConfig := outbox.ProcessorConfig{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxRetries:   cfg.OutboxMaxRetries,
	}
	processor := outbox.NewProcessor(container.OutboxRepo, publisher, processorConfig, logger)
	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start outbox processor", "error", err)
		os.Exit(1)
	}
	logger.Info("outbox processor started",
		"poll_interval", processorConfig.PollInterval,
		"batch_size", processorConfig.BatchSize,
	)

	// Notification consumer. In development without RabbitMQ, events stay
	// in the outbox and no notifications go out.
	notifier := notificationInfra.NewLogNotifier(logger)
	subscriber := notificationSubs.NewBookingSubscriber(notifier, logger)
	consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
		URL:    cfg.RabbitMQURL,
		Logger: logger,
	}, eventbus.NewConsumerRegistry(logger))
	if err != nil {
		if cfg.IsDevelopment() {
			logger.Warn("RabbitMQ consumer not available, notifications disabled", "error", err)
		} else {
			logger.Error("failed to create event consumer", "error", err)
			os.Exit(1)
		}
	} else {
		consumer.RegisterConsumer(subscriber)
		if err := consumer.Start(ctx); err != nil {
			logger.Error("failed to start event consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		logger.Info("notification consumer started")
	}

	// Reconciliation sweeper
	if err := container.Sweeper.Start(ctx); err != nil {
		logger.Error("failed to start reconciliation sweeper", "error", err)
		os.Exit(1)
	}
	logger.Info("reconciliation sweeper started",
		"interval", cfg.SweepInterval,
		"grace", cfg.SweepGrace,
	)

	// Outbox retention cleanup
	cleanupTicker := time.NewTicker(cfg.OutboxCleanupInterval)
	defer cleanupTicker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanupTicker.C:
				deleted, err := container.OutboxRepo.DeleteOld(ctx, cfg.OutboxRetentionDays)
				if err != nil {
					logger.Error("outbox cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					logger.Info("outbox cleanup completed", "deleted", deleted, "retention_days", cfg.OutboxRetentionDays)
				}
			}
		}
	}()

	// Health server with /metrics
	if cfg.WorkerHealthAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			stats := processor.GetStats()
			response := map[string]any{
				"status":            "ok",
				"outbox_running":    stats.IsRunning,
				"sweeper_running":   container.Sweeper.IsRunning(),
				"published":         stats.PublishedCount,
				"failed":            stats.FailedCount,
				"dead":              stats.DeadCount,
				"last_processed_at": stats.LastProcessedAt,
				"last_error_at":     stats.LastErrorAt,
				"last_error":        stats.LastError,
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(response)
		})

		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := container.Pool.Ping(checkCtx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status": "not_ready",
					"error":  err.Error(),
				})
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ready"})
		})

		mux.Handle("/metrics", promhttp.HandlerFor(container.Metrics.Registry(), promhttp.HandlerOpts{}))

		healthSrv := &http.Server{
			Addr:              cfg.WorkerHealthAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("health server starting", "addr", cfg.WorkerHealthAddr)
			if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", "error", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := healthSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("health server shutdown error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down worker")

	container.Sweeper.Stop()
	processor.Stop()
	logger.Info("worker stopped")
}
