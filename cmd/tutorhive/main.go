package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/adapter/cli"
	cliBooking "github.com/tutorhive/tutorhive/adapter/cli/booking"
	cliPass "github.com/tutorhive/tutorhive/adapter/cli/pass"
	cliSubscription "github.com/tutorhive/tutorhive/adapter/cli/subscription"
	"github.com/tutorhive/tutorhive/internal/app"
	"github.com/tutorhive/tutorhive/pkg/config"
	"github.com/tutorhive/tutorhive/pkg/observability"
)

func main() {
	logger := observability.LoggerFromEnv()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		logger.Warn("failed to load config, using development mode", "error", err)
		cfg = &config.Config{AppEnv: "development"}
	}
	cli.SetLogger(logger)

	// Operator identity for audit entries.
	actorID := uuid.Nil
	if raw := os.Getenv("TUTORHIVE_ACTOR_ID"); raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			actorID = parsed
		} else {
			logger.Warn("invalid TUTORHIVE_ACTOR_ID, audit entries will be attributed to system", "error", err)
		}
	}

	// The CLI degrades gracefully when the database is unreachable; each
	// command explains what it needs.
	var cliApp *cli.App
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		logger.Debug("running without a container", "error", err)
	} else {
		defer container.Close()
		cliApp = &cli.App{
			Sweeper:                   container.Sweeper,
			ExtendSubscriptionHandler: container.ExtendSubscriptionHandler,
			CreatePassHandler:         container.CreatePassHandler,
			GetBookingHandler:         container.GetBookingHandler,
			CurrentActorID:            actorID,
		}
	}
	cli.SetApp(cliApp)

	cli.AddCommand(cliBooking.Cmd)
	cli.AddCommand(cliSubscription.Cmd)
	cli.AddCommand(cliPass.Cmd)

	cli.Execute()
}
