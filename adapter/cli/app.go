package cli

import (
	"context"

	"github.com/google/uuid"
	bookingQueries "github.com/tutorhive/tutorhive/internal/booking/application/queries"
	"github.com/tutorhive/tutorhive/internal/reconciliation"
	subscriptionCommands "github.com/tutorhive/tutorhive/internal/subscriptions/application/commands"
)

// SweepRunner runs one reconciliation pass.
type SweepRunner interface {
	RunOnce(ctx context.Context) (reconciliation.Summary, error)
}

// App holds the CLI application dependencies.
type App struct {
	// Reconciliation
	Sweeper SweepRunner

	// Subscription Command Handlers
	ExtendSubscriptionHandler *subscriptionCommands.ExtendSubscriptionHandler
	CreatePassHandler         *subscriptionCommands.CreatePassHandler

	// Booking Query Handlers
	GetBookingHandler *bookingQueries.GetBookingHandler

	// CurrentActorID identifies the operator for audit entries.
	CurrentActorID uuid.UUID
}

var app *App

// SetApp sets the global CLI application instance.
func SetApp(a *App) {
	app = a
}

// GetApp returns the global CLI application instance.
func GetApp() *App {
	return app
}
