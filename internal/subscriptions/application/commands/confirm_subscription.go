package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
	"github.com/tutorhive/tutorhive/internal/subscriptions/domain"
)

// ErrNoUserRef is returned when a session carries no user metadata and so
// cannot be correlated to a grant.
var ErrNoUserRef = errors.New("session carries no user reference")

// ConfirmOutcome describes what a confirmation call did.
type ConfirmOutcome string

const (
	OutcomeProvisioned        ConfirmOutcome = "provisioned"
	OutcomeAlreadyProvisioned ConfirmOutcome = "already_provisioned"
	OutcomeNotPaid            ConfirmOutcome = "not_paid"
)

// ConfirmSubscriptionCommand contains the data to confirm a plan purchase.
type ConfirmSubscriptionCommand struct {
	SessionID string
}

// ConfirmSubscriptionResult reports the outcome and the grant involved.
type ConfirmSubscriptionResult struct {
	Outcome        ConfirmOutcome
	SubscriptionID uuid.UUID
	ExpiresAt      time.Time
}

// ConfirmSubscriptionHandler handles the ConfirmSubscriptionCommand.
type ConfirmSubscriptionHandler struct {
	subscriptionRepo domain.SubscriptionRepository
	proc             processor.Processor
	clk              clock.Clock
	logger           *slog.Logger
}

// NewConfirmSubscriptionHandler creates a new ConfirmSubscriptionHandler.
func NewConfirmSubscriptionHandler(
	subscriptionRepo domain.SubscriptionRepository,
	proc processor.Processor,
	clk clock.Clock,
	logger *slog.Logger,
) *ConfirmSubscriptionHandler {
	return &ConfirmSubscriptionHandler{
		subscriptionRepo: subscriptionRepo,
		proc:             proc,
		clk:              clk,
		logger:           logger,
	}
}

// Handle provisions the access grant for a paid session. Replayed webhooks
// for the same session find the stored grant and return without writing.
func (h *ConfirmSubscriptionHandler) Handle(ctx context.Context, cmd ConfirmSubscriptionCommand) (*ConfirmSubscriptionResult, error) {
	session, err := h.proc.RetrieveSession(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if session.PaymentStatus != processor.SessionPaid {
		return &ConfirmSubscriptionResult{Outcome: OutcomeNotPaid}, nil
	}

	rawUserID, ok := session.Metadata[MetadataUserID]
	if !ok {
		return nil, ErrNoUserRef
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return nil, fmt.Errorf("parse user reference: %w", err)
	}
	plan := session.Metadata[MetadataPlan]
	days, err := strconv.Atoi(session.Metadata[MetadataDurationDays])
	if err != nil || days <= 0 {
		return nil, fmt.Errorf("session %s carries invalid duration %q", session.ID, session.Metadata[MetadataDurationDays])
	}

	existing, err := h.subscriptionRepo.FindBySessionRef(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &ConfirmSubscriptionResult{
			Outcome:        OutcomeAlreadyProvisioned,
			SubscriptionID: existing.ID(),
			ExpiresAt:      existing.ExpiresAt(),
		}, nil
	}

	expiresAt := h.clk.Now().Add(time.Duration(days) * 24 * time.Hour)
	subscription, err := domain.NewPurchasedSubscription(userID, plan, session.ID, expiresAt)
	if err != nil {
		return nil, err
	}
	if err := h.subscriptionRepo.Save(ctx, subscription); err != nil {
		return nil, err
	}

	h.logger.InfoContext(ctx, "subscription provisioned",
		slog.String("subscription_id", subscription.ID().String()),
		slog.String("user_id", userID.String()),
		slog.String("plan", plan),
		slog.Time("expires_at", expiresAt))

	return &ConfirmSubscriptionResult{
		Outcome:        OutcomeProvisioned,
		SubscriptionID: subscription.ID(),
		ExpiresAt:      expiresAt,
	}, nil
}
