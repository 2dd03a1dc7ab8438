package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	auditDomain "github.com/tutorhive/tutorhive/internal/audit/domain"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/subscriptions/domain"
)

// ErrSubscriptionNotFound is returned when the user has no grant to extend.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// AuditRecorder is the audit trail surface the admin commands write to.
type AuditRecorder interface {
	Record(ctx context.Context, entry auditDomain.Entry) error
}

// ExtendSubscriptionCommand contains the data for an admin expiry extension.
type ExtendSubscriptionCommand struct {
	UserID uuid.UUID
	Days   int
	Actor  uuid.UUID
}

// ExtendSubscriptionResult reports the expiry before and after.
type ExtendSubscriptionResult struct {
	SubscriptionID uuid.UUID
	OldExpiresAt   time.Time
	NewExpiresAt   time.Time
}

// ExtendSubscriptionHandler handles the ExtendSubscriptionCommand.
type ExtendSubscriptionHandler struct {
	subscriptionRepo domain.SubscriptionRepository
	audit            AuditRecorder
	clk              clock.Clock
	logger           *slog.Logger
}

// NewExtendSubscriptionHandler creates a new ExtendSubscriptionHandler.
func NewExtendSubscriptionHandler(
	subscriptionRepo domain.SubscriptionRepository,
	audit AuditRecorder,
	clk clock.Clock,
	logger *slog.Logger,
) *ExtendSubscriptionHandler {
	return &ExtendSubscriptionHandler{
		subscriptionRepo: subscriptionRepo,
		audit:            audit,
		clk:              clk,
		logger:           logger,
	}
}

// Handle pushes the user's latest grant out by N days. An expired grant
// extends from now, so a lapsed user receives the full period.
func (h *ExtendSubscriptionHandler) Handle(ctx context.Context, cmd ExtendSubscriptionCommand) (*ExtendSubscriptionResult, error) {
	subscription, err := h.subscriptionRepo.FindLatestByUser(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, ErrSubscriptionNotFound
	}

	oldExpiresAt := subscription.ExpiresAt()
	if err := subscription.Extend(cmd.Days, h.clk.Now()); err != nil {
		return nil, err
	}
	if err := h.subscriptionRepo.Save(ctx, subscription); err != nil {
		return nil, err
	}

	// The change is already persisted; a lost audit record is logged, not
	// surfaced as an operation failure.
	if err := h.audit.Record(ctx, auditDomain.Entry{
		Actor:      cmd.Actor,
		ActionType: "subscription.extended",
		EntityType: "subscription",
		EntityID:   subscription.ID().String(),
		OldValues:  map[string]any{"expires_at": oldExpiresAt},
		NewValues:  map[string]any{"expires_at": subscription.ExpiresAt(), "days": cmd.Days},
	}); err != nil {
		h.logger.ErrorContext(ctx, "failed to record audit entry",
			slog.String("subscription_id", subscription.ID().String()),
			slog.String("error", err.Error()))
	}

	return &ExtendSubscriptionResult{
		SubscriptionID: subscription.ID(),
		OldExpiresAt:   oldExpiresAt,
		NewExpiresAt:   subscription.ExpiresAt(),
	}, nil
}
