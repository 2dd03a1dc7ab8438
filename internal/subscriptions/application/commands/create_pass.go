package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	auditDomain "github.com/tutorhive/tutorhive/internal/audit/domain"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/subscriptions/domain"
)

// CreatePassCommand contains the data for an admin-created pass.
type CreatePassCommand struct {
	UserID uuid.UUID
	Plan   string
	Days   int
	Actor  uuid.UUID
}

// CreatePassResult reports the created grant.
type CreatePassResult struct {
	SubscriptionID uuid.UUID
	ExpiresAt      time.Time
}

// CreatePassHandler handles the CreatePassCommand.
type CreatePassHandler struct {
	subscriptionRepo domain.SubscriptionRepository
	audit            AuditRecorder
	clk              clock.Clock
	logger           *slog.Logger
}

// NewCreatePassHandler creates a new CreatePassHandler.
func NewCreatePassHandler(
	subscriptionRepo domain.SubscriptionRepository,
	audit AuditRecorder,
	clk clock.Clock,
	logger *slog.Logger,
) *CreatePassHandler {
	return &CreatePassHandler{
		subscriptionRepo: subscriptionRepo,
		audit:            audit,
		clk:              clk,
		logger:           logger,
	}
}

// Handle creates a manual pass running from now for the given number of days.
func (h *CreatePassHandler) Handle(ctx context.Context, cmd CreatePassCommand) (*CreatePassResult, error) {
	if cmd.Days <= 0 {
		return nil, domain.ErrInvalidDays
	}

	expiresAt := h.clk.Now().Add(time.Duration(cmd.Days) * 24 * time.Hour)
	pass, err := domain.NewSubscription(cmd.UserID, cmd.Plan, domain.SourceManual, expiresAt)
	if err != nil {
		return nil, err
	}
	if err := h.subscriptionRepo.Save(ctx, pass); err != nil {
		return nil, err
	}

	if err := h.audit.Record(ctx, auditDomain.Entry{
		Actor:      cmd.Actor,
		ActionType: "pass.created",
		EntityType: "subscription",
		EntityID:   pass.ID().String(),
		NewValues: map[string]any{
			"user_id":    cmd.UserID.String(),
			"plan":       pass.Plan(),
			"expires_at": expiresAt,
		},
	}); err != nil {
		h.logger.ErrorContext(ctx, "failed to record audit entry",
			slog.String("subscription_id", pass.ID().String()),
			slog.String("error", err.Error()))
	}

	return &CreatePassResult{SubscriptionID: pass.ID(), ExpiresAt: expiresAt}, nil
}
