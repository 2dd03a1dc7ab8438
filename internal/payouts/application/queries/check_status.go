package queries

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/payouts/domain"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
)

// AccountStatusDTO is the read model for an instructor's payout readiness.
type AccountStatusDTO struct {
	State            domain.OnboardingState `json:"state"`
	AccountID        string                 `json:"account_id,omitempty"`
	DetailsSubmitted bool                   `json:"details_submitted"`
	ChargesEnabled   bool                   `json:"charges_enabled"`
	PayoutsEnabled   bool                   `json:"payouts_enabled"`
	Requirements     []string               `json:"requirements,omitempty"`
}

// StatusCache is a short-TTL cache in front of the processor status call.
// A miss is (nil, nil); cache failures must not fail the query.
type StatusCache interface {
	Get(ctx context.Context, instructorID uuid.UUID) (*AccountStatusDTO, error)
	Set(ctx context.Context, instructorID uuid.UUID, status *AccountStatusDTO, ttl time.Duration) error
}

// CheckStatusQuery contains the parameters for a status check.
type CheckStatusQuery struct {
	InstructorID uuid.UUID
	// BypassCache forces a live processor read.
	BypassCache bool
}

// CheckStatusHandler handles the CheckStatusQuery.
type CheckStatusHandler struct {
	accountRepo domain.AccountRepository
	proc        processor.Processor
	cache       StatusCache
	cacheTTL    time.Duration
	clk         clock.Clock
	logger      *slog.Logger
}

// NewCheckStatusHandler creates a new CheckStatusHandler.
func NewCheckStatusHandler(
	accountRepo domain.AccountRepository,
	proc processor.Processor,
	cache StatusCache,
	cacheTTL time.Duration,
	clk clock.Clock,
	logger *slog.Logger,
) *CheckStatusHandler {
	return &CheckStatusHandler{
		accountRepo: accountRepo,
		proc:        proc,
		cache:       cache,
		cacheTTL:    cacheTTL,
		clk:         clk,
		logger:      logger,
	}
}

// Handle reads through to the processor for the live capability flags. A
// missing remote account is a reportable state, not an error. The stored
// details_submitted proxy is updated only when it changed.
func (h *CheckStatusHandler) Handle(ctx context.Context, query CheckStatusQuery) (*AccountStatusDTO, error) {
	if h.cache != nil && !query.BypassCache {
		if cached, err := h.cache.Get(ctx, query.InstructorID); err != nil {
			h.logger.WarnContext(ctx, "status cache read failed",
				slog.String("instructor_id", query.InstructorID.String()),
				slog.String("error", err.Error()))
		} else if cached != nil {
			return cached, nil
		}
	}

	account, err := h.accountRepo.FindByInstructorID(ctx, query.InstructorID)
	if err != nil {
		return nil, err
	}
	if account == nil || !account.HasRemoteAccount() {
		return &AccountStatusDTO{State: domain.StateNoAccount}, nil
	}

	status, err := h.proc.GetAccountStatus(ctx, *account.ExternalAccountID())
	if err != nil {
		if errors.Is(err, processor.ErrAccountNotFound) {
			// The remote side lost the account; report it rather than
			// fabricating capability.
			return &AccountStatusDTO{State: domain.StateNoAccount}, nil
		}
		return nil, err
	}

	if account.RecordDetailsSubmitted(status.DetailsSubmitted, h.clk.Now()) {
		if err := h.accountRepo.Save(ctx, account); err != nil {
			return nil, err
		}
	}

	dto := &AccountStatusDTO{
		State:            account.DeriveState(status.ChargesEnabled, status.PayoutsEnabled),
		AccountID:        *account.ExternalAccountID(),
		DetailsSubmitted: status.DetailsSubmitted,
		ChargesEnabled:   status.ChargesEnabled,
		PayoutsEnabled:   status.PayoutsEnabled,
		Requirements:     status.Requirements,
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, query.InstructorID, dto, h.cacheTTL); err != nil {
			h.logger.WarnContext(ctx, "status cache write failed",
				slog.String("instructor_id", query.InstructorID.String()),
				slog.String("error", err.Error()))
		}
	}

	return dto, nil
}

// PayoutAccountFor satisfies the booking context's account directory: it
// returns the instructor's payout reference, empty when none exists.
type AccountDirectory struct {
	accountRepo domain.AccountRepository
}

// NewAccountDirectory creates a new AccountDirectory.
func NewAccountDirectory(accountRepo domain.AccountRepository) *AccountDirectory {
	return &AccountDirectory{accountRepo: accountRepo}
}

func (d *AccountDirectory) PayoutAccountFor(ctx context.Context, instructorID uuid.UUID) (string, error) {
	account, err := d.accountRepo.FindByInstructorID(ctx, instructorID)
	if err != nil {
		return "", err
	}
	if account == nil || !account.HasRemoteAccount() {
		return "", nil
	}
	return *account.ExternalAccountID(), nil
}
