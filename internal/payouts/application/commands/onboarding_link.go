package commands

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/payouts/domain"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
)

// ErrNoRemoteAccount is returned when an onboarding link is requested for an
// instructor without a remote account.
var ErrNoRemoteAccount = errors.New("instructor has no payout account")

// OnboardingLinkCommand requests a fresh onboarding URL.
type OnboardingLinkCommand struct {
	InstructorID uuid.UUID
	ReturnURL    string
	RefreshURL   string
}

// OnboardingLinkHandler handles the OnboardingLinkCommand.
type OnboardingLinkHandler struct {
	accountRepo domain.AccountRepository
	proc        processor.Processor
}

// NewOnboardingLinkHandler creates a new OnboardingLinkHandler.
func NewOnboardingLinkHandler(accountRepo domain.AccountRepository, proc processor.Processor) *OnboardingLinkHandler {
	return &OnboardingLinkHandler{accountRepo: accountRepo, proc: proc}
}

// Handle returns a single-use onboarding URL for the instructor's account.
// Links expire quickly at the processor, so one is minted per request.
func (h *OnboardingLinkHandler) Handle(ctx context.Context, cmd OnboardingLinkCommand) (string, error) {
	account, err := h.accountRepo.FindByInstructorID(ctx, cmd.InstructorID)
	if err != nil {
		return "", err
	}
	if account == nil || !account.HasRemoteAccount() {
		return "", ErrNoRemoteAccount
	}
	return h.proc.CreateAccountLink(ctx, *account.ExternalAccountID(), cmd.ReturnURL, cmd.RefreshURL)
}
