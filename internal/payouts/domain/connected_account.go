package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrAccountRefEmpty = errors.New("external account reference cannot be empty")

// OnboardingState is the derived onboarding position of an instructor.
type OnboardingState string

const (
	StateNoAccount        OnboardingState = "no_account"
	StateDetailsPending   OnboardingState = "details_pending"
	StateDetailsSubmitted OnboardingState = "details_submitted"
	StatePaymentCapable   OnboardingState = "payment_capable"
)

// ConnectedAccount tracks an instructor's payout account with the external
// processor. The processor remains the source of truth for capabilities;
// only the account reference and the details_submitted proxy are stored,
// since capability flags can lag days behind manual verification.
type ConnectedAccount struct {
	instructorID      uuid.UUID
	externalAccountID *string
	detailsSubmitted  bool
	country           string
	currency          string
	createdAt         time.Time
	updatedAt         time.Time
}

// NewConnectedAccount creates a tracking record for an instructor without a
// remote account yet.
func NewConnectedAccount(instructorID uuid.UUID, country, currency string, now time.Time) *ConnectedAccount {
	now = now.UTC()
	return &ConnectedAccount{
		instructorID: instructorID,
		country:      country,
		currency:     currency,
		createdAt:    now,
		updatedAt:    now,
	}
}

func (a *ConnectedAccount) InstructorID() uuid.UUID    { return a.instructorID }
func (a *ConnectedAccount) ExternalAccountID() *string { return a.externalAccountID }
func (a *ConnectedAccount) DetailsSubmitted() bool     { return a.detailsSubmitted }
func (a *ConnectedAccount) Country() string            { return a.country }
func (a *ConnectedAccount) Currency() string           { return a.currency }
func (a *ConnectedAccount) CreatedAt() time.Time       { return a.createdAt }
func (a *ConnectedAccount) UpdatedAt() time.Time       { return a.updatedAt }

// HasRemoteAccount reports whether an external account reference is recorded.
func (a *ConnectedAccount) HasRemoteAccount() bool {
	return a.externalAccountID != nil && *a.externalAccountID != ""
}

// AttachRemoteAccount records the external account reference. The reference
// is written once; ensure_account re-checks the processor before creating a
// second remote account, never after.
func (a *ConnectedAccount) AttachRemoteAccount(accountID string, now time.Time) error {
	if accountID == "" {
		return ErrAccountRefEmpty
	}
	if a.HasRemoteAccount() {
		return nil
	}
	a.externalAccountID = &accountID
	a.updatedAt = now.UTC()
	return nil
}

// RecordDetailsSubmitted updates the cached proxy flag. Returns true when
// the stored value actually changed, so callers can skip redundant writes.
func (a *ConnectedAccount) RecordDetailsSubmitted(submitted bool, now time.Time) bool {
	if a.detailsSubmitted == submitted {
		return false
	}
	a.detailsSubmitted = submitted
	a.updatedAt = now.UTC()
	return true
}

// DeriveState computes the onboarding state from the stored record and the
// processor's capability flags. chargesEnabled and payoutsEnabled are only
// meaningful when a remote account exists.
func (a *ConnectedAccount) DeriveState(chargesEnabled, payoutsEnabled bool) OnboardingState {
	if !a.HasRemoteAccount() {
		return StateNoAccount
	}
	if !a.detailsSubmitted {
		return StateDetailsPending
	}
	if chargesEnabled && payoutsEnabled {
		return StatePaymentCapable
	}
	return StateDetailsSubmitted
}

// RehydrateConnectedAccount recreates an account record from persisted state.
func RehydrateConnectedAccount(
	instructorID uuid.UUID,
	externalAccountID *string,
	detailsSubmitted bool,
	country, currency string,
	createdAt, updatedAt time.Time,
) *ConnectedAccount {
	return &ConnectedAccount{
		instructorID:      instructorID,
		externalAccountID: externalAccountID,
		detailsSubmitted:  detailsSubmitted,
		country:           country,
		currency:          currency,
		createdAt:         createdAt,
		updatedAt:         updatedAt,
	}
}
