package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/tutorhive/tutorhive/internal/shared/domain"
)

var (
	ErrEmptyPlan       = errors.New("plan must not be empty")
	ErrInvalidDays     = errors.New("days must be positive")
	ErrUnknownSource   = errors.New("unknown subscription source")
	ErrMissingUser     = errors.New("user id must be set")
	ErrEmptySessionRef = errors.New("session reference must not be empty")
)

// Source records how the subscription came to exist.
type Source string

const (
	// SourcePurchase is a subscription bought through a checkout session.
	SourcePurchase Source = "purchase"
	// SourceManual is an admin-created pass.
	SourceManual Source = "manual"
)

// Subscription is a time-bounded access grant for a user. A manual pass is a
// subscription with source manual; downstream access checks do not care.
type Subscription struct {
	sharedDomain.BaseEntity
	userID    uuid.UUID
	plan      string
	source    Source
	expiresAt time.Time

	// sessionRef is the checkout session that paid for the grant. Unique in
	// storage, so a replayed confirmation cannot provision twice.
	sessionRef *string
}

// NewSubscription creates an access grant expiring at the given instant.
func NewSubscription(userID uuid.UUID, plan string, source Source, expiresAt time.Time) (*Subscription, error) {
	if userID == uuid.Nil {
		return nil, ErrMissingUser
	}
	plan = strings.TrimSpace(plan)
	if plan == "" {
		return nil, ErrEmptyPlan
	}
	if source != SourcePurchase && source != SourceManual {
		return nil, ErrUnknownSource
	}

	return &Subscription{
		BaseEntity: sharedDomain.NewBaseEntity(),
		userID:     userID,
		plan:       plan,
		source:     source,
		expiresAt:  expiresAt.UTC(),
	}, nil
}

// NewPurchasedSubscription creates a grant paid for by a checkout session.
func NewPurchasedSubscription(userID uuid.UUID, plan, sessionRef string, expiresAt time.Time) (*Subscription, error) {
	if sessionRef == "" {
		return nil, ErrEmptySessionRef
	}
	sub, err := NewSubscription(userID, plan, SourcePurchase, expiresAt)
	if err != nil {
		return nil, err
	}
	sub.sessionRef = &sessionRef
	return sub, nil
}

func (s *Subscription) UserID() uuid.UUID    { return s.userID }
func (s *Subscription) Plan() string         { return s.plan }
func (s *Subscription) Source() Source       { return s.source }
func (s *Subscription) ExpiresAt() time.Time { return s.expiresAt }
func (s *Subscription) SessionRef() *string  { return s.sessionRef }

// IsActive reports whether the grant covers the given instant.
func (s *Subscription) IsActive(now time.Time) bool {
	return s.expiresAt.After(now)
}

// Extend pushes the expiry out by the given number of days. An expired grant
// extends from now, an active one from its current expiry, so extending never
// shortens and a lapsed user still gets the full period.
func (s *Subscription) Extend(days int, now time.Time) error {
	if days <= 0 {
		return ErrInvalidDays
	}

	base := s.expiresAt
	if now.After(base) {
		base = now.UTC()
	}
	s.expiresAt = base.Add(time.Duration(days) * 24 * time.Hour)
	s.Touch()
	return nil
}

// RehydrateSubscription recreates a subscription from persisted state.
func RehydrateSubscription(
	id uuid.UUID,
	userID uuid.UUID,
	plan string,
	source Source,
	expiresAt time.Time,
	sessionRef *string,
	createdAt, updatedAt time.Time,
) *Subscription {
	return &Subscription{
		BaseEntity: sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		userID:     userID,
		plan:       plan,
		source:     source,
		expiresAt:  expiresAt,
		sessionRef: sessionRef,
	}
}
