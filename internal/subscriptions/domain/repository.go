package domain

import (
	"context"

	"github.com/google/uuid"
)

// SubscriptionRepository defines the persistence interface for subscriptions.
type SubscriptionRepository interface {
	Save(ctx context.Context, subscription *Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// FindLatestByUser returns the user's most recently expiring grant, nil
	// when the user has none.
	FindLatestByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)
	// FindBySessionRef returns the grant provisioned by the given checkout
	// session, nil when none exists.
	FindBySessionRef(ctx context.Context, sessionRef string) (*Subscription, error)
}
