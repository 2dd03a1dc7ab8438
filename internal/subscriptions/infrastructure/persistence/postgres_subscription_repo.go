package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	sharedPersistence "github.com/tutorhive/tutorhive/internal/shared/infrastructure/persistence"
	"github.com/tutorhive/tutorhive/internal/subscriptions/domain"
)

const subscriptionColumns = `id, user_id, plan, source, expires_at, session_ref, created_at, updated_at`

// PostgresSubscriptionRepository persists subscriptions in PostgreSQL.
type PostgresSubscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSubscriptionRepository creates a new PostgresSubscriptionRepository.
func NewPostgresSubscriptionRepository(pool *pgxpool.Pool) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{pool: pool}
}

// Save upserts a subscription.
func (r *PostgresSubscriptionRepository) Save(ctx context.Context, subscription *domain.Subscription) error {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		INSERT INTO subscriptions (id, user_id, plan, source, expires_at, session_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at`

	_, err := exec.Exec(ctx, query,
		subscription.ID(),
		subscription.UserID(),
		subscription.Plan(),
		string(subscription.Source()),
		subscription.ExpiresAt(),
		subscription.SessionRef(),
		subscription.CreatedAt(),
		subscription.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// FindByID returns the subscription, nil if none.
func (r *PostgresSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE id = $1`, subscriptionColumns)
	return r.findOne(ctx, query, id)
}

// FindLatestByUser returns the user's most recently expiring grant, nil if none.
func (r *PostgresSubscriptionRepository) FindLatestByUser(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM subscriptions
		WHERE user_id = $1
		ORDER BY expires_at DESC
		LIMIT 1`, subscriptionColumns)
	return r.findOne(ctx, query, userID)
}

// FindBySessionRef returns the grant provisioned by the session, nil if none.
func (r *PostgresSubscriptionRepository) FindBySessionRef(ctx context.Context, sessionRef string) (*domain.Subscription, error) {
	query := fmt.Sprintf(`SELECT %s FROM subscriptions WHERE session_ref = $1`, subscriptionColumns)
	return r.findOne(ctx, query, sessionRef)
}

func (r *PostgresSubscriptionRepository) findOne(ctx context.Context, query string, arg any) (*domain.Subscription, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)

	var (
		id, userID           uuid.UUID
		plan, source         string
		sessionRef           *string
		expiresAt            time.Time
		createdAt, updatedAt time.Time
	)

	err := exec.QueryRow(ctx, query, arg).Scan(
		&id, &userID, &plan, &source, &expiresAt, &sessionRef, &createdAt, &updatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}

	return domain.RehydrateSubscription(id, userID, plan, domain.Source(source), expiresAt, sessionRef, createdAt, updatedAt), nil
}
