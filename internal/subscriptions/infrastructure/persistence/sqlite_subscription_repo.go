package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/subscriptions/domain"
)

// SQLiteSubscriptionRepository implements domain.SubscriptionRepository
// using SQLite for the local single-process mode.
type SQLiteSubscriptionRepository struct {
	dbConn *sql.DB
}

// NewSQLiteSubscriptionRepository creates a new SQLite subscription repository.
func NewSQLiteSubscriptionRepository(dbConn *sql.DB) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{dbConn: dbConn}
}

// Save upserts a subscription.
func (r *SQLiteSubscriptionRepository) Save(ctx context.Context, subscription *domain.Subscription) error {
	query := `
		INSERT INTO subscriptions (id, user_id, plan, source, expires_at, session_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`
	_, err := r.dbConn.ExecContext(ctx, query,
		subscription.ID().String(),
		subscription.UserID().String(),
		subscription.Plan(),
		string(subscription.Source()),
		subscription.ExpiresAt().Format(time.RFC3339),
		subscription.SessionRef(),
		subscription.CreatedAt().Format(time.RFC3339),
		subscription.UpdatedAt().Format(time.RFC3339),
	)
	return err
}

// FindByID returns the subscription, nil if none.
func (r *SQLiteSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE id = ?`, id.String())
}

// FindLatestByUser returns the user's most recently expiring grant, nil if none.
func (r *SQLiteSubscriptionRepository) FindLatestByUser(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE user_id = ? ORDER BY expires_at DESC LIMIT 1`, userID.String())
}

// FindBySessionRef returns the grant provisioned by the session, nil if none.
func (r *SQLiteSubscriptionRepository) FindBySessionRef(ctx context.Context, sessionRef string) (*domain.Subscription, error) {
	return r.findOne(ctx, `WHERE session_ref = ?`, sessionRef)
}

func (r *SQLiteSubscriptionRepository) findOne(ctx context.Context, where string, arg any) (*domain.Subscription, error) {
	query := `
		SELECT id, user_id, plan, source, expires_at, session_ref, created_at, updated_at
		FROM subscriptions ` + where

	var (
		rawID, rawUserID       string
		plan, source           string
		rawExpires             string
		sessionRef             *string
		rawCreated, rawUpdated string
	)

	err := r.dbConn.QueryRowContext(ctx, query, arg).Scan(
		&rawID, &rawUserID, &plan, &source, &rawExpires, &sessionRef, &rawCreated, &rawUpdated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}

	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse subscription id: %w", err)
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339, rawExpires)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339, rawCreated)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339, rawUpdated)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return domain.RehydrateSubscription(id, userID, plan, domain.Source(source), expiresAt, sessionRef, createdAt, updatedAt), nil
}
