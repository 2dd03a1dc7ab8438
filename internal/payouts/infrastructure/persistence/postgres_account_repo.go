package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorhive/tutorhive/internal/payouts/domain"
	sharedPersistence "github.com/tutorhive/tutorhive/internal/shared/infrastructure/persistence"
)

// PostgresAccountRepository persists connected accounts in PostgreSQL.
type PostgresAccountRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAccountRepository creates a new PostgresAccountRepository.
func NewPostgresAccountRepository(pool *pgxpool.Pool) *PostgresAccountRepository {
	return &PostgresAccountRepository{pool: pool}
}

// Save upserts a connected account keyed by instructor id.
func (r *PostgresAccountRepository) Save(ctx context.Context, account *domain.ConnectedAccount) error {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		INSERT INTO connected_accounts (
			instructor_id, external_account_id, details_submitted,
			country, currency, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (instructor_id) DO UPDATE SET
			external_account_id = EXCLUDED.external_account_id,
			details_submitted = EXCLUDED.details_submitted,
			country = EXCLUDED.country,
			currency = EXCLUDED.currency,
			updated_at = EXCLUDED.updated_at`

	_, err := exec.Exec(ctx, query,
		account.InstructorID(),
		account.ExternalAccountID(),
		account.DetailsSubmitted(),
		account.Country(),
		account.Currency(),
		account.CreatedAt(),
		account.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("save connected account: %w", err)
	}
	return nil
}

// FindByInstructorID returns the instructor's connected account, nil if none.
func (r *PostgresAccountRepository) FindByInstructorID(ctx context.Context, instructorID uuid.UUID) (*domain.ConnectedAccount, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		SELECT instructor_id, external_account_id, details_submitted,
		       country, currency, created_at, updated_at
		FROM connected_accounts
		WHERE instructor_id = $1`

	var (
		id                 uuid.UUID
		externalAccountID  *string
		detailsSubmitted   bool
		country, currency  string
		createdAt, updated time.Time
	)

	err := exec.QueryRow(ctx, query, instructorID).Scan(
		&id, &externalAccountID, &detailsSubmitted,
		&country, &currency, &createdAt, &updated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find connected account: %w", err)
	}

	return domain.RehydrateConnectedAccount(id, externalAccountID, detailsSubmitted, country, currency, createdAt, updated), nil
}
