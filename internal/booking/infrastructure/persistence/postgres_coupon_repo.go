package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
	sharedPersistence "github.com/tutorhive/tutorhive/internal/shared/infrastructure/persistence"
)

// PostgresCouponRepository implements domain.CouponRepository using PostgreSQL.
type PostgresCouponRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresCouponRepository creates a new PostgreSQL coupon repository.
func NewPostgresCouponRepository(pool *pgxpool.Pool) *PostgresCouponRepository {
	return &PostgresCouponRepository{pool: pool}
}

// Save persists a coupon.
func (r *PostgresCouponRepository) Save(ctx context.Context, coupon *domain.Coupon) error {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		INSERT INTO coupons (
			id, code, percent_off, active, expires_at, max_uses, used_count,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			active = EXCLUDED.active,
			expires_at = EXCLUDED.expires_at,
			max_uses = EXCLUDED.max_uses,
			used_count = EXCLUDED.used_count,
			updated_at = NOW()
	`
	_, err := exec.Exec(ctx, query,
		coupon.ID(),
		coupon.Code(),
		coupon.PercentOff(),
		coupon.IsActive(),
		coupon.ExpiresAt(),
		coupon.MaxUses(),
		coupon.UsedCount(),
		coupon.CreatedAt(),
		coupon.UpdatedAt(),
	)
	return err
}

// FindByCode retrieves a coupon by its code, case-insensitively.
func (r *PostgresCouponRepository) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		SELECT id, code, percent_off, active, expires_at, max_uses, used_count,
		       created_at, updated_at
		FROM coupons
		WHERE code = $1
	`

	var (
		id                 uuid.UUID
		storedCode         string
		percentOff         int
		active             bool
		expiresAt          *time.Time
		maxUses, usedCount int
		createdAt          time.Time
		updatedAt          time.Time
	)
	err := exec.QueryRow(ctx, query, strings.ToUpper(strings.TrimSpace(code))).Scan(
		&id, &storedCode, &percentOff, &active, &expiresAt, &maxUses, &usedCount,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return domain.RehydrateCoupon(id, storedCode, percentOff, active, expiresAt, maxUses, usedCount, createdAt, updatedAt), nil
}
