package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
	sharedDomain "github.com/tutorhive/tutorhive/internal/shared/domain"
	sharedPersistence "github.com/tutorhive/tutorhive/internal/shared/infrastructure/persistence"
)

// PostgresBookingRepository implements domain.BookingRepository using
// PostgreSQL. Saves of existing bookings are conditional on the aggregate
// version, so concurrent transitions cannot overwrite each other.
type PostgresBookingRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresBookingRepository creates a new PostgreSQL booking repository.
func NewPostgresBookingRepository(pool *pgxpool.Pool) *PostgresBookingRepository {
	return &PostgresBookingRepository{pool: pool}
}

// bookingRow represents a database row for bookings.
type bookingRow struct {
	ID                 uuid.UUID
	StudentID          uuid.UUID
	InstructorID       uuid.UUID
	ScheduledAt        time.Time
	AmountMinor        int64
	Currency           string
	Status             string
	PaymentStatus      string
	PaymentRef         *string
	TransferID         *string
	CancelledAt        *time.Time
	CancelledBy        *string
	CancellationReason string
	CompletedAt        *time.Time
	RefundAttempted    bool
	ReviewReason       *string
	Version            int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

const bookingColumns = `
	id, student_id, instructor_id, scheduled_at, amount_minor, currency,
	status, payment_status, payment_ref, transfer_id,
	cancelled_at, cancelled_by, cancellation_reason, completed_at,
	refund_attempted, review_reason, version, created_at, updated_at
`

// Save persists a booking. New bookings are inserted at version 1; existing
// bookings are updated only when the stored version still matches the
// loaded one, otherwise ErrStaleBooking is returned and the caller reloads.
func (r *PostgresBookingRepository) Save(ctx context.Context, booking *domain.Booking) error {
	exec := sharedPersistence.Executor(ctx, r.pool)

	var cancelledBy *string
	if booking.CancelledBy() != "" {
		s := string(booking.CancelledBy())
		cancelledBy = &s
	}

	if booking.Version() == 0 {
		query := `
			INSERT INTO bookings (` + bookingColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17, $18)
		`
		_, err := exec.Exec(ctx, query,
			booking.ID(),
			booking.StudentID(),
			booking.InstructorID(),
			booking.ScheduledAt(),
			booking.Price().Amount(),
			booking.Price().Currency(),
			string(booking.Status()),
			string(booking.PaymentStatus()),
			booking.PaymentRef(),
			booking.TransferID(),
			booking.CancelledAt(),
			cancelledBy,
			booking.CancellationReason(),
			booking.CompletedAt(),
			booking.RefundAttempted(),
			booking.ReviewReason(),
			booking.CreatedAt(),
			booking.UpdatedAt(),
		)
		if err != nil {
			return err
		}
		booking.SetVersion(1)
		return nil
	}

	query := `
		UPDATE bookings SET
			status = $1,
			payment_status = $2,
			payment_ref = $3,
			transfer_id = $4,
			cancelled_at = $5,
			cancelled_by = $6,
			cancellation_reason = $7,
			completed_at = $8,
			refund_attempted = $9,
			review_reason = $10,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $11 AND version = $12
	`
	tag, err := exec.Exec(ctx, query,
		string(booking.Status()),
		string(booking.PaymentStatus()),
		booking.PaymentRef(),
		booking.TransferID(),
		booking.CancelledAt(),
		cancelledBy,
		booking.CancellationReason(),
		booking.CompletedAt(),
		booking.RefundAttempted(),
		booking.ReviewReason(),
		booking.ID(),
		booking.Version(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleBooking
	}
	booking.SetVersion(booking.Version() + 1)
	return nil
}

// FindByID retrieves a booking by its ID.
func (r *PostgresBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	row, err := scanBookingRow(exec.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rowToBooking(row)
}

// FindStalePending retrieves bookings whose payment never resolved, oldest
// first. These are the reconciliation sweeper's candidates.
func (r *PostgresBookingRepository) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Booking, error) {
	exec := sharedPersistence.Executor(ctx, r.pool)

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE payment_status = $1 AND created_at < $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := exec.Query(ctx, query, string(domain.PaymentPending), createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]*domain.Booking, 0)
	for rows.Next() {
		row, err := scanBookingRow(rows)
		if err != nil {
			return nil, err
		}
		booking, err := rowToBooking(row)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func scanBookingRow(row pgx.Row) (bookingRow, error) {
	var r bookingRow
	err := row.Scan(
		&r.ID,
		&r.StudentID,
		&r.InstructorID,
		&r.ScheduledAt,
		&r.AmountMinor,
		&r.Currency,
		&r.Status,
		&r.PaymentStatus,
		&r.PaymentRef,
		&r.TransferID,
		&r.CancelledAt,
		&r.CancelledBy,
		&r.CancellationReason,
		&r.CompletedAt,
		&r.RefundAttempted,
		&r.ReviewReason,
		&r.Version,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func rowToBooking(row bookingRow) (*domain.Booking, error) {
	price := sharedDomain.RehydrateMoney(row.AmountMinor, row.Currency)

	var cancelledBy domain.CancelledBy
	if row.CancelledBy != nil {
		cancelledBy = domain.CancelledBy(*row.CancelledBy)
	}

	return domain.RehydrateBooking(
		row.ID,
		row.StudentID,
		row.InstructorID,
		row.ScheduledAt,
		price,
		domain.Status(row.Status),
		domain.PaymentStatus(row.PaymentStatus),
		row.PaymentRef,
		row.TransferID,
		row.CancelledAt,
		cancelledBy,
		row.CancellationReason,
		row.CompletedAt,
		row.RefundAttempted,
		row.ReviewReason,
		row.Version,
		row.CreatedAt,
		row.UpdatedAt,
	), nil
}
