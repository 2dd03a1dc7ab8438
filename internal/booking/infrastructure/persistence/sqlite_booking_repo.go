package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
	sharedDomain "github.com/tutorhive/tutorhive/internal/shared/domain"
)

// SQLiteBookingRepository implements domain.BookingRepository using SQLite.
// Used by the local single-process mode; it carries the same conditional
// save semantics as the PostgreSQL repository.
type SQLiteBookingRepository struct {
	dbConn *sql.DB
}

// NewSQLiteBookingRepository creates a new SQLite booking repository.
func NewSQLiteBookingRepository(dbConn *sql.DB) *SQLiteBookingRepository {
	return &SQLiteBookingRepository{dbConn: dbConn}
}

// Save persists a booking with compare-and-set on the version column.
func (r *SQLiteBookingRepository) Save(ctx context.Context, booking *domain.Booking) error {
	var cancelledBy *string
	if booking.CancelledBy() != "" {
		s := string(booking.CancelledBy())
		cancelledBy = &s
	}

	if booking.Version() == 0 {
		query := `
			INSERT INTO bookings (
				id, student_id, instructor_id, scheduled_at, amount_minor, currency,
				status, payment_status, payment_ref, transfer_id,
				cancelled_at, cancelled_by, cancellation_reason, completed_at,
				refund_attempted, review_reason, version, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		`
		_, err := r.dbConn.ExecContext(ctx, query,
			booking.ID().String(),
			booking.StudentID().String(),
			booking.InstructorID().String(),
			booking.ScheduledAt().Format(time.RFC3339),
			booking.Price().Amount(),
			booking.Price().Currency(),
			string(booking.Status()),
			string(booking.PaymentStatus()),
			booking.PaymentRef(),
			booking.TransferID(),
			formatNullableTime(booking.CancelledAt()),
			cancelledBy,
			booking.CancellationReason(),
			formatNullableTime(booking.CompletedAt()),
			boolToInt(booking.RefundAttempted()),
			booking.ReviewReason(),
			booking.CreatedAt().Format(time.RFC3339),
			booking.UpdatedAt().Format(time.RFC3339),
		)
		if err != nil {
			return err
		}
		booking.SetVersion(1)
		return nil
	}

	query := `
		UPDATE bookings SET
			status = ?, payment_status = ?, payment_ref = ?, transfer_id = ?,
			cancelled_at = ?, cancelled_by = ?, cancellation_reason = ?,
			completed_at = ?, refund_attempted = ?, review_reason = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`
	result, err := r.dbConn.ExecContext(ctx, query,
		string(booking.Status()),
		string(booking.PaymentStatus()),
		booking.PaymentRef(),
		booking.TransferID(),
		formatNullableTime(booking.CancelledAt()),
		cancelledBy,
		booking.CancellationReason(),
		formatNullableTime(booking.CompletedAt()),
		boolToInt(booking.RefundAttempted()),
		booking.ReviewReason(),
		time.Now().UTC().Format(time.RFC3339),
		booking.ID().String(),
		booking.Version(),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrStaleBooking
	}
	booking.SetVersion(booking.Version() + 1)
	return nil
}

// FindByID retrieves a booking by its ID.
func (r *SQLiteBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	query := `
		SELECT id, student_id, instructor_id, scheduled_at, amount_minor, currency,
		       status, payment_status, payment_ref, transfer_id,
		       cancelled_at, cancelled_by, cancellation_reason, completed_at,
		       refund_attempted, review_reason, version, created_at, updated_at
		FROM bookings WHERE id = ?
	`
	booking, err := scanSQLiteBooking(r.dbConn.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return booking, nil
}

// FindStalePending retrieves pending-payment bookings created before the cutoff.
func (r *SQLiteBookingRepository) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Booking, error) {
	query := `
		SELECT id, student_id, instructor_id, scheduled_at, amount_minor, currency,
		       status, payment_status, payment_ref, transfer_id,
		       cancelled_at, cancelled_by, cancellation_reason, completed_at,
		       refund_attempted, review_reason, version, created_at, updated_at
		FROM bookings
		WHERE payment_status = ? AND created_at < ?
		ORDER BY created_at ASC
		LIMIT ?
	`
	rows, err := r.dbConn.QueryContext(ctx, query,
		string(domain.PaymentPending), createdBefore.Format(time.RFC3339), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]*domain.Booking, 0)
	for rows.Next() {
		booking, err := scanSQLiteBooking(rows)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteBooking(row rowScanner) (*domain.Booking, error) {
	var (
		idStr, studentStr, instructorStr     string
		scheduledStr, createdStr, updatedStr string
		amountMinor                          int64
		currency, status, paymentStatus      string
		paymentRef, transferID, reviewReason *string
		cancelledStr, cancelledBy            *string
		cancellationReason                   string
		completedStr                         *string
		refundAttempted                      int
		version                              int
	)

	err := row.Scan(
		&idStr, &studentStr, &instructorStr, &scheduledStr, &amountMinor, &currency,
		&status, &paymentStatus, &paymentRef, &transferID,
		&cancelledStr, &cancelledBy, &cancellationReason, &completedStr,
		&refundAttempted, &reviewReason, &version, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, err
	}
	studentID, err := uuid.Parse(studentStr)
	if err != nil {
		return nil, err
	}
	instructorID, err := uuid.Parse(instructorStr)
	if err != nil {
		return nil, err
	}
	scheduledAt, err := time.Parse(time.RFC3339, scheduledStr)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339, createdStr)
	if err != nil {
		return nil, err
	}
	updatedAt, err := time.Parse(time.RFC3339, updatedStr)
	if err != nil {
		return nil, err
	}
	cancelledAt, err := parseNullableTime(cancelledStr)
	if err != nil {
		return nil, err
	}
	completedAt, err := parseNullableTime(completedStr)
	if err != nil {
		return nil, err
	}

	var by domain.CancelledBy
	if cancelledBy != nil {
		by = domain.CancelledBy(*cancelledBy)
	}

	return domain.RehydrateBooking(
		id, studentID, instructorID,
		scheduledAt,
		sharedDomain.RehydrateMoney(amountMinor, currency),
		domain.Status(status),
		domain.PaymentStatus(paymentStatus),
		paymentRef, transferID,
		cancelledAt, by, cancellationReason,
		completedAt,
		refundAttempted != 0,
		reviewReason,
		version,
		createdAt, updatedAt,
	), nil
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func parseNullableTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
