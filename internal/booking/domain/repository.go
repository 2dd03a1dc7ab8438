package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrStaleBooking is returned when a conditional save lost a race:
	// another path transitioned the booking since it was loaded. Callers
	// reload and re-evaluate rather than overwrite.
	ErrStaleBooking = errors.New("booking was modified concurrently")
)

// BookingRepository persists bookings. Save performs a compare-and-set on
// the aggregate version so two paths racing on the same booking cannot
// both apply a transition.
type BookingRepository interface {
	Save(ctx context.Context, booking *Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindStalePending returns bookings whose payment is still pending and
	// that were created before the cutoff, oldest first, bounded by limit.
	// This is the reconciliation sweeper's candidate selection.
	FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*Booking, error)
}

// CouponRepository persists coupons.
type CouponRepository interface {
	Save(ctx context.Context, coupon *Coupon) error
	FindByCode(ctx context.Context, code string) (*Coupon, error)
}
