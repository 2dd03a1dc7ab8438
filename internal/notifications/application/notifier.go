// Package application defines the notification dispatch port. Delivery is
// fire-and-forget: a failed notification is logged and dropped, it never
// affects the financial transaction that triggered it.
package application

import (
	"context"

	"github.com/google/uuid"
)

// Notification types fanned out by the booking subscriber.
const (
	TypePaymentReceipt   = "payment.receipt"
	TypeBookingConfirmed = "booking.confirmed"
	TypeBookingClosed    = "booking.closed"
	TypeBookingCancelled = "booking.cancelled"
	TypeRefundIssued     = "refund.issued"
)

// Notifier delivers a notification to a single user. Implementations must
// not block beyond the context deadline; callers treat any returned error
// as a delivery failure to log, not to propagate.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, notificationType, title, message string, data map[string]any) error
}
