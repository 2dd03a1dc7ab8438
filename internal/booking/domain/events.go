package domain

import (
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/tutorhive/tutorhive/internal/shared/domain"
)

const (
	AggregateType = "Booking"

	RoutingKeyPaymentCompleted = "booking.payment.completed"
	RoutingKeyPaymentFailed    = "booking.payment.failed"
	RoutingKeyPaymentAnomaly   = "booking.payment.anomaly"
	RoutingKeyBookingCancelled = "booking.cancelled"
	RoutingKeyRefundIssued     = "booking.refund.issued"
	RoutingKeyRefundFailed     = "booking.refund.failed"
)

// PaymentCompletedEvent is emitted when a booking's payment is confirmed.
// The Event suffix keeps it distinct from the PaymentCompleted status value.
type PaymentCompletedEvent struct {
	sharedDomain.BaseEvent
	StudentID    uuid.UUID `json:"student_id"`
	InstructorID uuid.UUID `json:"instructor_id"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	PaymentRef   string    `json:"payment_ref"`
}

// NewPaymentCompleted creates a PaymentCompletedEvent.
func NewPaymentCompleted(b *Booking) PaymentCompletedEvent {
	var ref string
	if b.PaymentRef() != nil {
		ref = *b.PaymentRef()
	}
	return PaymentCompletedEvent{
		BaseEvent:    sharedDomain.NewBaseEvent(b.ID(), AggregateType, RoutingKeyPaymentCompleted),
		StudentID:    b.StudentID(),
		InstructorID: b.InstructorID(),
		ScheduledAt:  b.ScheduledAt(),
		Amount:       b.Price().Amount(),
		Currency:     b.Price().Currency(),
		PaymentRef:   ref,
	}
}

// PaymentFailedEvent is emitted when reconciliation resolves a pending
// payment as failed or abandoned.
type PaymentFailedEvent struct {
	sharedDomain.BaseEvent
	StudentID    uuid.UUID `json:"student_id"`
	InstructorID uuid.UUID `json:"instructor_id"`
	Reason       string    `json:"reason"`
}

// NewPaymentFailed creates a PaymentFailedEvent.
func NewPaymentFailed(b *Booking, reason string) PaymentFailedEvent {
	return PaymentFailedEvent{
		BaseEvent:    sharedDomain.NewBaseEvent(b.ID(), AggregateType, RoutingKeyPaymentFailed),
		StudentID:    b.StudentID(),
		InstructorID: b.InstructorID(),
		Reason:       reason,
	}
}

// PaymentAnomaly is emitted when local and remote payment state diverged in
// a way that was auto-resolved but still needs operator visibility.
type PaymentAnomaly struct {
	sharedDomain.BaseEvent
	Reason string `json:"reason"`
}

// NewPaymentAnomaly creates a PaymentAnomaly event.
func NewPaymentAnomaly(b *Booking, reason string) PaymentAnomaly {
	return PaymentAnomaly{
		BaseEvent: sharedDomain.NewBaseEvent(b.ID(), AggregateType, RoutingKeyPaymentAnomaly),
		Reason:    reason,
	}
}

// BookingCancelled is emitted when a booking is cancelled. RefundEligible
// tells the notification side whether a refund is being processed.
type BookingCancelled struct {
	sharedDomain.BaseEvent
	StudentID      uuid.UUID `json:"student_id"`
	InstructorID   uuid.UUID `json:"instructor_id"`
	CancelledBy    string    `json:"cancelled_by"`
	Reason         string    `json:"reason"`
	RefundEligible bool      `json:"refund_eligible"`
}

// NewBookingCancelled creates a BookingCancelled event.
func NewBookingCancelled(b *Booking, refundEligible bool) BookingCancelled {
	return BookingCancelled{
		BaseEvent:      sharedDomain.NewBaseEvent(b.ID(), AggregateType, RoutingKeyBookingCancelled),
		StudentID:      b.StudentID(),
		InstructorID:   b.InstructorID(),
		CancelledBy:    string(b.CancelledBy()),
		Reason:         b.CancellationReason(),
		RefundEligible: refundEligible,
	}
}

// RefundIssued is emitted when a refund succeeded.
type RefundIssued struct {
	sharedDomain.BaseEvent
	StudentID uuid.UUID `json:"student_id"`
	RefundID  string    `json:"refund_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

// NewRefundIssued creates a RefundIssued event.
func NewRefundIssued(b *Booking, refundID string) RefundIssued {
	return RefundIssued{
		BaseEvent: sharedDomain.NewBaseEvent(b.ID(), AggregateType, RoutingKeyRefundIssued),
		StudentID: b.StudentID(),
		RefundID:  refundID,
		Amount:    b.Price().Amount(),
		Currency:  b.Price().Currency(),
	}
}

// RefundFailed is emitted when a refund attempt failed or timed out. This
// is an operator alert: it represents unresolved financial exposure and is
// never downgraded to a warning.
type RefundFailed struct {
	sharedDomain.BaseEvent
	StudentID uuid.UUID `json:"student_id"`
	Reason    string    `json:"reason"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

// NewRefundFailed creates a RefundFailed event.
func NewRefundFailed(b *Booking, reason string) RefundFailed {
	return RefundFailed{
		BaseEvent: sharedDomain.NewBaseEvent(b.ID(), AggregateType, RoutingKeyRefundFailed),
		StudentID: b.StudentID(),
		Reason:    reason,
		Amount:    b.Price().Amount(),
		Currency:  b.Price().Currency(),
	}
}
