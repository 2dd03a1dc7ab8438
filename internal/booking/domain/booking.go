package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	sharedDomain "github.com/tutorhive/tutorhive/internal/shared/domain"
)

var (
	ErrLessonInPast          = errors.New("lesson must be scheduled in the future")
	ErrSameParties           = errors.New("student and instructor must differ")
	ErrAlreadyCancelled      = errors.New("booking is already cancelled")
	ErrCannotCancelCompleted = errors.New("completed booking cannot be cancelled")
	ErrBookingCancelled      = errors.New("booking is cancelled")
	ErrPaymentAlreadyApplied = errors.New("payment already applied")
	ErrPaymentNotPending     = errors.New("payment is not pending")
	ErrPaymentNotCompleted   = errors.New("payment is not completed")
	ErrPaymentRefInFlight    = errors.New("another payment reference is in flight")
	ErrRefundAlreadyTried    = errors.New("refund was already attempted")
	ErrNoRefundInFlight      = errors.New("no refund attempt in flight")
	ErrNotCancelled          = errors.New("booking is not cancelled")
	ErrNotConfirmed          = errors.New("booking is not confirmed")
)

// FreeCancellationWindow is the default window before the lesson start in
// which a cancellation is still eligible for a full refund. It encodes a
// business policy and is overridable through configuration.
const FreeCancellationWindow = 24 * time.Hour

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal reports whether no further status transition is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// PaymentStatus is the payment lifecycle state, orthogonal to Status but
// jointly constrained: a completed lesson implies a completed payment, and
// a cancelled booking never keeps an unresolved completed payment silently.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentFailed    PaymentStatus = "failed"
)

// CancelledBy identifies which party requested a cancellation.
type CancelledBy string

const (
	CancelledByStudent    CancelledBy = "student"
	CancelledByInstructor CancelledBy = "instructor"
	CancelledBySystem     CancelledBy = "system"
)

// Booking is a scheduled lesson between a student and an instructor with
// its own payment lifecycle. All state transitions go through guarded
// methods; callers never write status fields directly.
type Booking struct {
	sharedDomain.BaseAggregateRoot
	studentID    uuid.UUID
	instructorID uuid.UUID
	scheduledAt  time.Time
	price        sharedDomain.Money

	status        Status
	paymentStatus PaymentStatus

	paymentRef *string
	transferID *string

	cancelledAt        *time.Time
	cancelledBy        CancelledBy
	cancellationReason string
	completedAt        *time.Time

	refundAttempted bool
	reviewReason    *string
}

// NewBooking creates a pending booking for a future lesson.
func NewBooking(studentID, instructorID uuid.UUID, scheduledAt time.Time, price sharedDomain.Money, now time.Time) (*Booking, error) {
	if !scheduledAt.After(now) {
		return nil, ErrLessonInPast
	}
	if studentID == instructorID {
		return nil, ErrSameParties
	}

	return &Booking{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		studentID:         studentID,
		instructorID:      instructorID,
		scheduledAt:       scheduledAt.UTC(),
		price:             price,
		status:            StatusPending,
		paymentStatus:     PaymentPending,
	}, nil
}

func (b *Booking) StudentID() uuid.UUID         { return b.studentID }
func (b *Booking) InstructorID() uuid.UUID      { return b.instructorID }
func (b *Booking) ScheduledAt() time.Time       { return b.scheduledAt }
func (b *Booking) Price() sharedDomain.Money    { return b.price }
func (b *Booking) Status() Status               { return b.status }
func (b *Booking) PaymentStatus() PaymentStatus { return b.paymentStatus }
func (b *Booking) PaymentRef() *string          { return b.paymentRef }
func (b *Booking) TransferID() *string          { return b.transferID }
func (b *Booking) CancelledAt() *time.Time      { return b.cancelledAt }
func (b *Booking) CancelledBy() CancelledBy     { return b.cancelledBy }
func (b *Booking) CancellationReason() string   { return b.cancellationReason }
func (b *Booking) CompletedAt() *time.Time      { return b.completedAt }
func (b *Booking) RefundAttempted() bool        { return b.refundAttempted }
func (b *Booking) ReviewReason() *string        { return b.reviewReason }

// IsParty reports whether the given user is the student or the instructor.
func (b *Booking) IsParty(userID uuid.UUID) bool {
	return userID == b.studentID || userID == b.instructorID
}

// CounterpartyOf returns the other party of the booking.
func (b *Booking) CounterpartyOf(userID uuid.UUID) uuid.UUID {
	if userID == b.studentID {
		return b.instructorID
	}
	return b.studentID
}

// SetPaymentRef records the in-flight payment reference issued by the
// processor. While payment is still pending a re-issued checkout session
// replaces the previous reference; once payment resolved, the reference is
// immutable so reconciliation maps each reference to exactly one outcome.
func (b *Booking) SetPaymentRef(ref string) error {
	if b.paymentStatus != PaymentPending {
		return ErrPaymentRefInFlight
	}
	b.paymentRef = &ref
	b.Touch()
	return nil
}

// ConfirmPayment applies a successful-payment signal exactly once. A
// cancelled booking rejects the confirmation: that race is an anomaly the
// caller resolves by refunding. A second confirmation for an already
// completed payment returns ErrPaymentAlreadyApplied so callers can treat
// it as an idempotent no-op.
func (b *Booking) ConfirmPayment(paymentRef string) error {
	switch {
	case b.status == StatusCancelled:
		return ErrBookingCancelled
	case b.paymentStatus == PaymentCompleted:
		return ErrPaymentAlreadyApplied
	case b.paymentStatus != PaymentPending:
		return ErrPaymentNotPending
	}

	b.paymentStatus = PaymentCompleted
	b.paymentRef = &paymentRef
	if b.status == StatusPending {
		b.status = StatusConfirmed
	}
	b.Touch()
	b.AddDomainEvent(NewPaymentCompleted(b))
	return nil
}

// RecordTransfer stores the id of the split-payment transfer to the
// instructor once, keeping confirmation idempotent with respect to payouts.
func (b *Booking) RecordTransfer(transferID string) {
	if b.transferID != nil {
		return
	}
	b.transferID = &transferID
	b.Touch()
}

// WithinFreeCancellation reports whether a cancellation at now still falls
// inside the free-cancellation window. The boundary is inclusive: exactly
// window before the lesson is still eligible.
func (b *Booking) WithinFreeCancellation(now time.Time, window time.Duration) bool {
	return !b.scheduledAt.Add(-window).Before(now)
}

// Cancel transitions the booking to cancelled. Terminal states reject the
// transition: an already-cancelled booking reports ErrAlreadyCancelled so
// callers can treat repeated cancels as idempotent, a completed booking
// reports ErrCannotCancelCompleted.
func (b *Booking) Cancel(by CancelledBy, reason string, refundEligible bool, now time.Time) error {
	if b.status == StatusCancelled {
		return ErrAlreadyCancelled
	}
	if b.status == StatusCompleted {
		return ErrCannotCancelCompleted
	}

	now = now.UTC()
	b.status = StatusCancelled
	b.cancelledAt = &now
	b.cancelledBy = by
	b.cancellationReason = reason
	b.Touch()
	b.AddDomainEvent(NewBookingCancelled(b, refundEligible))
	return nil
}

// BeginRefund marks the single permitted refund attempt. It fails when the
// payment is not completed, no payment reference exists, or a refund was
// already attempted; re-attempting a refund without operator involvement
// risks double-refunding.
func (b *Booking) BeginRefund() error {
	if b.paymentStatus != PaymentCompleted {
		return ErrPaymentNotCompleted
	}
	if b.paymentRef == nil {
		return ErrPaymentNotCompleted
	}
	if b.refundAttempted {
		return ErrRefundAlreadyTried
	}
	b.refundAttempted = true
	b.Touch()
	return nil
}

// BeginAnomalyRefund marks the refund attempt for a payment that succeeded
// after the booking was already cancelled. The payment is never marked
// completed on this path; the reference is adopted so the refund can be
// correlated.
func (b *Booking) BeginAnomalyRefund(paymentRef string) error {
	if b.status != StatusCancelled {
		return ErrNotCancelled
	}
	if b.refundAttempted {
		return ErrRefundAlreadyTried
	}
	if b.paymentRef == nil {
		b.paymentRef = &paymentRef
	}
	b.refundAttempted = true
	b.Touch()
	return nil
}

// CompleteRefund records a successful refund. Requires an in-flight attempt
// started by BeginRefund or BeginAnomalyRefund.
func (b *Booking) CompleteRefund(refundID string) error {
	if !b.refundAttempted {
		return ErrNoRefundInFlight
	}
	b.paymentStatus = PaymentRefunded
	b.Touch()
	b.AddDomainEvent(NewRefundIssued(b, refundID))
	return nil
}

// FailRefund records a refund failure or unknown outcome for manual
// follow-up. The payment stays completed; the booking is flagged rather
// than silently dropped because the exposure is financial.
func (b *Booking) FailRefund(reason string) {
	b.reviewReason = &reason
	b.Touch()
	b.AddDomainEvent(NewRefundFailed(b, reason))
}

// FlagForReview marks a consistency anomaly for manual reconciliation.
func (b *Booking) FlagForReview(reason string) {
	b.reviewReason = &reason
	b.Touch()
	b.AddDomainEvent(NewPaymentAnomaly(b, reason))
}

// FailPayment resolves a never-completed payment: the booking is cancelled
// by the system and the payment marked failed. Used by reconciliation for
// abandoned or failed remote payments. A booking cancelled before its
// payment resolved keeps its cancellation record; only the payment is
// closed out.
func (b *Booking) FailPayment(reason string, now time.Time) error {
	if b.paymentStatus != PaymentPending {
		return ErrPaymentNotPending
	}
	if b.status != StatusCancelled {
		if err := b.Cancel(CancelledBySystem, reason, false, now); err != nil {
			return err
		}
	}
	b.paymentStatus = PaymentFailed
	b.Touch()
	b.AddDomainEvent(NewPaymentFailed(b, reason))
	return nil
}

// Complete marks the lesson as delivered. Requires a confirmed booking
// with a completed payment.
func (b *Booking) Complete(now time.Time) error {
	if b.status != StatusConfirmed {
		return ErrNotConfirmed
	}
	if b.paymentStatus != PaymentCompleted {
		return ErrPaymentNotCompleted
	}
	now = now.UTC()
	b.status = StatusCompleted
	b.completedAt = &now
	b.Touch()
	return nil
}

// RehydrateBooking recreates a booking from persisted state.
func RehydrateBooking(
	id uuid.UUID,
	studentID, instructorID uuid.UUID,
	scheduledAt time.Time,
	price sharedDomain.Money,
	status Status,
	paymentStatus PaymentStatus,
	paymentRef, transferID *string,
	cancelledAt *time.Time,
	cancelledBy CancelledBy,
	cancellationReason string,
	completedAt *time.Time,
	refundAttempted bool,
	reviewReason *string,
	version int,
	createdAt, updatedAt time.Time,
) *Booking {
	return &Booking{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), version),
		studentID:          studentID,
		instructorID:       instructorID,
		scheduledAt:        scheduledAt,
		price:              price,
		status:             status,
		paymentStatus:      paymentStatus,
		paymentRef:         paymentRef,
		transferID:         transferID,
		cancelledAt:        cancelledAt,
		cancelledBy:        cancelledBy,
		cancellationReason: cancellationReason,
		completedAt:        completedAt,
		refundAttempted:    refundAttempted,
		reviewReason:       reviewReason,
	}
}
