// Package subscribers contains event consumers that translate domain events
// into user-facing notifications.
package subscribers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	bookingDomain "github.com/tutorhive/tutorhive/internal/booking/domain"
	"github.com/tutorhive/tutorhive/internal/notifications/application"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/eventbus"
)

// BookingSubscriber listens for booking lifecycle events and fans them out
// to the notifier. Delivery failures are logged and swallowed so a broken
// notification channel can never nack a financial event.
type BookingSubscriber struct {
	notifier application.Notifier
	logger   *slog.Logger
}

// NewBookingSubscriber creates a new booking notification subscriber.
func NewBookingSubscriber(notifier application.Notifier, logger *slog.Logger) *BookingSubscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookingSubscriber{
		notifier: notifier,
		logger:   logger,
	}
}

// EventTypes returns the event types this subscriber handles.
func (s *BookingSubscriber) EventTypes() []string {
	return []string{
		bookingDomain.RoutingKeyPaymentCompleted,
		bookingDomain.RoutingKeyPaymentFailed,
		bookingDomain.RoutingKeyPaymentAnomaly,
		bookingDomain.RoutingKeyBookingCancelled,
		bookingDomain.RoutingKeyRefundIssued,
		bookingDomain.RoutingKeyRefundFailed,
	}
}

// Handle processes a booking event.
func (s *BookingSubscriber) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	switch event.RoutingKey {
	case bookingDomain.RoutingKeyPaymentCompleted:
		return s.handlePaymentCompleted(ctx, event)
	case bookingDomain.RoutingKeyPaymentFailed:
		return s.handlePaymentFailed(ctx, event)
	case bookingDomain.RoutingKeyPaymentAnomaly:
		return s.handlePaymentAnomaly(ctx, event)
	case bookingDomain.RoutingKeyBookingCancelled:
		return s.handleBookingCancelled(ctx, event)
	case bookingDomain.RoutingKeyRefundIssued:
		return s.handleRefundIssued(ctx, event)
	case bookingDomain.RoutingKeyRefundFailed:
		return s.handleRefundFailed(ctx, event)
	default:
		s.logger.Warn("unknown event type",
			"routing_key", event.RoutingKey,
		)
		return nil
	}
}

// PaymentCompletedPayload is the payload for booking.payment.completed events.
type PaymentCompletedPayload struct {
	StudentID    uuid.UUID `json:"student_id"`
	InstructorID uuid.UUID `json:"instructor_id"`
	ScheduledAt  time.Time `json:"scheduled_at"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
}

func (s *BookingSubscriber) handlePaymentCompleted(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload PaymentCompletedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error("failed to unmarshal payment completed payload",
			"error", err,
		)
		return nil
	}

	data := map[string]any{
		"booking_id":   event.AggregateID,
		"scheduled_at": payload.ScheduledAt,
	}
	s.notify(ctx, payload.StudentID, application.TypePaymentReceipt,
		"Payment received",
		fmt.Sprintf("Your payment of %s was received. Your lesson is confirmed.", formatAmount(payload.Amount, payload.Currency)),
		data,
	)
	s.notify(ctx, payload.InstructorID, application.TypeBookingConfirmed,
		"Lesson booked",
		fmt.Sprintf("A lesson on %s has been booked and paid.", payload.ScheduledAt.Format("Jan 2, 2006 at 15:04 MST")),
		data,
	)
	return nil
}

// PaymentFailedPayload is the payload for booking.payment.failed events.
type PaymentFailedPayload struct {
	StudentID uuid.UUID `json:"student_id"`
	Reason    string    `json:"reason"`
}

func (s *BookingSubscriber) handlePaymentFailed(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload PaymentFailedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error("failed to unmarshal payment failed payload",
			"error", err,
		)
		return nil
	}

	s.notify(ctx, payload.StudentID, application.TypeBookingClosed,
		"Booking closed",
		"Your booking was closed because the payment did not complete. You have not been charged.",
		map[string]any{
			"booking_id": event.AggregateID,
			"reason":     payload.Reason,
		},
	)
	return nil
}

// PaymentAnomalyPayload is the payload for booking.payment.anomaly events.
type PaymentAnomalyPayload struct {
	Reason string `json:"reason"`
}

func (s *BookingSubscriber) handlePaymentAnomaly(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload PaymentAnomalyPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error("failed to unmarshal payment anomaly payload",
			"error", err,
		)
		return nil
	}

	// Operator alert only. Anomalies describe state divergence, not
	// something a student or instructor can act on.
	s.logger.Error("payment anomaly detected",
		"booking_id", event.AggregateID,
		"reason", payload.Reason,
	)
	return nil
}

// BookingCancelledPayload is the payload for booking.cancelled events.
type BookingCancelledPayload struct {
	StudentID      uuid.UUID `json:"student_id"`
	InstructorID   uuid.UUID `json:"instructor_id"`
	CancelledBy    string    `json:"cancelled_by"`
	Reason         string    `json:"reason"`
	RefundEligible bool      `json:"refund_eligible"`
}

func (s *BookingSubscriber) handleBookingCancelled(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload BookingCancelledPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error("failed to unmarshal booking cancelled payload",
			"error", err,
		)
		return nil
	}

	data := map[string]any{
		"booking_id":   event.AggregateID,
		"cancelled_by": payload.CancelledBy,
		"reason":       payload.Reason,
	}

	studentMessage := "Your lesson has been cancelled."
	if payload.RefundEligible {
		studentMessage = "Your lesson has been cancelled. A refund is on its way."
	}

	switch payload.CancelledBy {
	case string(bookingDomain.CancelledByStudent):
		s.notify(ctx, payload.InstructorID, application.TypeBookingCancelled,
			"Lesson cancelled",
			"The student has cancelled this lesson.",
			data,
		)
	case string(bookingDomain.CancelledByInstructor):
		s.notify(ctx, payload.StudentID, application.TypeBookingCancelled,
			"Lesson cancelled",
			studentMessage,
			data,
		)
	default:
		s.notify(ctx, payload.StudentID, application.TypeBookingCancelled,
			"Lesson cancelled",
			studentMessage,
			data,
		)
		s.notify(ctx, payload.InstructorID, application.TypeBookingCancelled,
			"Lesson cancelled",
			"This lesson has been cancelled.",
			data,
		)
	}
	return nil
}

// RefundIssuedPayload is the payload for booking.refund.issued events.
type RefundIssuedPayload struct {
	StudentID uuid.UUID `json:"student_id"`
	RefundID  string    `json:"refund_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

func (s *BookingSubscriber) handleRefundIssued(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload RefundIssuedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error("failed to unmarshal refund issued payload",
			"error", err,
		)
		return nil
	}

	s.notify(ctx, payload.StudentID, application.TypeRefundIssued,
		"Refund issued",
		fmt.Sprintf("A refund of %s has been issued. It may take a few days to appear on your statement.", formatAmount(payload.Amount, payload.Currency)),
		map[string]any{
			"booking_id": event.AggregateID,
			"refund_id":  payload.RefundID,
		},
	)
	return nil
}

// RefundFailedPayload is the payload for booking.refund.failed events.
type RefundFailedPayload struct {
	StudentID uuid.UUID `json:"student_id"`
	Reason    string    `json:"reason"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
}

func (s *BookingSubscriber) handleRefundFailed(ctx context.Context, event *eventbus.ConsumedEvent) error {
	var payload RefundFailedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		s.logger.Error("failed to unmarshal refund failed payload",
			"error", err,
		)
		return nil
	}

	// Unresolved financial exposure. The student is not notified until an
	// operator has resolved the refund.
	s.logger.Error("refund failed, operator action required",
		"booking_id", event.AggregateID,
		"student_id", payload.StudentID,
		"amount", payload.Amount,
		"currency", payload.Currency,
		"reason", payload.Reason,
	)
	return nil
}

func (s *BookingSubscriber) notify(ctx context.Context, userID uuid.UUID, notificationType, title, message string, data map[string]any) {
	if err := s.notifier.Notify(ctx, userID, notificationType, title, message, data); err != nil {
		s.logger.Warn("notification delivery failed",
			"user_id", userID,
			"type", notificationType,
			"error", err,
		)
	}
}

func formatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(amount)/100, strings.ToUpper(currency))
}
