package commands

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
	sharedApplication "github.com/tutorhive/tutorhive/internal/shared/application"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/outbox"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
)

// CancelBookingCommand contains the data needed to cancel a booking.
type CancelBookingCommand struct {
	BookingID   uuid.UUID
	RequesterID uuid.UUID
	Reason      string
}

// CancelBookingResult contains the outcome of a cancellation.
type CancelBookingResult struct {
	AlreadyCancelled bool
	Refunded         bool
	RefundFailed     bool
}

// CancelBookingHandler handles the CancelBookingCommand.
type CancelBookingHandler struct {
	bookingRepo domain.BookingRepository
	outboxRepo  outbox.Repository
	proc        processor.Processor
	uow         sharedApplication.UnitOfWork
	clk         clock.Clock
	window      time.Duration
	logger      *slog.Logger
}

// NewCancelBookingHandler creates a new CancelBookingHandler.
func NewCancelBookingHandler(
	bookingRepo domain.BookingRepository,
	outboxRepo outbox.Repository,
	proc processor.Processor,
	uow sharedApplication.UnitOfWork,
	clk clock.Clock,
	window time.Duration,
	logger *slog.Logger,
) *CancelBookingHandler {
	return &CancelBookingHandler{
		bookingRepo: bookingRepo,
		outboxRepo:  outboxRepo,
		proc:        proc,
		uow:         uow,
		clk:         clk,
		window:      window,
		logger:      logger,
	}
}

// Handle cancels a booking and, when the cancellation falls inside the
// free-cancellation window and the payment completed, issues one refund.
// The cancellation commits before the refund call: refund plumbing must
// never block a cancellation, and a crashed refund leaves an attempted
// flag behind instead of a retry loop.
func (h *CancelBookingHandler) Handle(ctx context.Context, cmd CancelBookingCommand) (*CancelBookingResult, error) {
	now := h.clk.Now()
	result := &CancelBookingResult{}

	var booking *domain.Booking
	var refundRef string

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		var err error
		booking, err = h.bookingRepo.FindByID(txCtx, cmd.BookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return ErrBookingNotFound
		}
		if !booking.IsParty(cmd.RequesterID) {
			return ErrForbidden
		}

		by := domain.CancelledByStudent
		if cmd.RequesterID == booking.InstructorID() {
			by = domain.CancelledByInstructor
		}

		refundEligible := booking.WithinFreeCancellation(now, h.window) &&
			booking.PaymentStatus() == domain.PaymentCompleted &&
			booking.PaymentRef() != nil

		switch err := booking.Cancel(by, cmd.Reason, refundEligible, now); {
		case err == nil:
		case errors.Is(err, domain.ErrAlreadyCancelled):
			result.AlreadyCancelled = true
			return nil
		default:
			return err
		}

		if refundEligible {
			if err := booking.BeginRefund(); err != nil {
				return err
			}
			refundRef = *booking.PaymentRef()
		}

		events := booking.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(cmd.RequesterID))
		msgs, err := outbox.FromEvents(events)
		if err != nil {
			return err
		}
		if err := h.outboxRepo.SaveBatch(txCtx, msgs); err != nil {
			return err
		}
		return h.bookingRepo.Save(txCtx, booking)
	})
	if err != nil {
		return nil, err
	}
	if result.AlreadyCancelled || refundRef == "" {
		return result, nil
	}

	// The refund call runs outside any transaction. A failure or timeout
	// is an unknown outcome: record it for manual follow-up, never retry.
	refund, refundErr := h.proc.IssueRefund(ctx, refundRef, 0)

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		fresh, err := h.bookingRepo.FindByID(txCtx, cmd.BookingID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return ErrBookingNotFound
		}
		if refundErr != nil {
			fresh.FailRefund(refundErr.Error())
			result.RefundFailed = true
		} else {
			if err := fresh.CompleteRefund(refund.ID); err != nil {
				return err
			}
			result.Refunded = true
		}

		events := fresh.DomainEvents()
		sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(cmd.RequesterID))
		msgs, err := outbox.FromEvents(events)
		if err != nil {
			return err
		}
		if err := h.outboxRepo.SaveBatch(txCtx, msgs); err != nil {
			return err
		}
		return h.bookingRepo.Save(txCtx, fresh)
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record refund outcome",
			slog.String("booking_id", cmd.BookingID.String()),
			slog.Bool("refund_succeeded", refundErr == nil),
			slog.String("error", err.Error()))
		return nil, err
	}
	if refundErr != nil {
		h.logger.ErrorContext(ctx, "refund failed, booking stays cancelled",
			slog.String("booking_id", cmd.BookingID.String()),
			slog.String("error", refundErr.Error()))
	}

	return result, nil
}
