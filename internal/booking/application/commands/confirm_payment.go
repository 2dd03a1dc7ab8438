package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
	sharedApplication "github.com/tutorhive/tutorhive/internal/shared/application"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/outbox"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
)

var ErrNoBookingRef = errors.New("session carries no booking reference")

// ConfirmOutcome describes what a confirmation attempt did.
type ConfirmOutcome string

const (
	// OutcomeApplied means the booking transitioned to confirmed/paid.
	OutcomeApplied ConfirmOutcome = "applied"
	// OutcomeAlreadyApplied means an earlier confirmation for the same
	// reference already ran; nothing changed.
	OutcomeAlreadyApplied ConfirmOutcome = "already_applied"
	// OutcomeNotPaid means the remote session is not paid; nothing changed.
	OutcomeNotPaid ConfirmOutcome = "not_paid"
	// OutcomeAnomaly means the payment succeeded after the booking was
	// cancelled; the payment is refunded instead of applied.
	OutcomeAnomaly ConfirmOutcome = "anomaly"
)

// ConfirmPaymentCommand contains the data needed to confirm a paid session.
type ConfirmPaymentCommand struct {
	SessionID string
}

// ConfirmPaymentResult contains the result of a confirmation attempt.
type ConfirmPaymentResult struct {
	BookingID  uuid.UUID
	Outcome    ConfirmOutcome
	TransferID string
	Refunded   bool
}

// InstructorAccounts resolves an instructor's payout account reference.
// An empty reference means the instructor has no connected account yet.
type InstructorAccounts interface {
	PayoutAccountFor(ctx context.Context, instructorID uuid.UUID) (string, error)
}

// ConfirmPaymentHandler handles the ConfirmPaymentCommand.
type ConfirmPaymentHandler struct {
	bookingRepo    domain.BookingRepository
	couponRepo     domain.CouponRepository
	outboxRepo     outbox.Repository
	proc           processor.Processor
	accounts       InstructorAccounts
	uow            sharedApplication.UnitOfWork
	clk            clock.Clock
	platformFeePct int
	logger         *slog.Logger
}

// NewConfirmPaymentHandler creates a new ConfirmPaymentHandler.
func NewConfirmPaymentHandler(
	bookingRepo domain.BookingRepository,
	couponRepo domain.CouponRepository,
	outboxRepo outbox.Repository,
	proc processor.Processor,
	accounts InstructorAccounts,
	uow sharedApplication.UnitOfWork,
	clk clock.Clock,
	platformFeePct int,
	logger *slog.Logger,
) *ConfirmPaymentHandler {
	return &ConfirmPaymentHandler{
		bookingRepo:    bookingRepo,
		couponRepo:     couponRepo,
		outboxRepo:     outboxRepo,
		proc:           proc,
		accounts:       accounts,
		uow:            uow,
		clk:            clk,
		platformFeePct: platformFeePct,
		logger:         logger,
	}
}

// Handle verifies the remote session and applies the payment to the booking.
// Confirmation is idempotent: a second call for the same reference is a
// no-op, and the instructor transfer is issued only when this call applied
// the transition and no transfer was recorded before.
func (h *ConfirmPaymentHandler) Handle(ctx context.Context, cmd ConfirmPaymentCommand) (*ConfirmPaymentResult, error) {
	session, err := h.proc.RetrieveSession(ctx, cmd.SessionID)
	if err != nil {
		return nil, err
	}
	if session.PaymentStatus != processor.SessionPaid {
		return &ConfirmPaymentResult{Outcome: OutcomeNotPaid}, nil
	}

	rawID, ok := session.Metadata[MetadataBookingID]
	if !ok {
		return nil, ErrNoBookingRef
	}
	bookingID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrNoBookingRef
	}

	result := &ConfirmPaymentResult{BookingID: bookingID}
	var booking *domain.Booking
	var refundBegun bool

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		var err error
		booking, err = h.bookingRepo.FindByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return ErrBookingNotFound
		}

		switch err := booking.ConfirmPayment(session.PaymentRef); {
		case err == nil:
			result.Outcome = OutcomeApplied
			h.redeemCoupon(txCtx, session.Metadata[MetadataCouponCode], bookingID)

		case errors.Is(err, domain.ErrPaymentAlreadyApplied):
			result.Outcome = OutcomeAlreadyApplied
			return nil

		case errors.Is(err, domain.ErrBookingCancelled):
			result.Outcome = OutcomeAnomaly
			if err := booking.BeginAnomalyRefund(session.PaymentRef); err != nil {
				if errors.Is(err, domain.ErrRefundAlreadyTried) {
					h.logger.WarnContext(txCtx, "anomaly payment already being refunded",
						slog.String("booking_id", bookingID.String()))
					return nil
				}
				return err
			}
			booking.FlagForReview("payment completed after cancellation")
			refundBegun = true

		default:
			return err
		}

		if err := h.bookingRepo.Save(txCtx, booking); err != nil {
			return err
		}
		return h.saveEvents(txCtx, booking)
	})
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case OutcomeApplied:
		transferID, err := h.issueTransfer(ctx, booking)
		if err != nil {
			// Unknown outcome. The sweeper or an operator picks it up;
			// a blind retry could double-pay the instructor.
			h.logger.ErrorContext(ctx, "instructor transfer failed",
				slog.String("booking_id", bookingID.String()),
				slog.String("error", err.Error()))
		}
		result.TransferID = transferID

	case OutcomeAnomaly:
		// Refund only when this call began the attempt. An attempt marked
		// by an earlier confirmation may already have a refund in flight.
		if refundBegun {
			result.Refunded = h.refundAnomaly(ctx, booking, session.PaymentRef)
		}
	}

	return result, nil
}

// redeemCoupon burns a use of the coupon recorded at checkout. Failures are
// logged and swallowed; the payment is already taken at this point.
func (h *ConfirmPaymentHandler) redeemCoupon(ctx context.Context, code string, bookingID uuid.UUID) {
	if code == "" {
		return
	}
	coupon, err := h.couponRepo.FindByCode(ctx, code)
	if err != nil || coupon == nil {
		h.logger.WarnContext(ctx, "coupon lookup failed on confirmation",
			slog.String("coupon_code", code),
			slog.String("booking_id", bookingID.String()))
		return
	}
	if err := coupon.Redeem(h.clk.Now()); err != nil {
		h.logger.WarnContext(ctx, "coupon no longer redeemable on confirmation",
			slog.String("coupon_code", code),
			slog.String("booking_id", bookingID.String()))
		return
	}
	if err := h.couponRepo.Save(ctx, coupon); err != nil {
		h.logger.WarnContext(ctx, "coupon save failed on confirmation",
			slog.String("coupon_code", code),
			slog.String("error", err.Error()))
	}
}

func (h *ConfirmPaymentHandler) issueTransfer(ctx context.Context, booking *domain.Booking) (string, error) {
	if booking.TransferID() != nil {
		return *booking.TransferID(), nil
	}

	accountID, err := h.accounts.PayoutAccountFor(ctx, booking.InstructorID())
	if err != nil {
		return "", err
	}
	if accountID == "" {
		return "", processor.ErrAccountNotFound
	}

	payout := booking.Price().Amount() * int64(100-h.platformFeePct) / 100
	transfer, err := h.proc.CreateTransfer(ctx, processor.TransferParams{
		Amount:             payout,
		Currency:           booking.Price().Currency(),
		DestinationAccount: accountID,
		Description:        "Lesson payout for booking " + booking.ID().String(),
	})
	if err != nil {
		return "", err
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		fresh, err := h.bookingRepo.FindByID(txCtx, booking.ID())
		if err != nil {
			return err
		}
		if fresh == nil {
			return ErrBookingNotFound
		}
		fresh.RecordTransfer(transfer.ID)
		return h.bookingRepo.Save(txCtx, fresh)
	})
	if err != nil {
		// The transfer went through; only the record is missing. Log it
		// loudly, the money already moved.
		h.logger.ErrorContext(ctx, "transfer issued but not recorded",
			slog.String("booking_id", booking.ID().String()),
			slog.String("transfer_id", transfer.ID),
			slog.String("error", err.Error()))
	}
	return transfer.ID, nil
}

func (h *ConfirmPaymentHandler) refundAnomaly(ctx context.Context, booking *domain.Booking, paymentRef string) bool {
	// Amount zero refunds the full charge, whatever was actually taken.
	refund, refundErr := h.proc.IssueRefund(ctx, paymentRef, 0)

	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		fresh, err := h.bookingRepo.FindByID(txCtx, booking.ID())
		if err != nil {
			return err
		}
		if fresh == nil {
			return ErrBookingNotFound
		}
		if refundErr != nil {
			fresh.FailRefund(refundErr.Error())
		} else if err := fresh.CompleteRefund(refund.ID); err != nil {
			return err
		}
		if err := h.bookingRepo.Save(txCtx, fresh); err != nil {
			return err
		}
		return h.saveEvents(txCtx, fresh)
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to record anomaly refund outcome",
			slog.String("booking_id", booking.ID().String()),
			slog.String("error", err.Error()))
		return false
	}
	return refundErr == nil
}

func (h *ConfirmPaymentHandler) saveEvents(txCtx context.Context, booking *domain.Booking) error {
	events := booking.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(uuid.Nil))

	msgs, err := outbox.FromEvents(events)
	if err != nil {
		return err
	}
	return h.outboxRepo.SaveBatch(txCtx, msgs)
}
