package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
	sharedApplication "github.com/tutorhive/tutorhive/internal/shared/application"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrForbidden       = errors.New("requester is not a party to this booking")
)

// Metadata keys embedded in checkout sessions so later confirmation and
// reconciliation can correlate the remote payment with the booking.
const (
	MetadataBookingID  = "booking_id"
	MetadataCouponCode = "coupon_code"
)

// StartCheckoutCommand contains the data needed to open a checkout session.
type StartCheckoutCommand struct {
	BookingID   uuid.UUID
	RequesterID uuid.UUID
	CouponCode  string
	SuccessURL  string
	CancelURL   string
}

// StartCheckoutResult contains the created session reference.
type StartCheckoutResult struct {
	SessionID   string
	RedirectURL string
	Amount      int64
	Currency    string
}

// StartCheckoutHandler handles the StartCheckoutCommand.
type StartCheckoutHandler struct {
	bookingRepo domain.BookingRepository
	couponRepo  domain.CouponRepository
	proc        processor.Processor
	uow         sharedApplication.UnitOfWork
	clk         clock.Clock
	logger      *slog.Logger
}

// NewStartCheckoutHandler creates a new StartCheckoutHandler.
func NewStartCheckoutHandler(
	bookingRepo domain.BookingRepository,
	couponRepo domain.CouponRepository,
	proc processor.Processor,
	uow sharedApplication.UnitOfWork,
	clk clock.Clock,
	logger *slog.Logger,
) *StartCheckoutHandler {
	return &StartCheckoutHandler{
		bookingRepo: bookingRepo,
		couponRepo:  couponRepo,
		proc:        proc,
		uow:         uow,
		clk:         clk,
		logger:      logger,
	}
}

// Handle opens a checkout session for a pending booking and records the
// session id as the in-flight payment reference. The payment status itself
// is not touched; only a confirmed remote payment moves it.
func (h *StartCheckoutHandler) Handle(ctx context.Context, cmd StartCheckoutCommand) (*StartCheckoutResult, error) {
	booking, err := h.bookingRepo.FindByID(ctx, cmd.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	if !booking.IsParty(cmd.RequesterID) {
		return nil, ErrForbidden
	}
	switch booking.Status() {
	case domain.StatusPending:
	case domain.StatusCancelled:
		return nil, domain.ErrBookingCancelled
	default:
		return nil, domain.ErrPaymentAlreadyApplied
	}

	amount := booking.Price().Amount()
	metadata := map[string]string{
		MetadataBookingID: booking.ID().String(),
	}
	if cmd.CouponCode != "" {
		coupon, err := h.couponRepo.FindByCode(ctx, cmd.CouponCode)
		if err != nil {
			// A broken coupon lookup never blocks checkout; the student
			// pays full price instead.
			h.logger.WarnContext(ctx, "coupon lookup failed, charging full price",
				slog.String("coupon_code", cmd.CouponCode),
				slog.String("booking_id", booking.ID().String()),
				slog.Any("error", err))
			coupon = nil
		}
		if coupon != nil && coupon.IsRedeemable(h.clk.Now()) {
			amount = coupon.Apply(amount)
			metadata[MetadataCouponCode] = coupon.Code()
		} else {
			h.logger.DebugContext(ctx, "coupon not redeemable, charging full price",
				slog.String("coupon_code", cmd.CouponCode),
				slog.String("booking_id", booking.ID().String()))
		}
	}

	// The outbound call happens outside any transaction.
	session, err := h.proc.CreateCheckoutSession(ctx, processor.SessionParams{
		Amount:      amount,
		Currency:    booking.Price().Currency(),
		ProductName: "Lesson booking",
		Metadata:    metadata,
		SuccessURL:  cmd.SuccessURL,
		CancelURL:   cmd.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		fresh, err := h.bookingRepo.FindByID(txCtx, cmd.BookingID)
		if err != nil {
			return err
		}
		if fresh == nil {
			return ErrBookingNotFound
		}
		if err := fresh.SetPaymentRef(session.ID); err != nil {
			return err
		}
		return h.bookingRepo.Save(txCtx, fresh)
	})
	if err != nil {
		return nil, err
	}

	return &StartCheckoutResult{
		SessionID:   session.ID,
		RedirectURL: session.URL,
		Amount:      amount,
		Currency:    booking.Price().Currency(),
	}, nil
}
