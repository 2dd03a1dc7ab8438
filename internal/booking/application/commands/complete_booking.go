package commands

import (
	"context"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
	sharedApplication "github.com/tutorhive/tutorhive/internal/shared/application"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
)

// CompleteBookingCommand marks a delivered lesson as completed.
type CompleteBookingCommand struct {
	BookingID   uuid.UUID
	RequesterID uuid.UUID
}

// CompleteBookingHandler handles the CompleteBookingCommand.
type CompleteBookingHandler struct {
	bookingRepo domain.BookingRepository
	uow         sharedApplication.UnitOfWork
	clk         clock.Clock
}

// NewCompleteBookingHandler creates a new CompleteBookingHandler.
func NewCompleteBookingHandler(bookingRepo domain.BookingRepository, uow sharedApplication.UnitOfWork, clk clock.Clock) *CompleteBookingHandler {
	return &CompleteBookingHandler{bookingRepo: bookingRepo, uow: uow, clk: clk}
}

// Handle executes the CompleteBookingCommand.
func (h *CompleteBookingHandler) Handle(ctx context.Context, cmd CompleteBookingCommand) error {
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		booking, err := h.bookingRepo.FindByID(txCtx, cmd.BookingID)
		if err != nil {
			return err
		}
		if booking == nil {
			return ErrBookingNotFound
		}
		if !booking.IsParty(cmd.RequesterID) {
			return ErrForbidden
		}
		if err := booking.Complete(h.clk.Now()); err != nil {
			return err
		}
		return h.bookingRepo.Save(txCtx, booking)
	})
}
