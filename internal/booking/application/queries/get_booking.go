package queries

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
)

// ErrBookingNotFound is returned when a booking is not found or the
// requester is not a party to it.
var ErrBookingNotFound = errors.New("booking not found")

// GetBookingQuery contains the parameters for getting a single booking.
type GetBookingQuery struct {
	BookingID   uuid.UUID
	RequesterID uuid.UUID
	// Admin bypasses the party check.
	Admin bool
}

// BookingDTO is the read model for a booking.
type BookingDTO struct {
	ID                 uuid.UUID
	StudentID          uuid.UUID
	InstructorID       uuid.UUID
	ScheduledAt        time.Time
	AmountMinor        int64
	Currency           string
	Status             string
	PaymentStatus      string
	PaymentRef         *string
	TransferID         *string
	CancelledAt        *time.Time
	CancelledBy        string
	CancellationReason string
	CompletedAt        *time.Time
	RefundAttempted    bool
	ReviewReason       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// GetBookingHandler handles the GetBookingQuery.
type GetBookingHandler struct {
	bookingRepo domain.BookingRepository
}

// NewGetBookingHandler creates a new GetBookingHandler.
func NewGetBookingHandler(bookingRepo domain.BookingRepository) *GetBookingHandler {
	return &GetBookingHandler{bookingRepo: bookingRepo}
}

// Handle executes the GetBookingQuery.
func (h *GetBookingHandler) Handle(ctx context.Context, query GetBookingQuery) (*BookingDTO, error) {
	booking, err := h.bookingRepo.FindByID(ctx, query.BookingID)
	if err != nil {
		return nil, err
	}
	if booking == nil {
		return nil, ErrBookingNotFound
	}
	if !query.Admin && !booking.IsParty(query.RequesterID) {
		// Not-found rather than forbidden, so existence is not leaked.
		return nil, ErrBookingNotFound
	}

	dto := BookingDTO{
		ID:                 booking.ID(),
		StudentID:          booking.StudentID(),
		InstructorID:       booking.InstructorID(),
		ScheduledAt:        booking.ScheduledAt(),
		AmountMinor:        booking.Price().Amount(),
		Currency:           booking.Price().Currency(),
		Status:             string(booking.Status()),
		PaymentStatus:      string(booking.PaymentStatus()),
		PaymentRef:         booking.PaymentRef(),
		TransferID:         booking.TransferID(),
		CancelledAt:        booking.CancelledAt(),
		CancelledBy:        string(booking.CancelledBy()),
		CancellationReason: booking.CancellationReason(),
		CompletedAt:        booking.CompletedAt(),
		RefundAttempted:    booking.RefundAttempted(),
		ReviewReason:       booking.ReviewReason(),
		CreatedAt:          booking.CreatedAt(),
		UpdatedAt:          booking.UpdatedAt(),
	}

	return &dto, nil
}
