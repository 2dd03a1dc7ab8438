package queries

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
	sharedDomain "github.com/tutorhive/tutorhive/internal/shared/domain"
)

type mockBookingRepo struct {
	mock.Mock
}

func (m *mockBookingRepo) Save(ctx context.Context, booking *domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *mockBookingRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *mockBookingRepo) FindStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]*domain.Booking, error) {
	args := m.Called(ctx, createdBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Booking), args.Error(1)
}

func TestGetBookingHandler_Handle(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	price, err := sharedDomain.NewMoney(5000, "usd")
	require.NoError(t, err)

	newBooking := func(t *testing.T) *domain.Booking {
		t.Helper()
		b, err := domain.NewBooking(uuid.New(), uuid.New(), now.Add(48*time.Hour), price, now)
		require.NoError(t, err)
		return b
	}

	t.Run("returns the booking to a party", func(t *testing.T) {
		repo := new(mockBookingRepo)
		handler := NewGetBookingHandler(repo)

		ctx := context.Background()
		booking := newBooking(t)
		repo.On("FindByID", ctx, booking.ID()).Return(booking, nil)

		dto, err := handler.Handle(ctx, GetBookingQuery{
			BookingID:   booking.ID(),
			RequesterID: booking.InstructorID(),
		})

		require.NoError(t, err)
		assert.Equal(t, booking.ID(), dto.ID)
		assert.Equal(t, "pending", dto.Status)
		assert.Equal(t, "pending", dto.PaymentStatus)
		assert.Equal(t, int64(5000), dto.AmountMinor)
	})

	t.Run("hides the booking from a stranger", func(t *testing.T) {
		repo := new(mockBookingRepo)
		handler := NewGetBookingHandler(repo)

		ctx := context.Background()
		booking := newBooking(t)
		repo.On("FindByID", ctx, booking.ID()).Return(booking, nil)

		_, err := handler.Handle(ctx, GetBookingQuery{
			BookingID:   booking.ID(),
			RequesterID: uuid.New(),
		})

		assert.ErrorIs(t, err, ErrBookingNotFound)
	})

	t.Run("admin bypasses the party check", func(t *testing.T) {
		repo := new(mockBookingRepo)
		handler := NewGetBookingHandler(repo)

		ctx := context.Background()
		booking := newBooking(t)
		repo.On("FindByID", ctx, booking.ID()).Return(booking, nil)

		dto, err := handler.Handle(ctx, GetBookingQuery{
			BookingID: booking.ID(),
			Admin:     true,
		})

		require.NoError(t, err)
		assert.Equal(t, booking.ID(), dto.ID)
	})

	t.Run("missing booking", func(t *testing.T) {
		repo := new(mockBookingRepo)
		handler := NewGetBookingHandler(repo)

		ctx := context.Background()
		id := uuid.New()
		repo.On("FindByID", ctx, id).Return(nil, nil)

		_, err := handler.Handle(ctx, GetBookingQuery{BookingID: id})
		assert.ErrorIs(t, err, ErrBookingNotFound)
	})
}
