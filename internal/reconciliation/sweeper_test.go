package reconciliation

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	bookingCommands "github.com/tutorhive/tutorhive/internal/booking/application/commands"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	sharedDomain "github.com/tutorhive/tutorhive/internal/shared/domain"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/outbox"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
	"github.com/tutorhive/tutorhive/pkg/observability"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

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

type mockOutboxRepo struct {
	mock.Mock
}

func (m *mockOutboxRepo) Save(ctx context.Context, msg *outbox.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *mockOutboxRepo) SaveBatch(ctx context.Context, msgs []*outbox.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockOutboxRepo) GetUnpublished(ctx context.Context, limit int) ([]*outbox.Message, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*outbox.Message), args.Error(1)
}

func (m *mockOutboxRepo) MarkPublished(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockOutboxRepo) MarkFailed(ctx context.Context, id int64, errMsg string, nextRetryAt time.Time) error {
	args := m.Called(ctx, id, errMsg, nextRetryAt)
	return args.Error(0)
}

func (m *mockOutboxRepo) MarkDead(ctx context.Context, id int64, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *mockOutboxRepo) DeleteOld(ctx context.Context, olderThanDays int) (int64, error) {
	args := m.Called(ctx, olderThanDays)
	return args.Get(0).(int64), args.Error(1)
}

type mockSearchProcessor struct {
	mock.Mock
	processor.Processor
}

func (m *mockSearchProcessor) SearchPaymentByMetadata(ctx context.Context, key, value string) (*processor.PaymentRecord, error) {
	args := m.Called(ctx, key, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.PaymentRecord), args.Error(1)
}

type mockConfirmer struct {
	mock.Mock
}

func (m *mockConfirmer) Handle(ctx context.Context, cmd bookingCommands.ConfirmPaymentCommand) (*bookingCommands.ConfirmPaymentResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bookingCommands.ConfirmPaymentResult), args.Error(1)
}

type mockUnitOfWork struct {
	mock.Mock
}

func (m *mockUnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(context.Context), args.Error(1)
}

func (m *mockUnitOfWork) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockUnitOfWork) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// stalePendingBooking rehydrates a pending booking created at the given
// instant, with or without a stored checkout session reference.
func stalePendingBooking(t *testing.T, createdAt time.Time, sessionRef *string) *domain.Booking {
	t.Helper()
	return domain.RehydrateBooking(
		uuid.New(), uuid.New(), uuid.New(),
		createdAt.Add(72*time.Hour),
		sharedDomain.RehydrateMoney(5000, "usd"),
		domain.StatusPending, domain.PaymentPending,
		sessionRef, nil,
		nil, "", "", nil,
		false, nil,
		1, createdAt, createdAt,
	)
}

type sweeperFixture struct {
	bookingRepo *mockBookingRepo
	outboxRepo  *mockOutboxRepo
	proc        *mockSearchProcessor
	confirmer   *mockConfirmer
	uow         *mockUnitOfWork
	metrics     *observability.InMemoryMetrics
	sweeper     *Sweeper
}

func newSweeperFixture(t *testing.T) *sweeperFixture {
	t.Helper()
	f := &sweeperFixture{
		bookingRepo: new(mockBookingRepo),
		outboxRepo:  new(mockOutboxRepo),
		proc:        new(mockSearchProcessor),
		confirmer:   new(mockConfirmer),
		uow:         new(mockUnitOfWork),
		metrics:     observability.NewInMemoryMetrics(),
	}
	f.sweeper = NewSweeper(
		f.bookingRepo, f.outboxRepo, f.proc, f.confirmer, f.uow,
		clock.NewFake(testNow), DefaultConfig(), f.metrics,
		slog.New(slog.DiscardHandler),
	)
	return f
}

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	cutoff := testNow.Add(-time.Hour)
	sessionRef := "cs_1"

	t.Run("empty batch does nothing", func(t *testing.T) {
		f := newSweeperFixture(t)
		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return([]*domain.Booking{}, nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Zero(t, summary.Checked)
		assert.Zero(t, summary.Fixed)
	})

	t.Run("remote success with session ref goes through the confirmer", func(t *testing.T) {
		f := newSweeperFixture(t)
		booking := stalePendingBooking(t, testNow.Add(-2*time.Hour), &sessionRef)

		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return([]*domain.Booking{booking}, nil)
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", booking.ID().String()).
			Return(&processor.PaymentRecord{Reference: "pi_1", State: processor.PaymentSucceeded}, nil)
		f.confirmer.On("Handle", mock.Anything, bookingCommands.ConfirmPaymentCommand{SessionID: "cs_1"}).
			Return(&bookingCommands.ConfirmPaymentResult{BookingID: booking.ID(), Outcome: bookingCommands.OutcomeApplied}, nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Checked)
		assert.Equal(t, 1, summary.Fixed)
		assert.Empty(t, summary.Errors)
		assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricSweepRepairs))
	})

	t.Run("confirmation already applied counts as clean", func(t *testing.T) {
		f := newSweeperFixture(t)
		booking := stalePendingBooking(t, testNow.Add(-2*time.Hour), &sessionRef)

		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return([]*domain.Booking{booking}, nil)
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", booking.ID().String()).
			Return(&processor.PaymentRecord{Reference: "pi_1", State: processor.PaymentSucceeded}, nil)
		f.confirmer.On("Handle", mock.Anything, mock.Anything).
			Return(&bookingCommands.ConfirmPaymentResult{Outcome: bookingCommands.OutcomeAlreadyApplied}, nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Zero(t, summary.Fixed)
	})

	t.Run("remote success without session ref is applied directly and flagged", func(t *testing.T) {
		f := newSweeperFixture(t)
		booking := stalePendingBooking(t, testNow.Add(-2*time.Hour), nil)
		txCtx := context.WithValue(ctx, "tx", "transaction") //nolint:staticcheck

		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return([]*domain.Booking{booking}, nil)
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", booking.ID().String()).
			Return(&processor.PaymentRecord{Reference: "pi_1", State: processor.PaymentSucceeded}, nil)
		f.uow.On("Begin", mock.Anything).Return(txCtx, nil)
		f.uow.On("Commit", txCtx).Return(nil)
		f.bookingRepo.On("FindByID", txCtx, booking.ID()).Return(booking, nil)
		f.bookingRepo.On("Save", txCtx, booking).Return(nil)
		f.outboxRepo.On("SaveBatch", txCtx, mock.AnythingOfType("[]*outbox.Message")).Return(nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Fixed)
		assert.Equal(t, domain.PaymentCompleted, booking.PaymentStatus())
		assert.Equal(t, domain.StatusConfirmed, booking.Status())
		require.NotNil(t, booking.ReviewReason())
		f.confirmer.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	})

	t.Run("remote canceled payment closes the booking out", func(t *testing.T) {
		f := newSweeperFixture(t)
		booking := stalePendingBooking(t, testNow.Add(-2*time.Hour), &sessionRef)
		txCtx := context.WithValue(ctx, "tx", "transaction") //nolint:staticcheck

		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return([]*domain.Booking{booking}, nil)
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", booking.ID().String()).
			Return(&processor.PaymentRecord{Reference: "pi_1", State: processor.PaymentCanceled}, nil)
		f.uow.On("Begin", mock.Anything).Return(txCtx, nil)
		f.uow.On("Commit", txCtx).Return(nil)
		f.bookingRepo.On("FindByID", txCtx, booking.ID()).Return(booking, nil)
		f.bookingRepo.On("Save", txCtx, booking).Return(nil)
		f.outboxRepo.On("SaveBatch", txCtx, mock.AnythingOfType("[]*outbox.Message")).Return(nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Fixed)
		assert.Equal(t, domain.StatusCancelled, booking.Status())
		assert.Equal(t, domain.PaymentFailed, booking.PaymentStatus())
		assert.Equal(t, "payment abandoned or failed", booking.CancellationReason())
		assert.Equal(t, domain.CancelledBySystem, booking.CancelledBy())
	})

	t.Run("no remote record inside abandonment threshold is left alone", func(t *testing.T) {
		f := newSweeperFixture(t)
		booking := stalePendingBooking(t, testNow.Add(-3*time.Hour), &sessionRef)

		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return([]*domain.Booking{booking}, nil)
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", booking.ID().String()).
			Return(nil, nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Zero(t, summary.Fixed)
		assert.Equal(t, domain.StatusPending, booking.Status())
	})

	t.Run("no remote record past abandonment threshold fails the payment", func(t *testing.T) {
		f := newSweeperFixture(t)
		booking := stalePendingBooking(t, testNow.Add(-25*time.Hour), &sessionRef)
		txCtx := context.WithValue(ctx, "tx", "transaction") //nolint:staticcheck

		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return([]*domain.Booking{booking}, nil)
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", booking.ID().String()).
			Return(nil, nil)
		f.uow.On("Begin", mock.Anything).Return(txCtx, nil)
		f.uow.On("Commit", txCtx).Return(nil)
		f.bookingRepo.On("FindByID", txCtx, booking.ID()).Return(booking, nil)
		f.bookingRepo.On("Save", txCtx, booking).Return(nil)
		f.outboxRepo.On("SaveBatch", txCtx, mock.AnythingOfType("[]*outbox.Message")).Return(nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Fixed)
		assert.Equal(t, "no payment attempted", booking.CancellationReason())
	})

	t.Run("cancelled unpaid booking is closed out without error", func(t *testing.T) {
		f := newSweeperFixture(t)
		createdAt := testNow.Add(-25 * time.Hour)
		cancelledAt := testNow.Add(-24 * time.Hour)
		booking := domain.RehydrateBooking(
			uuid.New(), uuid.New(), uuid.New(),
			createdAt.Add(72*time.Hour),
			sharedDomain.RehydrateMoney(5000, "usd"),
			domain.StatusCancelled, domain.PaymentPending,
			&sessionRef, nil,
			&cancelledAt, domain.CancelledByStudent, "changed plans", nil,
			false, nil,
			1, createdAt, createdAt,
		)
		txCtx := context.WithValue(ctx, "tx", "transaction") //nolint:staticcheck

		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return([]*domain.Booking{booking}, nil)
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", booking.ID().String()).
			Return(nil, nil)
		f.uow.On("Begin", mock.Anything).Return(txCtx, nil)
		f.uow.On("Commit", txCtx).Return(nil)
		f.bookingRepo.On("FindByID", txCtx, booking.ID()).Return(booking, nil)
		f.bookingRepo.On("Save", txCtx, booking).Return(nil)
		f.outboxRepo.On("SaveBatch", txCtx, mock.AnythingOfType("[]*outbox.Message")).Return(nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Empty(t, summary.Errors)
		assert.Equal(t, 1, summary.Fixed)
		assert.Equal(t, domain.PaymentFailed, booking.PaymentStatus())
		// The student's cancellation record is preserved.
		assert.Equal(t, domain.CancelledByStudent, booking.CancelledBy())
		assert.Equal(t, "changed plans", booking.CancellationReason())
	})

	t.Run("anomaly resolved by the confirmer counts as a repair", func(t *testing.T) {
		f := newSweeperFixture(t)
		booking := stalePendingBooking(t, testNow.Add(-2*time.Hour), &sessionRef)

		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return([]*domain.Booking{booking}, nil)
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", booking.ID().String()).
			Return(&processor.PaymentRecord{Reference: "pi_1", State: processor.PaymentSucceeded}, nil)
		f.confirmer.On("Handle", mock.Anything, bookingCommands.ConfirmPaymentCommand{SessionID: "cs_1"}).
			Return(&bookingCommands.ConfirmPaymentResult{BookingID: booking.ID(), Outcome: bookingCommands.OutcomeAnomaly}, nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, summary.Fixed)
		assert.Empty(t, summary.Errors)
		assert.Equal(t, int64(1), f.metrics.GetCounter(observability.MetricSweepRepairs))
	})

	t.Run("booking resolved by a live handler mid-sweep is skipped", func(t *testing.T) {
		f := newSweeperFixture(t)
		booking := stalePendingBooking(t, testNow.Add(-25*time.Hour), &sessionRef)
		resolved := stalePendingBooking(t, testNow.Add(-25*time.Hour), &sessionRef)
		require.NoError(t, resolved.ConfirmPayment("pi_live"))
		txCtx := context.WithValue(ctx, "tx", "transaction") //nolint:staticcheck

		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return([]*domain.Booking{booking}, nil)
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", booking.ID().String()).
			Return(nil, nil)
		f.uow.On("Begin", mock.Anything).Return(txCtx, nil)
		f.uow.On("Commit", txCtx).Return(nil)
		f.bookingRepo.On("FindByID", txCtx, booking.ID()).Return(resolved, nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Zero(t, summary.Fixed)
		f.bookingRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("per-item failure does not stop the batch", func(t *testing.T) {
		f := newSweeperFixture(t)
		broken := stalePendingBooking(t, testNow.Add(-2*time.Hour), &sessionRef)
		otherRef := "cs_2"
		healthy := stalePendingBooking(t, testNow.Add(-2*time.Hour), &otherRef)

		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).
			Return([]*domain.Booking{broken, healthy}, nil)
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", broken.ID().String()).
			Return(nil, errors.New("processor timeout"))
		f.proc.On("SearchPaymentByMetadata", mock.Anything, "booking_id", healthy.ID().String()).
			Return(&processor.PaymentRecord{Reference: "pi_2", State: processor.PaymentSucceeded}, nil)
		f.confirmer.On("Handle", mock.Anything, bookingCommands.ConfirmPaymentCommand{SessionID: "cs_2"}).
			Return(&bookingCommands.ConfirmPaymentResult{Outcome: bookingCommands.OutcomeApplied}, nil)

		summary, err := f.sweeper.RunOnce(ctx)

		require.NoError(t, err)
		assert.Equal(t, 2, summary.Checked)
		assert.Equal(t, 1, summary.Fixed)
		require.Len(t, summary.Errors, 1)
		assert.Equal(t, broken.ID(), summary.Errors[0].BookingID)
	})

	t.Run("selection failure aborts the run", func(t *testing.T) {
		f := newSweeperFixture(t)
		f.bookingRepo.On("FindStalePending", ctx, cutoff, 100).Return(nil, errors.New("db down"))

		_, err := f.sweeper.RunOnce(ctx)

		require.Error(t, err)
	})
}

func TestSweeper_StartStop(t *testing.T) {
	f := newSweeperFixture(t)

	require.NoError(t, f.sweeper.Start(context.Background()))
	assert.True(t, f.sweeper.IsRunning())

	// Second start is a no-op.
	require.NoError(t, f.sweeper.Start(context.Background()))

	f.sweeper.Stop()
	assert.False(t, f.sweeper.IsRunning())

	// Second stop is a no-op.
	f.sweeper.Stop()
}
