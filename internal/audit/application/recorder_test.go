package application

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tutorhive/tutorhive/internal/audit/domain"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
)

type mockEntryRepo struct {
	mock.Mock
}

func (m *mockEntryRepo) Append(ctx context.Context, entry domain.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockEntryRepo) FindByPeriod(ctx context.Context, from, to time.Time) ([]domain.Entry, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Entry), args.Error(1)
}

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	t.Run("stamps occurred-at when unset", func(t *testing.T) {
		entries := new(mockEntryRepo)
		recorder := NewRecorder(entries, clock.NewFake(now))

		entries.On("Append", ctx, mock.MatchedBy(func(e domain.Entry) bool {
			return e.OccurredAt.Equal(now)
		})).Return(nil)

		err := recorder.Record(ctx, domain.Entry{
			Actor:      uuid.New(),
			ActionType: "subscription.extended",
			EntityType: "subscription",
			EntityID:   uuid.New().String(),
		})

		require.NoError(t, err)
		entries.AssertExpectations(t)
	})

	t.Run("keeps an explicit occurred-at", func(t *testing.T) {
		entries := new(mockEntryRepo)
		recorder := NewRecorder(entries, clock.NewFake(now))
		explicit := now.Add(-time.Hour)

		entries.On("Append", ctx, mock.MatchedBy(func(e domain.Entry) bool {
			return e.OccurredAt.Equal(explicit)
		})).Return(nil)

		err := recorder.Record(ctx, domain.Entry{
			ActionType: "sweep.triggered",
			EntityType: "booking",
			EntityID:   "batch",
			OccurredAt: explicit,
		})

		require.NoError(t, err)
	})

	t.Run("rejects entry without action type", func(t *testing.T) {
		entries := new(mockEntryRepo)
		recorder := NewRecorder(entries, clock.NewFake(now))

		err := recorder.Record(ctx, domain.Entry{EntityType: "subscription", EntityID: "x"})

		assert.ErrorIs(t, err, domain.ErrEmptyActionType)
		entries.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})
}
