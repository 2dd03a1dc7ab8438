package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tutorhive/tutorhive/internal/reconciliation"
)

type mockSweepRunner struct {
	mock.Mock
}

func (m *mockSweepRunner) RunOnce(ctx context.Context) (reconciliation.Summary, error) {
	args := m.Called(ctx)
	return args.Get(0).(reconciliation.Summary), args.Error(1)
}

func TestSweepCommand(t *testing.T) {
	sweepCmd.SetContext(context.Background())

	t.Run("prints the sweep summary", func(t *testing.T) {
		sweeper := new(mockSweepRunner)
		sweeper.On("RunOnce", mock.Anything).
			Return(reconciliation.Summary{Checked: 4, Fixed: 1}, nil)
		SetApp(&App{Sweeper: sweeper})
		t.Cleanup(func() { SetApp(nil) })

		var out bytes.Buffer
		sweepCmd.SetOut(&out)

		err := sweepCmd.RunE(sweepCmd, nil)

		require.NoError(t, err)
		assert.Contains(t, out.String(), "checked 4, fixed 1, errors 0")
		sweeper.AssertExpectations(t)
	})

	t.Run("lists per item errors", func(t *testing.T) {
		bookingID := uuid.New()
		sweeper := new(mockSweepRunner)
		sweeper.On("RunOnce", mock.Anything).
			Return(reconciliation.Summary{
				Checked: 2,
				Errors: []reconciliation.ItemError{
					{BookingID: bookingID, Err: errors.New("processor timeout")},
				},
			}, nil)
		SetApp(&App{Sweeper: sweeper})
		t.Cleanup(func() { SetApp(nil) })

		var out bytes.Buffer
		sweepCmd.SetOut(&out)

		err := sweepCmd.RunE(sweepCmd, nil)

		require.NoError(t, err)
		assert.Contains(t, out.String(), bookingID.String())
		assert.Contains(t, out.String(), "processor timeout")
	})

	t.Run("degrades gracefully without wiring", func(t *testing.T) {
		SetApp(nil)

		var out bytes.Buffer
		sweepCmd.SetOut(&out)

		err := sweepCmd.RunE(sweepCmd, nil)

		require.NoError(t, err)
		assert.Contains(t, out.String(), "requires database")
	})

	t.Run("surfaces sweep failures", func(t *testing.T) {
		sweeper := new(mockSweepRunner)
		sweeper.On("RunOnce", mock.Anything).
			Return(reconciliation.Summary{}, errors.New("selection failed"))
		SetApp(&App{Sweeper: sweeper})
		t.Cleanup(func() { SetApp(nil) })

		err := sweepCmd.RunE(sweepCmd, nil)

		require.Error(t, err)
	})
}
