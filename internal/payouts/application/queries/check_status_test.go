package queries

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
	"github.com/tutorhive/tutorhive/internal/payouts/domain"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
)

var testNow = time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

type mockAccountRepo struct {
	mock.Mock
}

func (m *mockAccountRepo) Save(ctx context.Context, account *domain.ConnectedAccount) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *mockAccountRepo) FindByInstructorID(ctx context.Context, instructorID uuid.UUID) (*domain.ConnectedAccount, error) {
	args := m.Called(ctx, instructorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConnectedAccount), args.Error(1)
}

type mockStatusProcessor struct {
	mock.Mock
	processor.Processor
}

func (m *mockStatusProcessor) GetAccountStatus(ctx context.Context, accountID string) (processor.AccountStatus, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(processor.AccountStatus), args.Error(1)
}

type mockStatusCache struct {
	mock.Mock
}

func (m *mockStatusCache) Get(ctx context.Context, instructorID uuid.UUID) (*AccountStatusDTO, error) {
	args := m.Called(ctx, instructorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AccountStatusDTO), args.Error(1)
}

func (m *mockStatusCache) Set(ctx context.Context, instructorID uuid.UUID, status *AccountStatusDTO, ttl time.Duration) error {
	args := m.Called(ctx, instructorID, status, ttl)
	return args.Error(0)
}

func onboardedAccount(t *testing.T, instructorID uuid.UUID) *domain.ConnectedAccount {
	t.Helper()
	account := domain.NewConnectedAccount(instructorID, "US", "usd", testNow)
	require.NoError(t, account.AttachRemoteAccount("acct_1", testNow))
	return account
}

func TestCheckStatusHandler_Handle(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	instructorID := uuid.New()
	ttl := 5 * time.Minute

	newHandler := func(repo *mockAccountRepo, proc *mockStatusProcessor, cache *mockStatusCache) *CheckStatusHandler {
		return NewCheckStatusHandler(repo, proc, cache, ttl, clock.NewFake(testNow), logger)
	}

	t.Run("serves cached status without a processor call", func(t *testing.T) {
		repo := new(mockAccountRepo)
		proc := new(mockStatusProcessor)
		cache := new(mockStatusCache)
		handler := newHandler(repo, proc, cache)

		cached := &AccountStatusDTO{State: domain.StatePaymentCapable, AccountID: "acct_1"}
		cache.On("Get", ctx, instructorID).Return(cached, nil)

		status, err := handler.Handle(ctx, CheckStatusQuery{InstructorID: instructorID})

		require.NoError(t, err)
		assert.Equal(t, cached, status)
		proc.AssertNotCalled(t, "GetAccountStatus", mock.Anything, mock.Anything)
	})

	t.Run("reads through on miss and caches the result", func(t *testing.T) {
		repo := new(mockAccountRepo)
		proc := new(mockStatusProcessor)
		cache := new(mockStatusCache)
		handler := newHandler(repo, proc, cache)

		cache.On("Get", ctx, instructorID).Return(nil, nil)
		repo.On("FindByInstructorID", ctx, instructorID).Return(onboardedAccount(t, instructorID), nil)
		proc.On("GetAccountStatus", ctx, "acct_1").Return(processor.AccountStatus{
			DetailsSubmitted: true,
			ChargesEnabled:   true,
			PayoutsEnabled:   true,
		}, nil)
		repo.On("Save", ctx, mock.AnythingOfType("*domain.ConnectedAccount")).Return(nil)
		cache.On("Set", ctx, instructorID, mock.AnythingOfType("*queries.AccountStatusDTO"), ttl).Return(nil)

		status, err := handler.Handle(ctx, CheckStatusQuery{InstructorID: instructorID})

		require.NoError(t, err)
		assert.Equal(t, domain.StatePaymentCapable, status.State)
		assert.Equal(t, "acct_1", status.AccountID)
		assert.True(t, status.DetailsSubmitted)
		cache.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("skips save when details flag is unchanged", func(t *testing.T) {
		repo := new(mockAccountRepo)
		proc := new(mockStatusProcessor)
		cache := new(mockStatusCache)
		handler := newHandler(repo, proc, cache)

		cache.On("Get", ctx, instructorID).Return(nil, nil)
		repo.On("FindByInstructorID", ctx, instructorID).Return(onboardedAccount(t, instructorID), nil)
		proc.On("GetAccountStatus", ctx, "acct_1").Return(processor.AccountStatus{
			DetailsSubmitted: false,
			Requirements:     []string{"external_account"},
		}, nil)
		cache.On("Set", ctx, instructorID, mock.AnythingOfType("*queries.AccountStatusDTO"), ttl).Return(nil)

		status, err := handler.Handle(ctx, CheckStatusQuery{InstructorID: instructorID})

		require.NoError(t, err)
		assert.Equal(t, domain.StateDetailsPending, status.State)
		assert.Equal(t, []string{"external_account"}, status.Requirements)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("reports no_account for unknown instructor", func(t *testing.T) {
		repo := new(mockAccountRepo)
		proc := new(mockStatusProcessor)
		cache := new(mockStatusCache)
		handler := newHandler(repo, proc, cache)

		cache.On("Get", ctx, instructorID).Return(nil, nil)
		repo.On("FindByInstructorID", ctx, instructorID).Return(nil, nil)

		status, err := handler.Handle(ctx, CheckStatusQuery{InstructorID: instructorID})

		require.NoError(t, err)
		assert.Equal(t, domain.StateNoAccount, status.State)
		proc.AssertNotCalled(t, "GetAccountStatus", mock.Anything, mock.Anything)
	})

	t.Run("reports no_account when the remote side lost the account", func(t *testing.T) {
		repo := new(mockAccountRepo)
		proc := new(mockStatusProcessor)
		cache := new(mockStatusCache)
		handler := newHandler(repo, proc, cache)

		cache.On("Get", ctx, instructorID).Return(nil, nil)
		repo.On("FindByInstructorID", ctx, instructorID).Return(onboardedAccount(t, instructorID), nil)
		proc.On("GetAccountStatus", ctx, "acct_1").Return(processor.AccountStatus{}, processor.ErrAccountNotFound)

		status, err := handler.Handle(ctx, CheckStatusQuery{InstructorID: instructorID})

		require.NoError(t, err)
		assert.Equal(t, domain.StateNoAccount, status.State)
	})

	t.Run("cache failures degrade to a live read", func(t *testing.T) {
		repo := new(mockAccountRepo)
		proc := new(mockStatusProcessor)
		cache := new(mockStatusCache)
		handler := newHandler(repo, proc, cache)

		cache.On("Get", ctx, instructorID).Return(nil, errors.New("redis down"))
		repo.On("FindByInstructorID", ctx, instructorID).Return(onboardedAccount(t, instructorID), nil)
		proc.On("GetAccountStatus", ctx, "acct_1").Return(processor.AccountStatus{}, nil)
		cache.On("Set", ctx, instructorID, mock.AnythingOfType("*queries.AccountStatusDTO"), ttl).
			Return(errors.New("redis down"))

		status, err := handler.Handle(ctx, CheckStatusQuery{InstructorID: instructorID})

		require.NoError(t, err)
		assert.Equal(t, domain.StateDetailsPending, status.State)
	})

	t.Run("bypasses the cache on demand", func(t *testing.T) {
		repo := new(mockAccountRepo)
		proc := new(mockStatusProcessor)
		cache := new(mockStatusCache)
		handler := newHandler(repo, proc, cache)

		repo.On("FindByInstructorID", ctx, instructorID).Return(onboardedAccount(t, instructorID), nil)
		proc.On("GetAccountStatus", ctx, "acct_1").Return(processor.AccountStatus{}, nil)
		cache.On("Set", ctx, instructorID, mock.AnythingOfType("*queries.AccountStatusDTO"), ttl).Return(nil)

		_, err := handler.Handle(ctx, CheckStatusQuery{InstructorID: instructorID, BypassCache: true})

		require.NoError(t, err)
		cache.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	})
}

func TestAccountDirectory_PayoutAccountFor(t *testing.T) {
	ctx := context.Background()
	instructorID := uuid.New()

	t.Run("returns stored reference", func(t *testing.T) {
		repo := new(mockAccountRepo)
		repo.On("FindByInstructorID", ctx, instructorID).
			Return(onboardedAccount(t, instructorID), nil)

		ref, err := NewAccountDirectory(repo).PayoutAccountFor(ctx, instructorID)

		require.NoError(t, err)
		assert.Equal(t, "acct_1", ref)
	})

	t.Run("returns empty when instructor is not onboarded", func(t *testing.T) {
		repo := new(mockAccountRepo)
		repo.On("FindByInstructorID", ctx, instructorID).Return(nil, nil)

		ref, err := NewAccountDirectory(repo).PayoutAccountFor(ctx, instructorID)

		require.NoError(t, err)
		assert.Empty(t, ref)
	})
}
