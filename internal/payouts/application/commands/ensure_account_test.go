package commands

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

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) CreateConnectedAccount(ctx context.Context, owner processor.OwnerMetadata) (string, error) {
	args := m.Called(ctx, owner)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) FindAccountByMetadata(ctx context.Context, key, value string) (string, error) {
	args := m.Called(ctx, key, value)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	args := m.Called(ctx, accountID, returnURL, refreshURL)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) GetAccountStatus(ctx context.Context, accountID string) (processor.AccountStatus, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(processor.AccountStatus), args.Error(1)
}

func (m *mockProcessor) CreateCheckoutSession(ctx context.Context, params processor.SessionParams) (processor.Session, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(processor.Session), args.Error(1)
}

func (m *mockProcessor) RetrieveSession(ctx context.Context, sessionID string) (processor.Session, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(processor.Session), args.Error(1)
}

func (m *mockProcessor) SearchPaymentByMetadata(ctx context.Context, key, value string) (*processor.PaymentRecord, error) {
	args := m.Called(ctx, key, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*processor.PaymentRecord), args.Error(1)
}

func (m *mockProcessor) IssueRefund(ctx context.Context, paymentRef string, amount int64) (processor.Refund, error) {
	args := m.Called(ctx, paymentRef, amount)
	return args.Get(0).(processor.Refund), args.Error(1)
}

func (m *mockProcessor) CreateTransfer(ctx context.Context, params processor.TransferParams) (processor.Transfer, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(processor.Transfer), args.Error(1)
}

func accountWithRemote(t *testing.T, instructorID uuid.UUID, accountID string) *domain.ConnectedAccount {
	t.Helper()
	account := domain.NewConnectedAccount(instructorID, "US", "usd", testNow)
	require.NoError(t, account.AttachRemoteAccount(accountID, testNow))
	return account
}

func TestEnsureAccountHandler_Handle(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	instructorID := uuid.New()
	cmd := EnsureAccountCommand{
		InstructorID: instructorID,
		Email:        "instructor@example.com",
		Country:      "US",
		Currency:     "usd",
	}

	t.Run("creates remote account on first call", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		proc := new(mockProcessor)
		handler := NewEnsureAccountHandler(accountRepo, proc, clock.NewFake(testNow), logger)

		accountRepo.On("FindByInstructorID", ctx, instructorID).Return(nil, nil)
		proc.On("FindAccountByMetadata", ctx, MetadataInstructorID, instructorID.String()).
			Return("", processor.ErrAccountNotFound)
		proc.On("CreateConnectedAccount", ctx, processor.OwnerMetadata{
			InstructorID: instructorID.String(),
			Email:        "instructor@example.com",
			Country:      "US",
			Currency:     "usd",
		}).Return("acct_new", nil)
		accountRepo.On("Save", ctx, mock.AnythingOfType("*domain.ConnectedAccount")).Return(nil)

		result, err := handler.Handle(ctx, cmd)

		require.NoError(t, err)
		assert.Equal(t, "acct_new", result.AccountID)
		assert.True(t, result.Created)

		saved := accountRepo.Calls[1].Arguments.Get(1).(*domain.ConnectedAccount)
		require.NotNil(t, saved.ExternalAccountID())
		assert.Equal(t, "acct_new", *saved.ExternalAccountID())
		accountRepo.AssertExpectations(t)
		proc.AssertExpectations(t)
	})

	t.Run("returns stored reference without touching the processor", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		proc := new(mockProcessor)
		handler := NewEnsureAccountHandler(accountRepo, proc, clock.NewFake(testNow), logger)

		accountRepo.On("FindByInstructorID", ctx, instructorID).
			Return(accountWithRemote(t, instructorID, "acct_existing"), nil)

		result, err := handler.Handle(ctx, cmd)

		require.NoError(t, err)
		assert.Equal(t, "acct_existing", result.AccountID)
		assert.False(t, result.Created)
		proc.AssertNotCalled(t, "FindAccountByMetadata", mock.Anything, mock.Anything, mock.Anything)
		proc.AssertNotCalled(t, "CreateConnectedAccount", mock.Anything, mock.Anything)
		accountRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("adopts remote account left by a lost persist", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		proc := new(mockProcessor)
		handler := NewEnsureAccountHandler(accountRepo, proc, clock.NewFake(testNow), logger)

		accountRepo.On("FindByInstructorID", ctx, instructorID).Return(nil, nil)
		proc.On("FindAccountByMetadata", ctx, MetadataInstructorID, instructorID.String()).
			Return("acct_orphan", nil)
		accountRepo.On("Save", ctx, mock.AnythingOfType("*domain.ConnectedAccount")).Return(nil)

		result, err := handler.Handle(ctx, cmd)

		require.NoError(t, err)
		assert.Equal(t, "acct_orphan", result.AccountID)
		assert.False(t, result.Created)
		proc.AssertNotCalled(t, "CreateConnectedAccount", mock.Anything, mock.Anything)
	})

	t.Run("attaches reference to a stored account that never got one", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		proc := new(mockProcessor)
		handler := NewEnsureAccountHandler(accountRepo, proc, clock.NewFake(testNow), logger)

		accountRepo.On("FindByInstructorID", ctx, instructorID).
			Return(domain.NewConnectedAccount(instructorID, "US", "usd", testNow), nil)
		proc.On("FindAccountByMetadata", ctx, MetadataInstructorID, instructorID.String()).
			Return("", processor.ErrAccountNotFound)
		proc.On("CreateConnectedAccount", ctx, mock.AnythingOfType("processor.OwnerMetadata")).
			Return("acct_late", nil)
		accountRepo.On("Save", ctx, mock.AnythingOfType("*domain.ConnectedAccount")).Return(nil)

		result, err := handler.Handle(ctx, cmd)

		require.NoError(t, err)
		assert.Equal(t, "acct_late", result.AccountID)
		assert.True(t, result.Created)
	})

	t.Run("propagates processor create failure", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		proc := new(mockProcessor)
		handler := NewEnsureAccountHandler(accountRepo, proc, clock.NewFake(testNow), logger)

		accountRepo.On("FindByInstructorID", ctx, instructorID).Return(nil, nil)
		proc.On("FindAccountByMetadata", ctx, MetadataInstructorID, instructorID.String()).
			Return("", processor.ErrAccountNotFound)
		proc.On("CreateConnectedAccount", ctx, mock.AnythingOfType("processor.OwnerMetadata")).
			Return("", errors.New("processor unavailable"))

		result, err := handler.Handle(ctx, cmd)

		require.Error(t, err)
		assert.Nil(t, result)
		accountRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestOnboardingLinkHandler_Handle(t *testing.T) {
	ctx := context.Background()
	instructorID := uuid.New()

	t.Run("mints a link for an onboarded account", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		proc := new(mockProcessor)
		handler := NewOnboardingLinkHandler(accountRepo, proc)

		accountRepo.On("FindByInstructorID", ctx, instructorID).
			Return(accountWithRemote(t, instructorID, "acct_1"), nil)
		proc.On("CreateAccountLink", ctx, "acct_1", "https://app/return", "https://app/refresh").
			Return("https://onboarding/session", nil)

		url, err := handler.Handle(ctx, OnboardingLinkCommand{
			InstructorID: instructorID,
			ReturnURL:    "https://app/return",
			RefreshURL:   "https://app/refresh",
		})

		require.NoError(t, err)
		assert.Equal(t, "https://onboarding/session", url)
	})

	t.Run("rejects instructor without remote account", func(t *testing.T) {
		accountRepo := new(mockAccountRepo)
		proc := new(mockProcessor)
		handler := NewOnboardingLinkHandler(accountRepo, proc)

		accountRepo.On("FindByInstructorID", ctx, instructorID).Return(nil, nil)

		_, err := handler.Handle(ctx, OnboardingLinkCommand{InstructorID: instructorID})

		require.ErrorIs(t, err, ErrNoRemoteAccount)
		proc.AssertNotCalled(t, "CreateAccountLink", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
