package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) CreateConnectedAccount(ctx context.Context, owner OwnerMetadata) (string, error) {
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

func (m *mockProcessor) GetAccountStatus(ctx context.Context, accountID string) (AccountStatus, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(AccountStatus), args.Error(1)
}

func (m *mockProcessor) CreateCheckoutSession(ctx context.Context, params SessionParams) (Session, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Session), args.Error(1)
}

func (m *mockProcessor) RetrieveSession(ctx context.Context, sessionID string) (Session, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(Session), args.Error(1)
}

func (m *mockProcessor) SearchPaymentByMetadata(ctx context.Context, key, value string) (*PaymentRecord, error) {
	args := m.Called(ctx, key, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentRecord), args.Error(1)
}

func (m *mockProcessor) IssueRefund(ctx context.Context, paymentRef string, amount int64) (Refund, error) {
	args := m.Called(ctx, paymentRef, amount)
	return args.Get(0).(Refund), args.Error(1)
}

func (m *mockProcessor) CreateTransfer(ctx context.Context, params TransferParams) (Transfer, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Transfer), args.Error(1)
}

func TestBreakerProcessor(t *testing.T) {
	ctx := context.Background()

	t.Run("passes successful calls through", func(t *testing.T) {
		inner := new(mockProcessor)
		inner.On("RetrieveSession", ctx, "cs_123").Return(Session{ID: "cs_123", PaymentStatus: SessionPaid}, nil)

		b := NewBreakerProcessor(inner, DefaultBreakerConfig(), nil)

		sess, err := b.RetrieveSession(ctx, "cs_123")
		require.NoError(t, err)
		assert.Equal(t, "cs_123", sess.ID)
		inner.AssertExpectations(t)
	})

	t.Run("opens after consecutive failures", func(t *testing.T) {
		inner := new(mockProcessor)
		remoteErr := errors.New("processor unavailable")
		inner.On("GetAccountStatus", ctx, "acct_1").Return(AccountStatus{}, remoteErr)

		cfg := BreakerConfig{
			MaxRequests:      1,
			Interval:         time.Minute,
			Timeout:          time.Minute,
			FailureThreshold: 3,
		}
		b := NewBreakerProcessor(inner, cfg, nil)

		for i := 0; i < 3; i++ {
			_, err := b.GetAccountStatus(ctx, "acct_1")
			assert.ErrorIs(t, err, remoteErr)
		}

		_, err := b.GetAccountStatus(ctx, "acct_1")
		assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		inner.AssertNumberOfCalls(t, "GetAccountStatus", 3)
	})
}
