package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker around processor calls.
type BreakerConfig struct {
	// MaxRequests is the number of probe requests allowed in half-open state.
	MaxRequests uint32

	// Interval is the cyclic period of the closed state.
	Interval time.Duration

	// Timeout is the period of the open state.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that trips
	// the breaker.
	FailureThreshold uint32
}

// DefaultBreakerConfig returns sensible defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      3,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerProcessor wraps a Processor with a circuit breaker so a degraded
// processor fails fast instead of stacking timed-out calls.
type BreakerProcessor struct {
	inner   Processor
	breaker *gobreaker.CircuitBreaker[any]
	logger  *slog.Logger
}

// NewBreakerProcessor wraps the given processor.
func NewBreakerProcessor(inner Processor, cfg BreakerConfig, logger *slog.Logger) *BreakerProcessor {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        "payment-processor",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment processor circuit state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	return &BreakerProcessor{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		logger:  logger,
	}
}

func execute[T any](b *BreakerProcessor, fn func() (T, error)) (T, error) {
	out, err := b.breaker.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

func (b *BreakerProcessor) CreateConnectedAccount(ctx context.Context, owner OwnerMetadata) (string, error) {
	return execute(b, func() (string, error) {
		return b.inner.CreateConnectedAccount(ctx, owner)
	})
}

func (b *BreakerProcessor) FindAccountByMetadata(ctx context.Context, key, value string) (string, error) {
	return execute(b, func() (string, error) {
		return b.inner.FindAccountByMetadata(ctx, key, value)
	})
}

func (b *BreakerProcessor) CreateAccountLink(ctx context.Context, accountID, returnURL, refreshURL string) (string, error) {
	return execute(b, func() (string, error) {
		return b.inner.CreateAccountLink(ctx, accountID, returnURL, refreshURL)
	})
}

func (b *BreakerProcessor) GetAccountStatus(ctx context.Context, accountID string) (AccountStatus, error) {
	return execute(b, func() (AccountStatus, error) {
		return b.inner.GetAccountStatus(ctx, accountID)
	})
}

func (b *BreakerProcessor) CreateCheckoutSession(ctx context.Context, params SessionParams) (Session, error) {
	return execute(b, func() (Session, error) {
		return b.inner.CreateCheckoutSession(ctx, params)
	})
}

func (b *BreakerProcessor) RetrieveSession(ctx context.Context, sessionID string) (Session, error) {
	return execute(b, func() (Session, error) {
		return b.inner.RetrieveSession(ctx, sessionID)
	})
}

func (b *BreakerProcessor) SearchPaymentByMetadata(ctx context.Context, key, value string) (*PaymentRecord, error) {
	return execute(b, func() (*PaymentRecord, error) {
		return b.inner.SearchPaymentByMetadata(ctx, key, value)
	})
}

func (b *BreakerProcessor) IssueRefund(ctx context.Context, paymentRef string, amount int64) (Refund, error) {
	return execute(b, func() (Refund, error) {
		return b.inner.IssueRefund(ctx, paymentRef, amount)
	})
}

func (b *BreakerProcessor) CreateTransfer(ctx context.Context, params TransferParams) (Transfer, error) {
	return execute(b, func() (Transfer, error) {
		return b.inner.CreateTransfer(ctx, params)
	})
}
