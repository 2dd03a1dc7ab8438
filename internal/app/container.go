// Package app wires the application together: connections, repositories,
// command and query handlers, and the reconciliation sweeper.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	auditApp "github.com/tutorhive/tutorhive/internal/audit/application"
	auditPersistence "github.com/tutorhive/tutorhive/internal/audit/infrastructure/persistence"
	bookingCommands "github.com/tutorhive/tutorhive/internal/booking/application/commands"
	bookingQueries "github.com/tutorhive/tutorhive/internal/booking/application/queries"
	bookingDomain "github.com/tutorhive/tutorhive/internal/booking/domain"
	bookingPersistence "github.com/tutorhive/tutorhive/internal/booking/infrastructure/persistence"
	payoutCommands "github.com/tutorhive/tutorhive/internal/payouts/application/commands"
	payoutQueries "github.com/tutorhive/tutorhive/internal/payouts/application/queries"
	payoutsDomain "github.com/tutorhive/tutorhive/internal/payouts/domain"
	payoutsCache "github.com/tutorhive/tutorhive/internal/payouts/infrastructure/cache"
	payoutsPersistence "github.com/tutorhive/tutorhive/internal/payouts/infrastructure/persistence"
	"github.com/tutorhive/tutorhive/internal/reconciliation"
	sharedApplication "github.com/tutorhive/tutorhive/internal/shared/application"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/migrations"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/outbox"
	sharedPersistence "github.com/tutorhive/tutorhive/internal/shared/infrastructure/persistence"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
	subscriptionCommands "github.com/tutorhive/tutorhive/internal/subscriptions/application/commands"
	subscriptionsDomain "github.com/tutorhive/tutorhive/internal/subscriptions/domain"
	subscriptionsPersistence "github.com/tutorhive/tutorhive/internal/subscriptions/infrastructure/persistence"
	"github.com/tutorhive/tutorhive/pkg/config"
	"github.com/tutorhive/tutorhive/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.PrometheusMetrics
	Health  *observability.HealthRegistry

	Pool  *pgxpool.Pool
	Redis *redis.Client
	Clock clock.Clock

	Processor  processor.Processor
	OutboxRepo outbox.Repository
	UnitOfWork sharedApplication.UnitOfWork

	BookingRepo      bookingDomain.BookingRepository
	CouponRepo       bookingDomain.CouponRepository
	AccountRepo      payoutsDomain.AccountRepository
	SubscriptionRepo subscriptionsDomain.SubscriptionRepository

	AuditRecorder *auditApp.Recorder

	// Booking
	StartCheckoutHandler   *bookingCommands.StartCheckoutHandler
	ConfirmPaymentHandler  *bookingCommands.ConfirmPaymentHandler
	CancelBookingHandler   *bookingCommands.CancelBookingHandler
	CompleteBookingHandler *bookingCommands.CompleteBookingHandler
	GetBookingHandler      *bookingQueries.GetBookingHandler

	// Payouts
	EnsureAccountHandler  *payoutCommands.EnsureAccountHandler
	OnboardingLinkHandler *payoutCommands.OnboardingLinkHandler
	CheckStatusHandler    *payoutQueries.CheckStatusHandler

	// Subscriptions
	StartPlanCheckoutHandler   *subscriptionCommands.StartCheckoutHandler
	ConfirmSubscriptionHandler *subscriptionCommands.ConfirmSubscriptionHandler
	ExtendSubscriptionHandler  *subscriptionCommands.ExtendSubscriptionHandler
	CreatePassHandler          *subscriptionCommands.CreatePassHandler

	// Reconciliation
	Sweeper *reconciliation.Sweeper
}

// NewContainer creates a fully wired container backed by Postgres.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	c := &Container{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewPrometheusMetrics(nil),
		Health:  observability.NewHealthRegistry(),
		Pool:    pool,
		Clock:   clock.NewSystem(),
	}

	// Redis is an optional read cache; a missing Redis degrades status
	// lookups to live processor reads.
	if opt, err := redis.ParseURL(cfg.RedisURL); err != nil {
		logger.Warn("invalid redis URL, status cache disabled", "error", err)
	} else {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not available, status cache disabled", "error", err)
			_ = client.Close()
		} else {
			c.Redis = client
		}
	}

	stripeProc := processor.NewStripeProcessor(processor.DefaultStripeConfig(cfg.StripeAPIKey))
	c.Processor = processor.NewBreakerProcessor(stripeProc, processor.DefaultBreakerConfig(), logger)

	c.OutboxRepo = outbox.NewPostgresRepository(pool)
	c.UnitOfWork = sharedPersistence.NewPostgresUnitOfWork(pool)
	c.BookingRepo = bookingPersistence.NewPostgresBookingRepository(pool)
	c.CouponRepo = bookingPersistence.NewPostgresCouponRepository(pool)
	c.AccountRepo = payoutsPersistence.NewPostgresAccountRepository(pool)
	c.SubscriptionRepo = subscriptionsPersistence.NewPostgresSubscriptionRepository(pool)

	c.AuditRecorder = auditApp.NewRecorder(auditPersistence.NewPostgresEntryRepository(pool), c.Clock)

	var statusCache payoutQueries.StatusCache
	if c.Redis != nil {
		statusCache = payoutsCache.NewRedisStatusCache(c.Redis)
	}

	accounts := payoutQueries.NewAccountDirectory(c.AccountRepo)

	c.StartCheckoutHandler = bookingCommands.NewStartCheckoutHandler(
		c.BookingRepo, c.CouponRepo, c.Processor, c.UnitOfWork, c.Clock, logger)
	c.ConfirmPaymentHandler = bookingCommands.NewConfirmPaymentHandler(
		c.BookingRepo, c.CouponRepo, c.OutboxRepo, c.Processor, accounts,
		c.UnitOfWork, c.Clock, cfg.PlatformFeePercent, logger)
	c.CancelBookingHandler = bookingCommands.NewCancelBookingHandler(
		c.BookingRepo, c.OutboxRepo, c.Processor, c.UnitOfWork, c.Clock,
		cfg.FreeCancellationWindow, logger)
	c.CompleteBookingHandler = bookingCommands.NewCompleteBookingHandler(
		c.BookingRepo, c.UnitOfWork, c.Clock)
	c.GetBookingHandler = bookingQueries.NewGetBookingHandler(c.BookingRepo)

	c.EnsureAccountHandler = payoutCommands.NewEnsureAccountHandler(
		c.AccountRepo, c.Processor, c.Clock, logger)
	c.OnboardingLinkHandler = payoutCommands.NewOnboardingLinkHandler(c.AccountRepo, c.Processor)
	c.CheckStatusHandler = payoutQueries.NewCheckStatusHandler(
		c.AccountRepo, c.Processor, statusCache, cfg.StatusCacheTTL, c.Clock, logger)

	c.StartPlanCheckoutHandler = subscriptionCommands.NewStartCheckoutHandler(c.Processor)
	c.ConfirmSubscriptionHandler = subscriptionCommands.NewConfirmSubscriptionHandler(
		c.SubscriptionRepo, c.Processor, c.Clock, logger)
	c.ExtendSubscriptionHandler = subscriptionCommands.NewExtendSubscriptionHandler(
		c.SubscriptionRepo, c.AuditRecorder, c.Clock, logger)
	c.CreatePassHandler = subscriptionCommands.NewCreatePassHandler(
		c.SubscriptionRepo, c.AuditRecorder, c.Clock, logger)

	c.Sweeper = reconciliation.NewSweeper(
		c.BookingRepo, c.OutboxRepo, c.Processor, c.ConfirmPaymentHandler,
		c.UnitOfWork, c.Clock, reconciliation.Config{
			Interval:             cfg.SweepInterval,
			Grace:                cfg.SweepGrace,
			AbandonmentThreshold: cfg.SweepAbandonmentThreshold,
			BatchSize:            cfg.SweepBatchSize,
			ItemTimeout:          cfg.SweepItemTimeout,
		}, c.Metrics, logger)

	c.registerHealthChecks()

	return c, nil
}

func (c *Container) registerHealthChecks() {
	c.Health.Register("database", func(ctx context.Context) observability.HealthCheckResult {
		checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := c.Pool.Ping(checkCtx); err != nil {
			return observability.HealthCheckResult{
				Status:  observability.HealthStatusUnhealthy,
				Message: err.Error(),
			}
		}
		return observability.HealthCheckResult{Status: observability.HealthStatusHealthy}
	})

	if c.Redis != nil {
		c.Health.Register("redis", func(ctx context.Context) observability.HealthCheckResult {
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := c.Redis.Ping(checkCtx).Err(); err != nil {
				return observability.HealthCheckResult{
					Status:  observability.HealthStatusDegraded,
					Message: err.Error(),
				}
			}
			return observability.HealthCheckResult{Status: observability.HealthStatusHealthy}
		})
	}
}

// Close releases the container's connections.
func (c *Container) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
