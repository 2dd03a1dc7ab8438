// Package reconciliation repairs bookings whose payment outcome was lost:
// webhooks that never arrived, users who closed the tab before the success
// redirect, or crashes between the remote charge and the local transition.
package reconciliation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	bookingCommands "github.com/tutorhive/tutorhive/internal/booking/application/commands"
	"github.com/tutorhive/tutorhive/internal/booking/domain"
	sharedApplication "github.com/tutorhive/tutorhive/internal/shared/application"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/outbox"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
	"github.com/tutorhive/tutorhive/pkg/observability"
)

// Config holds the sweeper's policy knobs.
type Config struct {
	// Interval between sweep runs.
	Interval time.Duration
	// Grace is how long a pending payment is left alone before the sweeper
	// asks the processor about it. Covers normal checkout latency.
	Grace time.Duration
	// AbandonmentThreshold is the age after which a booking with no remote
	// payment record at all is declared abandoned.
	AbandonmentThreshold time.Duration
	// BatchSize bounds how many candidates one run inspects.
	BatchSize int
	// ItemTimeout bounds the processor lookup and repair of one candidate.
	ItemTimeout time.Duration
}

// DefaultConfig returns the standing policy: hourly sweeps, one hour of
// grace, a day before declaring abandonment.
func DefaultConfig() Config {
	return Config{
		Interval:             time.Hour,
		Grace:                time.Hour,
		AbandonmentThreshold: 24 * time.Hour,
		BatchSize:            100,
		ItemTimeout:          30 * time.Second,
	}
}

// ItemError records a per-candidate failure; the batch keeps going.
type ItemError struct {
	BookingID uuid.UUID
	Err       error
}

// Summary reports what one sweep run did.
type Summary struct {
	Checked int
	Fixed   int
	Errors  []ItemError
}

// PaymentConfirmer applies a verified payment to a booking. Implemented by
// the booking context's confirmation handler so sweeper repairs take the
// same idempotent path as webhooks, transfer included.
type PaymentConfirmer interface {
	Handle(ctx context.Context, cmd bookingCommands.ConfirmPaymentCommand) (*bookingCommands.ConfirmPaymentResult, error)
}

// Sweeper periodically reconciles stale pending bookings against the
// processor's records. Overlap with live confirmation handlers is safe: all
// writes go through the bookings' conditional save.
type Sweeper struct {
	bookingRepo domain.BookingRepository
	outboxRepo  outbox.Repository
	proc        processor.Processor
	confirmer   PaymentConfirmer
	uow         sharedApplication.UnitOfWork
	clk         clock.Clock
	config      Config
	metrics     observability.Metrics
	logger      *slog.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewSweeper creates a new Sweeper.
func NewSweeper(
	bookingRepo domain.BookingRepository,
	outboxRepo outbox.Repository,
	proc processor.Processor,
	confirmer PaymentConfirmer,
	uow sharedApplication.UnitOfWork,
	clk clock.Clock,
	config Config,
	metrics observability.Metrics,
	logger *slog.Logger,
) *Sweeper {
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		bookingRepo: bookingRepo,
		outboxRepo:  outboxRepo,
		proc:        proc,
		confirmer:   confirmer,
		uow:         uow,
		clk:         clk,
		config:      config,
		metrics:     metrics,
		logger:      logger,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the sweep loop in a goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("reconciliation sweeper started",
		"interval", s.config.Interval,
		"grace", s.config.Grace,
		"batch_size", s.config.BatchSize,
	)
	return nil
}

// Stop gracefully stops the sweeper.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("reconciliation sweeper stopped")
}

// IsRunning returns true if the sweeper loop is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sweep run failed", "error", err)
			}
		}
	}
}

// RunOnce sweeps a single batch. Exposed for the admin trigger and the CLI.
func (s *Sweeper) RunOnce(ctx context.Context) (Summary, error) {
	start := s.clk.Now()
	cutoff := start.Add(-s.config.Grace)

	candidates, err := s.bookingRepo.FindStalePending(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		s.metrics.Counter(observability.MetricSweepErrors, 1, observability.T("stage", "select"))
		return Summary{}, err
	}

	summary := Summary{Checked: len(candidates)}
	for _, booking := range candidates {
		fixed, err := s.reconcileOne(ctx, booking)
		if err != nil {
			summary.Errors = append(summary.Errors, ItemError{BookingID: booking.ID(), Err: err})
			s.logger.Error("failed to reconcile booking",
				"booking_id", booking.ID(),
				"error", err,
			)
			continue
		}
		if fixed {
			summary.Fixed++
		}
	}

	s.metrics.Counter(observability.MetricSweepRuns, 1)
	s.metrics.Counter(observability.MetricSweepChecked, int64(summary.Checked))
	s.metrics.Counter(observability.MetricSweepRepairs, int64(summary.Fixed))
	s.metrics.Counter(observability.MetricSweepErrors, int64(len(summary.Errors)), observability.T("stage", "item"))
	s.metrics.Timing(observability.MetricSweepDuration, time.Since(start))

	// A clean sweep is routine; repairs or failures mean money state drifted
	// and someone should look.
	if summary.Fixed > 0 || len(summary.Errors) > 0 {
		s.logger.Error("sweep found inconsistencies",
			"checked", summary.Checked,
			"fixed", summary.Fixed,
			"errors", len(summary.Errors),
		)
	} else if summary.Checked > 0 {
		s.logger.Info("sweep completed clean", "checked", summary.Checked)
	}

	return summary, nil
}

func (s *Sweeper) reconcileOne(ctx context.Context, booking *domain.Booking) (bool, error) {
	itemCtx, cancel := context.WithTimeout(ctx, s.config.ItemTimeout)
	defer cancel()

	record, err := s.proc.SearchPaymentByMetadata(itemCtx, bookingCommands.MetadataBookingID, booking.ID().String())
	if err != nil {
		return false, err
	}

	if record == nil {
		if s.clk.Now().Sub(booking.CreatedAt()) < s.config.AbandonmentThreshold {
			// Still inside the window where the user might pay.
			return false, nil
		}
		return s.failPayment(itemCtx, booking.ID(), "no payment attempted")
	}

	switch record.State {
	case processor.PaymentSucceeded:
		return s.confirmPayment(itemCtx, booking, record)

	case processor.PaymentCanceled, processor.PaymentRequiresPaymentMethod:
		return s.failPayment(itemCtx, booking.ID(), "payment abandoned or failed")

	default:
		// Processing or another transient state; the next run looks again.
		return false, nil
	}
}

// confirmPayment repairs a booking whose remote payment succeeded. When the
// checkout session reference is stored the confirmation handler does the
// whole job, transfer included. Without one the payment is applied directly
// and flagged, so an operator settles the instructor payout.
func (s *Sweeper) confirmPayment(ctx context.Context, booking *domain.Booking, record *processor.PaymentRecord) (bool, error) {
	if ref := booking.PaymentRef(); ref != nil {
		result, err := s.confirmer.Handle(ctx, bookingCommands.ConfirmPaymentCommand{SessionID: *ref})
		if err != nil {
			return false, err
		}
		switch result.Outcome {
		case bookingCommands.OutcomeApplied:
			s.logger.Warn("recovered lost payment confirmation",
				"booking_id", booking.ID(),
				"payment_ref", *ref,
			)
			return true, nil
		case bookingCommands.OutcomeAnomaly:
			// A charge landed on a cancelled booking and the handler
			// resolved it; that is still a repair.
			s.logger.Warn("resolved payment anomaly during sweep",
				"booking_id", booking.ID(),
				"payment_ref", *ref,
			)
			return true, nil
		}
		return false, nil
	}

	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		fresh, err := s.bookingRepo.FindByID(txCtx, booking.ID())
		if err != nil {
			return err
		}
		if fresh == nil || fresh.PaymentStatus() != domain.PaymentPending {
			return nil
		}
		if err := fresh.ConfirmPayment(record.Reference); err != nil {
			return err
		}
		fresh.FlagForReview("payment recovered without checkout session; instructor payout not issued")
		if err := s.bookingRepo.Save(txCtx, fresh); err != nil {
			return err
		}
		return s.saveEvents(txCtx, fresh)
	})
	if err != nil {
		return false, err
	}

	s.logger.Warn("recovered payment without session reference",
		"booking_id", booking.ID(),
		"payment_ref", record.Reference,
	)
	return true, nil
}

func (s *Sweeper) failPayment(ctx context.Context, bookingID uuid.UUID, reason string) (bool, error) {
	var fixed bool
	err := sharedApplication.WithUnitOfWork(ctx, s.uow, func(txCtx context.Context) error {
		fresh, err := s.bookingRepo.FindByID(txCtx, bookingID)
		if err != nil {
			return err
		}
		if fresh == nil || fresh.PaymentStatus() != domain.PaymentPending {
			// A live handler got there first.
			return nil
		}
		if err := fresh.FailPayment(reason, s.clk.Now()); err != nil {
			return err
		}
		if err := s.bookingRepo.Save(txCtx, fresh); err != nil {
			return err
		}
		fixed = true
		return s.saveEvents(txCtx, fresh)
	})
	if err != nil {
		return false, err
	}
	if fixed {
		s.logger.Warn("closed out dead pending payment",
			"booking_id", bookingID,
			"reason", reason,
		)
	}
	return fixed, nil
}

func (s *Sweeper) saveEvents(txCtx context.Context, booking *domain.Booking) error {
	events := booking.DomainEvents()
	if len(events) == 0 {
		return nil
	}
	sharedApplication.ApplyEventMetadata(events, sharedApplication.NewEventMetadata(uuid.Nil))

	msgs, err := outbox.FromEvents(events)
	if err != nil {
		return err
	}
	return s.outboxRepo.SaveBatch(txCtx, msgs)
}
