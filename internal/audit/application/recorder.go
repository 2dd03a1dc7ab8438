// Package application provides the audit trail service consumed by the
// admin-facing command handlers.
package application

import (
	"context"
	"time"

	"github.com/tutorhive/tutorhive/internal/audit/domain"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
)

// Recorder appends audit entries for admin-triggered changes.
type Recorder struct {
	entries domain.EntryRepository
	clk     clock.Clock
}

// NewRecorder creates a new Recorder.
func NewRecorder(entries domain.EntryRepository, clk clock.Clock) *Recorder {
	return &Recorder{entries: entries, clk: clk}
}

// Record appends an entry, stamping occurred-at when unset.
func (r *Recorder) Record(ctx context.Context, entry domain.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.clk.Now()
	}
	return r.entries.Append(ctx, entry)
}

// Query returns the entries recorded in [from, to).
func (r *Recorder) Query(ctx context.Context, from, to time.Time) ([]domain.Entry, error) {
	return r.entries.FindByPeriod(ctx, from, to)
}
