package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyActionType = errors.New("action type must not be empty")
	ErrEmptyEntityType = errors.New("entity type must not be empty")
)

// Entry is one append-only audit record. Actor is uuid.Nil for changes made
// by the system itself.
type Entry struct {
	ID         int64
	Actor      uuid.UUID
	ActionType string
	EntityType string
	EntityID   string
	OldValues  map[string]any
	NewValues  map[string]any
	OccurredAt time.Time
}

// Validate checks the fields required for an entry to be recordable.
func (e Entry) Validate() error {
	if e.ActionType == "" {
		return ErrEmptyActionType
	}
	if e.EntityType == "" {
		return ErrEmptyEntityType
	}
	return nil
}

// EntryRepository defines the persistence interface for audit entries.
// Entries are append-only; there is no update or delete.
type EntryRepository interface {
	Append(ctx context.Context, entry Entry) error
	FindByPeriod(ctx context.Context, from, to time.Time) ([]Entry, error)
}
