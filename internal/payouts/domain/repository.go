package domain

import (
	"context"

	"github.com/google/uuid"
)

// AccountRepository persists connected-account records, keyed by instructor.
type AccountRepository interface {
	Save(ctx context.Context, account *ConnectedAccount) error
	FindByInstructorID(ctx context.Context, instructorID uuid.UUID) (*ConnectedAccount, error)
}
