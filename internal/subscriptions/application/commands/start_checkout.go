package commands

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
)

var (
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Metadata keys embedded in subscription checkout sessions. The webhook
// dispatcher routes on the presence of user_id, so the keys must not collide
// with the booking session keys.
const (
	MetadataUserID       = "user_id"
	MetadataPlan         = "plan"
	MetadataDurationDays = "duration_days"
)

// StartCheckoutCommand contains the data needed to open a plan purchase.
type StartCheckoutCommand struct {
	UserID       uuid.UUID
	Plan         string
	DurationDays int
	Amount       int64
	Currency     string
	SuccessURL   string
	CancelURL    string
}

// StartCheckoutResult contains the created session reference.
type StartCheckoutResult struct {
	SessionID   string
	RedirectURL string
}

// StartCheckoutHandler handles the StartCheckoutCommand.
type StartCheckoutHandler struct {
	proc processor.Processor
}

// NewStartCheckoutHandler creates a new StartCheckoutHandler.
func NewStartCheckoutHandler(proc processor.Processor) *StartCheckoutHandler {
	return &StartCheckoutHandler{proc: proc}
}

// Handle opens a checkout session for a standalone plan purchase. Unlike a
// lesson checkout there is no destination account and nothing to persist:
// the grant is provisioned only when the payment confirms.
func (h *StartCheckoutHandler) Handle(ctx context.Context, cmd StartCheckoutCommand) (*StartCheckoutResult, error) {
	if cmd.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if cmd.DurationDays <= 0 {
		return nil, ErrInvalidDuration
	}

	session, err := h.proc.CreateCheckoutSession(ctx, processor.SessionParams{
		Amount:      cmd.Amount,
		Currency:    cmd.Currency,
		ProductName: cmd.Plan + " plan",
		Metadata: map[string]string{
			MetadataUserID:       cmd.UserID.String(),
			MetadataPlan:         cmd.Plan,
			MetadataDurationDays: strconv.Itoa(cmd.DurationDays),
		},
		SuccessURL: cmd.SuccessURL,
		CancelURL:  cmd.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	return &StartCheckoutResult{SessionID: session.ID, RedirectURL: session.URL}, nil
}
