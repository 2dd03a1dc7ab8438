package commands

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tutorhive/tutorhive/internal/payouts/domain"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/shared/infrastructure/processor"
)

// MetadataInstructorID tags remote accounts with the owning instructor, so
// a crashed persist-after-create can be recovered by lookup instead of a
// second create.
const MetadataInstructorID = "instructor_id"

// EnsureAccountCommand contains the data needed to ensure a payout account.
type EnsureAccountCommand struct {
	InstructorID uuid.UUID
	Email        string
	Country      string
	Currency     string
}

// EnsureAccountResult reports the account reference and whether a remote
// account was created by this call.
type EnsureAccountResult struct {
	AccountID string
	Created   bool
}

// EnsureAccountHandler handles the EnsureAccountCommand.
type EnsureAccountHandler struct {
	accountRepo domain.AccountRepository
	proc        processor.Processor
	clk         clock.Clock
	logger      *slog.Logger
}

// NewEnsureAccountHandler creates a new EnsureAccountHandler.
func NewEnsureAccountHandler(accountRepo domain.AccountRepository, proc processor.Processor, clk clock.Clock, logger *slog.Logger) *EnsureAccountHandler {
	return &EnsureAccountHandler{
		accountRepo: accountRepo,
		proc:        proc,
		clk:         clk,
		logger:      logger,
	}
}

// Handle is idempotent: an existing reference is returned unchanged. When no
// reference is stored, the processor is searched by instructor metadata
// before creating, so a create that succeeded remotely but failed to persist
// is adopted on retry instead of duplicated.
func (h *EnsureAccountHandler) Handle(ctx context.Context, cmd EnsureAccountCommand) (*EnsureAccountResult, error) {
	account, err := h.accountRepo.FindByInstructorID(ctx, cmd.InstructorID)
	if err != nil {
		return nil, err
	}
	if account != nil && account.HasRemoteAccount() {
		return &EnsureAccountResult{AccountID: *account.ExternalAccountID()}, nil
	}
	if account == nil {
		account = domain.NewConnectedAccount(cmd.InstructorID, cmd.Country, cmd.Currency, h.clk.Now())
	}

	accountID, err := h.proc.FindAccountByMetadata(ctx, MetadataInstructorID, cmd.InstructorID.String())
	if err != nil && !errors.Is(err, processor.ErrAccountNotFound) {
		return nil, err
	}

	created := false
	if accountID == "" {
		accountID, err = h.proc.CreateConnectedAccount(ctx, processor.OwnerMetadata{
			InstructorID: cmd.InstructorID.String(),
			Email:        cmd.Email,
			Country:      cmd.Country,
			Currency:     cmd.Currency,
		})
		if err != nil {
			return nil, err
		}
		created = true
	} else {
		h.logger.InfoContext(ctx, "adopted existing remote account",
			slog.String("instructor_id", cmd.InstructorID.String()),
			slog.String("account_id", accountID))
	}

	if err := account.AttachRemoteAccount(accountID, h.clk.Now()); err != nil {
		return nil, err
	}
	if err := h.accountRepo.Save(ctx, account); err != nil {
		return nil, err
	}

	return &EnsureAccountResult{AccountID: accountID, Created: created}, nil
}
