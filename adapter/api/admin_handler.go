package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	auditDomain "github.com/tutorhive/tutorhive/internal/audit/domain"
	"github.com/tutorhive/tutorhive/internal/reconciliation"
)

// SweepRunner runs one reconciliation pass on demand.
type SweepRunner interface {
	RunOnce(ctx context.Context) (reconciliation.Summary, error)
}

// AuditRecorder records admin actions.
type AuditRecorder interface {
	Record(ctx context.Context, entry auditDomain.Entry) error
}

// AdminHandler serves the admin API.
type AdminHandler struct {
	sweeper SweepRunner
	audit   AuditRecorder
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(sweeper SweepRunner, audit AuditRecorder, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		sweeper: sweeper,
		audit:   audit,
		logger:  logger,
	}
}

// HandleSweep handles POST /api/v1/admin/sweep. It runs a reconciliation
// pass immediately instead of waiting for the next scheduled one.
func (h *AdminHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	actor := uuid.Nil
	if raw := r.Header.Get("X-Actor-ID"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid X-Actor-ID header")
			return
		}
		actor = parsed
	}

	summary, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("manual sweep failed",
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Sweep failed")
		return
	}

	itemErrors := make([]string, 0, len(summary.Errors))
	for _, ie := range summary.Errors {
		itemErrors = append(itemErrors, ie.Err.Error())
	}

	if h.audit != nil {
		entry := auditDomain.Entry{
			Actor:      actor,
			ActionType: "sweep.triggered",
			EntityType: "sweep",
			NewValues: map[string]any{
				"checked": summary.Checked,
				"fixed":   summary.Fixed,
				"errors":  len(summary.Errors),
			},
		}
		if err := h.audit.Record(r.Context(), entry); err != nil {
			h.logger.Error("failed to record sweep audit entry",
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"checked": summary.Checked,
		"fixed":   summary.Fixed,
		"errors":  itemErrors,
	})
}
