// Package infrastructure provides notification delivery backends.
package infrastructure

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogNotifier writes notifications to the structured log. It is the default
// backend until a push or email channel is wired in.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification at info level.
func (n *LogNotifier) Notify(ctx context.Context, userID uuid.UUID, notificationType, title, message string, data map[string]any) error {
	n.logger.InfoContext(ctx, "notification dispatched",
		"user_id", userID,
		"type", notificationType,
		"title", title,
		"message", message,
		"data", data,
	)
	return nil
}
