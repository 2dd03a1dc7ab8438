package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	bookingCommands "github.com/tutorhive/tutorhive/internal/booking/application/commands"
	subscriptionCommands "github.com/tutorhive/tutorhive/internal/subscriptions/application/commands"
)

// Stripe caps event payloads well below this; anything larger is noise.
const maxWebhookBody = 64 * 1024

// BookingConfirmer applies a paid checkout session to its booking.
type BookingConfirmer interface {
	Handle(ctx context.Context, cmd bookingCommands.ConfirmPaymentCommand) (*bookingCommands.ConfirmPaymentResult, error)
}

// SubscriptionConfirmer provisions a subscription from a paid checkout session.
type SubscriptionConfirmer interface {
	Handle(ctx context.Context, cmd subscriptionCommands.ConfirmSubscriptionCommand) (*subscriptionCommands.ConfirmSubscriptionResult, error)
}

// WebhookHandler receives payment processor events. Sessions are routed by
// metadata: booking checkouts carry a booking_id, subscription checkouts a
// user_id. The webhook is a hint, not the source of truth; the handlers
// re-read the session from the processor before changing anything.
type WebhookHandler struct {
	bookings      BookingConfirmer
	subscriptions SubscriptionConfirmer
	secret        string
	logger        *slog.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(
	bookings BookingConfirmer,
	subscriptions SubscriptionConfirmer,
	secret string,
	logger *slog.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		bookings:      bookings,
		subscriptions: subscriptions,
		secret:        secret,
		logger:        logger,
	}
}

// HandlePaymentEvent handles POST /webhooks/payment.
func (h *WebhookHandler) HandlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Payload too large")
		return
	}

	// API version drift between the dashboard and the pinned SDK version must
	// not reject an authentically signed event.
	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("webhook signature verification failed",
			"error", err,
		)
		writeError(w, http.StatusBadRequest, "Invalid signature")
		return
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		h.logger.Debug("ignoring webhook event",
			"type", event.Type,
		)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to unmarshal checkout session",
			"event_id", event.ID,
			"error", err,
		)
		writeError(w, http.StatusBadRequest, "Malformed event payload")
		return
	}

	switch {
	case session.Metadata[bookingCommands.MetadataBookingID] != "":
		h.confirmBooking(w, r, session.ID)
	case session.Metadata[subscriptionCommands.MetadataUserID] != "":
		h.confirmSubscription(w, r, session.ID)
	default:
		h.logger.Warn("checkout session has no routing metadata",
			"session_id", session.ID,
		)
		writeJSON(w, http.StatusOK, map[string]string{"status": "unrouted"})
	}
}

func (h *WebhookHandler) confirmBooking(w http.ResponseWriter, r *http.Request, sessionID string) {
	result, err := h.bookings.Handle(r.Context(), bookingCommands.ConfirmPaymentCommand{SessionID: sessionID})
	if err != nil {
		h.logger.Error("failed to confirm booking payment",
			"session_id", sessionID,
			"error", err,
		)
		// Non-2xx asks the processor to redeliver. The handler is
		// idempotent, so a retry is always safe.
		writeError(w, http.StatusInternalServerError, "Confirmation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "processed",
		"outcome": string(result.Outcome),
	})
}

func (h *WebhookHandler) confirmSubscription(w http.ResponseWriter, r *http.Request, sessionID string) {
	result, err := h.subscriptions.Handle(r.Context(), subscriptionCommands.ConfirmSubscriptionCommand{SessionID: sessionID})
	if err != nil {
		h.logger.Error("failed to confirm subscription",
			"session_id", sessionID,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "Confirmation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "processed",
		"outcome": string(result.Outcome),
	})
}
