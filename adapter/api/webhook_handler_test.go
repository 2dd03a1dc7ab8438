package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	bookingCommands "github.com/tutorhive/tutorhive/internal/booking/application/commands"
	subscriptionCommands "github.com/tutorhive/tutorhive/internal/subscriptions/application/commands"
)

const testWebhookSecret = "whsec_test"

type mockBookingConfirmer struct {
	mock.Mock
}

func (m *mockBookingConfirmer) Handle(ctx context.Context, cmd bookingCommands.ConfirmPaymentCommand) (*bookingCommands.ConfirmPaymentResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bookingCommands.ConfirmPaymentResult), args.Error(1)
}

type mockSubscriptionConfirmer struct {
	mock.Mock
}

func (m *mockSubscriptionConfirmer) Handle(ctx context.Context, cmd subscriptionCommands.ConfirmSubscriptionCommand) (*subscriptionCommands.ConfirmSubscriptionResult, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscriptionCommands.ConfirmSubscriptionResult), args.Error(1)
}

// signedRequest builds a webhook request carrying a valid Stripe signature
// for the given payload.
func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	sig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", ts, sig))
	return req
}

func checkoutCompletedPayload(sessionID, metadataKey, metadataValue string) string {
	return fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": %q, "metadata": {%q: %q}}}
	}`, sessionID, metadataKey, metadataValue)
}

func TestWebhookHandler_HandlePaymentEvent(t *testing.T) {
	bookingID := uuid.New()
	userID := uuid.New()

	t.Run("routes booking sessions to the booking confirmer", func(t *testing.T) {
		bookings := new(mockBookingConfirmer)
		bookings.On("Handle", mock.Anything, bookingCommands.ConfirmPaymentCommand{SessionID: "cs_1"}).
			Return(&bookingCommands.ConfirmPaymentResult{Outcome: bookingCommands.OutcomeApplied}, nil)
		handler := NewWebhookHandler(bookings, new(mockSubscriptionConfirmer), testWebhookSecret, slog.New(slog.DiscardHandler))

		rec := httptest.NewRecorder()
		handler.HandlePaymentEvent(rec, signedRequest(t, checkoutCompletedPayload("cs_1", "booking_id", bookingID.String())))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "applied")
		bookings.AssertExpectations(t)
	})

	t.Run("routes subscription sessions to the subscription confirmer", func(t *testing.T) {
		subscriptions := new(mockSubscriptionConfirmer)
		subscriptions.On("Handle", mock.Anything, subscriptionCommands.ConfirmSubscriptionCommand{SessionID: "cs_2"}).
			Return(&subscriptionCommands.ConfirmSubscriptionResult{Outcome: subscriptionCommands.OutcomeProvisioned}, nil)
		handler := NewWebhookHandler(new(mockBookingConfirmer), subscriptions, testWebhookSecret, slog.New(slog.DiscardHandler))

		rec := httptest.NewRecorder()
		handler.HandlePaymentEvent(rec, signedRequest(t, checkoutCompletedPayload("cs_2", "user_id", userID.String())))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "provisioned")
		subscriptions.AssertExpectations(t)
	})

	t.Run("rejects a bad signature", func(t *testing.T) {
		bookings := new(mockBookingConfirmer)
		handler := NewWebhookHandler(bookings, new(mockSubscriptionConfirmer), testWebhookSecret, slog.New(slog.DiscardHandler))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/payment",
			strings.NewReader(checkoutCompletedPayload("cs_1", "booking_id", bookingID.String())))
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")

		rec := httptest.NewRecorder()
		handler.HandlePaymentEvent(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		bookings.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	})

	t.Run("ignores other event types", func(t *testing.T) {
		bookings := new(mockBookingConfirmer)
		handler := NewWebhookHandler(bookings, new(mockSubscriptionConfirmer), testWebhookSecret, slog.New(slog.DiscardHandler))

		payload := `{"id": "evt_2", "type": "invoice.paid", "data": {"object": {"id": "in_1"}}}`
		rec := httptest.NewRecorder()
		handler.HandlePaymentEvent(rec, signedRequest(t, payload))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "ignored")
		bookings.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	})

	t.Run("accepts but does not route sessions without metadata", func(t *testing.T) {
		bookings := new(mockBookingConfirmer)
		subscriptions := new(mockSubscriptionConfirmer)
		handler := NewWebhookHandler(bookings, subscriptions, testWebhookSecret, slog.New(slog.DiscardHandler))

		payload := `{"id": "evt_3", "type": "checkout.session.completed", "data": {"object": {"id": "cs_3"}}}`
		rec := httptest.NewRecorder()
		handler.HandlePaymentEvent(rec, signedRequest(t, payload))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "unrouted")
		bookings.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
		subscriptions.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	})

	t.Run("returns 500 so a failed confirmation is redelivered", func(t *testing.T) {
		bookings := new(mockBookingConfirmer)
		bookings.On("Handle", mock.Anything, mock.Anything).
			Return(nil, errors.New("database unavailable"))
		handler := NewWebhookHandler(bookings, new(mockSubscriptionConfirmer), testWebhookSecret, slog.New(slog.DiscardHandler))

		rec := httptest.NewRecorder()
		handler.HandlePaymentEvent(rec, signedRequest(t, checkoutCompletedPayload("cs_1", "booking_id", bookingID.String())))

		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
