package commands

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	auditDomain "github.com/tutorhive/tutorhive/internal/audit/domain"
	"github.com/tutorhive/tutorhive/internal/shared/clock"
	"github.com/tutorhive/tutorhive/internal/subscriptions/domain"
)

func TestExtendSubscriptionHandler_Handle(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	userID := uuid.New()
	actor := uuid.New()

	t.Run("extends active grant from its expiry and audits", func(t *testing.T) {
		repo := new(mockSubscriptionRepo)
		audit := new(mockAuditRecorder)
		handler := NewExtendSubscriptionHandler(repo, audit, clock.NewFake(testNow), logger)

		expiry := testNow.Add(10 * 24 * time.Hour)
		sub, err := domain.NewSubscription(userID, "monthly", domain.SourcePurchase, expiry)
		require.NoError(t, err)

		repo.On("FindLatestByUser", ctx, userID).Return(sub, nil)
		repo.On("Save", ctx, sub).Return(nil)
		audit.On("Record", ctx, mock.MatchedBy(func(e auditDomain.Entry) bool {
			return e.ActionType == "subscription.extended" && e.Actor == actor
		})).Return(nil)

		result, err := handler.Handle(ctx, ExtendSubscriptionCommand{UserID: userID, Days: 7, Actor: actor})

		require.NoError(t, err)
		assert.Equal(t, expiry, result.OldExpiresAt)
		assert.Equal(t, expiry.Add(7*24*time.Hour), result.NewExpiresAt)
		audit.AssertExpectations(t)
	})

	t.Run("expired grant extends from now", func(t *testing.T) {
		repo := new(mockSubscriptionRepo)
		audit := new(mockAuditRecorder)
		handler := NewExtendSubscriptionHandler(repo, audit, clock.NewFake(testNow), logger)

		sub, err := domain.NewSubscription(userID, "monthly", domain.SourcePurchase, testNow.Add(-5*24*time.Hour))
		require.NoError(t, err)

		repo.On("FindLatestByUser", ctx, userID).Return(sub, nil)
		repo.On("Save", ctx, sub).Return(nil)
		audit.On("Record", ctx, mock.AnythingOfType("domain.Entry")).Return(nil)

		result, err := handler.Handle(ctx, ExtendSubscriptionCommand{UserID: userID, Days: 7, Actor: actor})

		require.NoError(t, err)
		assert.Equal(t, testNow.Add(7*24*time.Hour), result.NewExpiresAt)
	})

	t.Run("user without grant", func(t *testing.T) {
		repo := new(mockSubscriptionRepo)
		audit := new(mockAuditRecorder)
		handler := NewExtendSubscriptionHandler(repo, audit, clock.NewFake(testNow), logger)

		repo.On("FindLatestByUser", ctx, userID).Return(nil, nil)

		_, err := handler.Handle(ctx, ExtendSubscriptionCommand{UserID: userID, Days: 7, Actor: actor})

		assert.ErrorIs(t, err, ErrSubscriptionNotFound)
	})

	t.Run("audit failure does not fail the extension", func(t *testing.T) {
		repo := new(mockSubscriptionRepo)
		audit := new(mockAuditRecorder)
		handler := NewExtendSubscriptionHandler(repo, audit, clock.NewFake(testNow), logger)

		sub, err := domain.NewSubscription(userID, "monthly", domain.SourcePurchase, testNow.Add(time.Hour))
		require.NoError(t, err)

		repo.On("FindLatestByUser", ctx, userID).Return(sub, nil)
		repo.On("Save", ctx, sub).Return(nil)
		audit.On("Record", ctx, mock.AnythingOfType("domain.Entry")).Return(errors.New("audit store down"))

		_, err = handler.Handle(ctx, ExtendSubscriptionCommand{UserID: userID, Days: 7, Actor: actor})

		require.NoError(t, err)
	})
}

func TestCreatePassHandler_Handle(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)
	userID := uuid.New()
	actor := uuid.New()

	t.Run("creates a manual pass and audits", func(t *testing.T) {
		repo := new(mockSubscriptionRepo)
		audit := new(mockAuditRecorder)
		handler := NewCreatePassHandler(repo, audit, clock.NewFake(testNow), logger)

		repo.On("Save", ctx, mock.AnythingOfType("*domain.Subscription")).Return(nil)
		audit.On("Record", ctx, mock.MatchedBy(func(e auditDomain.Entry) bool {
			return e.ActionType == "pass.created" && e.Actor == actor
		})).Return(nil)

		result, err := handler.Handle(ctx, CreatePassCommand{UserID: userID, Plan: "trial", Days: 14, Actor: actor})

		require.NoError(t, err)
		assert.Equal(t, testNow.Add(14*24*time.Hour), result.ExpiresAt)

		saved := repo.Calls[0].Arguments.Get(1).(*domain.Subscription)
		assert.Equal(t, domain.SourceManual, saved.Source())
		assert.Nil(t, saved.SessionRef())
		audit.AssertExpectations(t)
	})

	t.Run("rejects non-positive days", func(t *testing.T) {
		handler := NewCreatePassHandler(new(mockSubscriptionRepo), new(mockAuditRecorder), clock.NewFake(testNow), logger)

		_, err := handler.Handle(ctx, CreatePassCommand{UserID: userID, Plan: "trial", Days: 0, Actor: actor})

		assert.ErrorIs(t, err, domain.ErrInvalidDays)
	})
}
