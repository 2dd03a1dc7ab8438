package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectedAccountDeriveState(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	t.Run("no remote account", func(t *testing.T) {
		a := NewConnectedAccount(uuid.New(), "US", "usd", now)
		assert.Equal(t, StateNoAccount, a.DeriveState(true, true))
	})

	t.Run("details pending", func(t *testing.T) {
		a := NewConnectedAccount(uuid.New(), "US", "usd", now)
		require.NoError(t, a.AttachRemoteAccount("acct_1", now))
		assert.Equal(t, StateDetailsPending, a.DeriveState(false, false))
	})

	t.Run("details submitted but capabilities lagging", func(t *testing.T) {
		a := NewConnectedAccount(uuid.New(), "US", "usd", now)
		require.NoError(t, a.AttachRemoteAccount("acct_1", now))
		a.RecordDetailsSubmitted(true, now)
		assert.Equal(t, StateDetailsSubmitted, a.DeriveState(true, false))
	})

	t.Run("payment capable requires both capability flags", func(t *testing.T) {
		a := NewConnectedAccount(uuid.New(), "US", "usd", now)
		require.NoError(t, a.AttachRemoteAccount("acct_1", now))
		a.RecordDetailsSubmitted(true, now)
		assert.Equal(t, StatePaymentCapable, a.DeriveState(true, true))
	})
}

func TestConnectedAccountAttachRemoteAccount(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	t.Run("writes the reference once", func(t *testing.T) {
		a := NewConnectedAccount(uuid.New(), "US", "usd", now)
		require.NoError(t, a.AttachRemoteAccount("acct_1", now))
		require.NoError(t, a.AttachRemoteAccount("acct_2", now))
		assert.Equal(t, "acct_1", *a.ExternalAccountID())
	})

	t.Run("rejects an empty reference", func(t *testing.T) {
		a := NewConnectedAccount(uuid.New(), "US", "usd", now)
		assert.ErrorIs(t, a.AttachRemoteAccount("", now), ErrAccountRefEmpty)
	})
}

func TestRecordDetailsSubmitted(t *testing.T) {
	now := time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)

	a := NewConnectedAccount(uuid.New(), "US", "usd", now)
	assert.True(t, a.RecordDetailsSubmitted(true, now))
	assert.False(t, a.RecordDetailsSubmitted(true, now))
	assert.True(t, a.RecordDetailsSubmitted(false, now))
}
