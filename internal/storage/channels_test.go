package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempChannelLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ClaimTempChannel(ctx, 100, 7, time.Now()))
	owner, ok, err := store.GetTempChannelOwner(ctx, 100)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), owner)

	channels, err := store.ListTempChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 1)

	released, err := store.ReleaseTempChannel(ctx, 100)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = store.ReleaseTempChannel(ctx, 100)
	require.NoError(t, err)
	assert.False(t, released)

	_, ok, err = store.GetTempChannelOwner(ctx, 100)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestModmailOneOpenThreadPerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	opened, err := store.OpenModmail(ctx, 1, 500, now)
	require.NoError(t, err)
	assert.True(t, opened)

	opened, err = store.OpenModmail(ctx, 1, 501, now)
	require.NoError(t, err)
	assert.False(t, opened)

	channel, ok, err := store.GetOpenModmailChannel(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(500), channel)

	user, ok, err := store.GetOpenModmailUser(ctx, 500)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), user)

	user, ok, err = store.CloseModmail(ctx, 500, now)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), user)

	_, ok, err = store.CloseModmail(ctx, 500, now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.GetOpenModmailChannel(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	opened, err = store.OpenModmail(ctx, 1, 502, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, opened, "a closed thread does not block a new one")

	threads, err := store.ListModmailThreads(ctx, 1)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, ModmailClosed, threads[0].Status)
	assert.NotNil(t, threads[0].ClosedAt)
	assert.Equal(t, ModmailOpen, threads[1].Status)
}

func TestApplyPromotionPaysOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	paid, err := store.ApplyPromotion(ctx, 4, 1000, now)
	require.NoError(t, err)
	assert.True(t, paid)

	paid, err = store.ApplyPromotion(ctx, 4, 1000, now)
	require.NoError(t, err)
	assert.False(t, paid)

	promoted, err := store.IsPromoted(ctx, 4)
	require.NoError(t, err)
	assert.True(t, promoted)

	account, err := store.GetAccount(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), account.Balance)
	assert.Equal(t, int64(1000), account.TotalEarned)
}
