package audit

import (
	"context"
	"testing"
	"time"

	"spiceguild/internal/clock"
	"spiceguild/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLogPersists(t *testing.T) {
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate())

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	logger := NewLogger(store, zap.NewNop())
	logger.WithClock(clock.NewFake(now))

	logger.Log(context.Background(), LevelInfo, "g1", "u1", EventGrant, "+50 to 2")

	logs, err := store.ListAuditLogs(context.Background(), "g1", now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, EventGrant, logs[0].Event)
	assert.Equal(t, now.Unix(), logs[0].CreatedAt.Unix())
}

func TestNilLoggerIsNoop(t *testing.T) {
	var logger *Logger
	logger.Log(context.Background(), LevelInfo, "g", "u", EventGrant, "")
}

func TestPruneDropsOldEntries(t *testing.T) {
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate())

	ctx := context.Background()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	fake := clock.NewFake(now.Add(-40 * 24 * time.Hour))
	logger := NewLogger(store, zap.NewNop())
	logger.WithClock(fake)
	logger.Log(ctx, LevelInfo, "g1", "u1", EventGrant, "old")
	fake.Set(now)
	logger.Log(ctx, LevelInfo, "g1", "u1", EventGrant, "new")

	removed, err := logger.Prune(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	logs, err := store.ListAuditLogs(ctx, "", time.Time{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "new", logs[0].Details)
}
