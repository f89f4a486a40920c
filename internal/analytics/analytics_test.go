package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"spiceguild/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportAggregatesAuditLogs(t *testing.T) {
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	entries := []storage.AuditLog{
		{GuildID: "g1", UserID: "1", Level: "INFO", Event: "spice_grant", CreatedAt: base.Add(-48 * time.Hour)},
		{GuildID: "g1", UserID: "1", Level: "INFO", Event: "spice_grant", CreatedAt: base},
		{GuildID: "g1", UserID: "2", Level: "INFO", Event: "spice_grant", CreatedAt: base.Add(time.Minute)},
		{GuildID: "g1", UserID: "1", Level: "WARN", Event: "voice_lock", CreatedAt: base.Add(2 * time.Minute)},
		{GuildID: "g1", UserID: "", Level: "INFO", Event: "promotion", CreatedAt: base.Add(3 * time.Minute)},
		{GuildID: "g2", UserID: "3", Level: "INFO", Event: "spice_grant", CreatedAt: base},
	}
	for _, entry := range entries {
		require.NoError(t, store.AddAuditLog(ctx, entry))
	}

	report, err := New(store).Report(ctx, "g1", base.Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, map[string]int{"INFO": 3, "WARN": 1}, report.ByLevel)
	assert.Equal(t, []Count{{Key: "spice_grant", Count: 2}, {Key: "promotion", Count: 1}, {Key: "voice_lock", Count: 1}}, report.ByEvent)
	assert.Equal(t, []Count{{Key: "1", Count: 2}, {Key: "2", Count: 1}}, report.TopUsers)
	require.Len(t, report.Recent, 4)
	assert.Equal(t, "promotion", report.Recent[0].Event)
}

type failingSource struct{}

func (failingSource) ListAuditLogs(context.Context, string, time.Time) ([]storage.AuditLog, error) {
	return nil, errors.New("database is locked")
}

func TestReportPropagatesErrors(t *testing.T) {
	_, err := New(failingSource{}).Report(context.Background(), "", time.Time{})
	assert.EqualError(t, err, "database is locked")
}

func TestRankedLimit(t *testing.T) {
	out := ranked(map[string]int{"a": 1, "b": 3, "c": 2}, 2)
	assert.Equal(t, []Count{{Key: "b", Count: 3}, {Key: "c", Count: 2}}, out)
	assert.Empty(t, ranked(nil, 0))
}
