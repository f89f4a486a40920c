package registry

import (
	"context"
	"strings"
	"testing"
	"time"

	"spiceguild/internal/clock"
	"spiceguild/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) (*Registry, *storage.Store, *clock.Fake) {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())

	reg := New(store)
	fake := clock.NewFake(time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC))
	reg.WithClock(fake)
	return reg, store, fake
}

func TestEventRoleForEmoji(t *testing.T) {
	role, ok := EventRoleForEmoji("🗡️")
	require.True(t, ok)
	assert.Equal(t, Attack, role)

	role, ok = EventRoleForEmoji("🛡")
	require.True(t, ok)
	assert.Equal(t, Def, role)

	role, ok = EventRoleForEmoji("📦")
	require.True(t, ok)
	assert.True(t, role.Privileged())

	_, ok = EventRoleForEmoji("👍")
	assert.False(t, ok)
}

func TestRaidRoleBounds(t *testing.T) {
	_, err := RaidRole(0)
	assert.ErrorIs(t, err, ErrInvalidRoleIndex)
	_, err = RaidRole(len(RaidRoles) + 1)
	assert.ErrorIs(t, err, ErrInvalidRoleIndex)

	role, err := RaidRole(1)
	require.NoError(t, err)
	assert.Equal(t, RaidRoles[0], role)
}

func TestIDs(t *testing.T) {
	now := time.Now()
	event := NewEventID(now)
	raid := NewRaidID(now)
	assert.True(t, strings.HasPrefix(event, "event_"))
	assert.True(t, strings.HasPrefix(raid, "raid_"))
	assert.NotEqual(t, NewEventID(now), event)
	assert.Equal(t, strings.ToLower(event), event)
}

func TestReactionRegistration(t *testing.T) {
	reg, store, _ := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.CreateEvent(ctx, storage.Event{ID: "event_1", CreatorID: 9, Description: "Harvest", MessageID: 77, ChannelID: 5}))

	out, err := reg.RegisterByReaction(ctx, 77, 1, "Ana", "🗡️")
	require.NoError(t, err)
	assert.Equal(t, Attack, out.Role)

	out, err = reg.RegisterByReaction(ctx, 77, 1, "Ana", "🛡️")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	require.NotNil(t, out.Existing)
	assert.Equal(t, string(Attack), out.Existing.Role)

	_, err = reg.RegisterByReaction(ctx, 77, 2, "Ben", "⛏️")
	assert.ErrorIs(t, err, ErrPrivilegedRole)

	_, err = reg.RegisterByReaction(ctx, 77, 2, "Ben", "🎉")
	assert.ErrorIs(t, err, ErrUnknownReaction)

	_, err = reg.RegisterByReaction(ctx, 78, 2, "Ben", "🗡️")
	assert.ErrorIs(t, err, ErrUnknownEvent)

	regs, err := store.ListEventRegistrations(ctx, "event_1")
	require.NoError(t, err)
	assert.Len(t, regs, 1)
}

func TestModeratorAssign(t *testing.T) {
	reg, _, _ := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.CreateEvent(ctx, storage.Event{ID: "event_2", CreatorID: 9, MessageID: 80}))

	_, err := reg.Assign(ctx, "event_2", 3, "Cid", Crawler)
	require.NoError(t, err)

	existing, err := reg.Assign(ctx, "event_2", 3, "Cid", Carrier)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	require.NotNil(t, existing)
	assert.Equal(t, string(Crawler), existing.Role)

	_, err = reg.Assign(ctx, "event_2", 4, "Dee", Attack)
	assert.ErrorIs(t, err, ErrNotAssignable)

	_, err = reg.Assign(ctx, "event_missing", 4, "Dee", Carrier)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestEventSummaryGroups(t *testing.T) {
	reg, _, fake := newRegistry(t)
	ctx := context.Background()
	require.NoError(t, reg.CreateEvent(ctx, storage.Event{ID: "event_3", CreatorID: 9, MessageID: 90}))

	_, err := reg.RegisterByReaction(ctx, 90, 1, "A", "🛡️")
	require.NoError(t, err)
	fake.Advance(time.Second)
	_, err = reg.RegisterByReaction(ctx, 90, 2, "B", "🛡️")
	require.NoError(t, err)
	fake.Advance(time.Second)
	_, err = reg.Assign(ctx, "event_3", 3, "C", Carrier)
	require.NoError(t, err)

	summary, err := reg.EventSummary(ctx, "event_3")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	require.Len(t, summary.Groups, 4)
	assert.Equal(t, "Attack", summary.Groups[0].Role)
	assert.Empty(t, summary.Groups[0].Entries)
	assert.Equal(t, []string{"A", "B"}, []string{summary.Groups[1].Entries[0].DisplayName, summary.Groups[1].Entries[1].DisplayName})
	assert.Empty(t, summary.Groups[2].Entries)
	assert.Len(t, summary.Groups[3].Entries, 1)
}

func TestRaidSignup(t *testing.T) {
	reg, _, _ := newRegistry(t)
	ctx := context.Background()

	role, err := reg.SignupRaid(ctx, "raid_1", 1, "Ana", 2, "main tank")
	require.NoError(t, err)
	assert.Equal(t, RaidRoles[1], role)

	_, err = reg.SignupRaid(ctx, "raid_1", 1, "Ana", 3, "")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	_, err = reg.SignupRaid(ctx, "raid_1", 2, "Ben", 0, "")
	assert.ErrorIs(t, err, ErrInvalidRoleIndex)
	_, err = reg.SignupRaid(ctx, "raid_1", 2, "Ben", 7, "")
	assert.ErrorIs(t, err, ErrInvalidRoleIndex)

	summary, err := reg.RaidSummary(ctx, "raid_1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	require.Len(t, summary.Groups, len(RaidRoles))
	assert.Len(t, summary.Groups[1].Entries, 1)

	empty, err := reg.RaidSummary(ctx, "raid_none")
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Len(t, empty.Groups, len(RaidRoles))
}

func TestGroupRegistrationsKeepsUnknownRoles(t *testing.T) {
	regs := []storage.Registration{
		{UserID: 1, Role: "legacy"},
		{UserID: 2, Role: "x"},
		{UserID: 3, Role: "legacy"},
	}
	groups := GroupRegistrations([]string{"x", "y"}, regs)
	require.Len(t, groups, 3)
	assert.Equal(t, "x", groups[0].Role)
	assert.Empty(t, groups[1].Entries)
	assert.Equal(t, "legacy", groups[2].Role)
	assert.Equal(t, int64(1), groups[2].Entries[0].UserID)
	assert.Equal(t, int64(3), groups[2].Entries[1].UserID)
}
