package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterEventRoleOncePerUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ok, err := store.RegisterEventRole(ctx, "event_a", 1, "Paul", "Attack", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.RegisterEventRole(ctx, "event_a", 1, "Paul", "Def", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	regs, err := store.ListEventRegistrations(ctx, "event_a")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "Attack", regs[0].Role)

	reg, found, err := store.GetEventRegistration(ctx, "event_a", 1)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Attack", reg.Role)

	ok, err = store.RegisterEventRole(ctx, "event_b", 1, "Paul", "Def", now)
	require.NoError(t, err)
	assert.True(t, ok, "uniqueness is scoped per event")
}

func TestListRegistrationsFirstComeFirstServed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	_, err := store.RegisterEventRole(ctx, "event_x", 3, "C", "Def", base.Add(2*time.Second))
	require.NoError(t, err)
	_, err = store.RegisterEventRole(ctx, "event_x", 1, "A", "Attack", base)
	require.NoError(t, err)
	_, err = store.RegisterEventRole(ctx, "event_x", 2, "B", "Attack", base)
	require.NoError(t, err)

	regs, err := store.ListEventRegistrations(ctx, "event_x")
	require.NoError(t, err)
	require.Len(t, regs, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{regs[0].UserID, regs[1].UserID, regs[2].UserID})
}

func TestRegisterRaidRole(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	ok, err := store.RegisterRaidRole(ctx, "raid_1", 10, "Tanky", "🛡️ Tank", "bring potions", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.RegisterRaidRole(ctx, "raid_1", 10, "Tanky", "🎯 Sniper", "", now)
	require.NoError(t, err)
	assert.False(t, ok)

	regs, err := store.ListRaidRegistrations(ctx, "raid_1")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, "bring potions", regs[0].Notes)

	empty, err := store.ListRaidRegistrations(ctx, "raid_missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFindEventByMessage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateEvent(ctx, Event{ID: "event_m", CreatorID: 1, Description: "Boss", MessageID: 555, ChannelID: 9, CreatedAt: time.Now()}))

	event, ok, err := store.FindEventByMessage(ctx, 555)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "event_m", event.ID)

	_, ok, err = store.FindEventByMessage(ctx, 556)
	require.NoError(t, err)
	assert.False(t, ok)
}
