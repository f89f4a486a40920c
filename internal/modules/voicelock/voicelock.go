// Package voicelock tracks which voice channels are locked or rage-locked.
package voicelock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"spiceguild/internal/clock"
	"spiceguild/internal/modules/audit"
)

type State struct {
	ChannelID  string
	Locked     bool
	RageLocked bool
	// Until is zero for rage locks without expiry.
	Until time.Time
}

type channelState struct {
	State
	timer clock.Timer
}

type Engine struct {
	mu       sync.RWMutex
	clock    clock.Clock
	audit    *audit.Logger
	channels map[string]*channelState
	onExpire func(guildID, channelID string)
}

func New(auditLogger *audit.Logger) *Engine {
	return &Engine{
		clock:    clock.Real(),
		audit:    auditLogger,
		channels: make(map[string]*channelState),
	}
}

func (e *Engine) WithClock(c clock.Clock) {
	e.clock = c
}

// OnExpire is called after a timed rage lock lifts by itself.
func (e *Engine) OnExpire(fn func(guildID, channelID string)) {
	e.mu.Lock()
	e.onExpire = fn
	e.mu.Unlock()
}

func (e *Engine) SetLocked(ctx context.Context, guildID, channelID, actorID string, locked bool) {
	e.mu.Lock()
	state := e.stateLocked(guildID, channelID)
	state.Locked = locked
	e.cleanupLocked(guildID, channelID)
	e.mu.Unlock()

	action := "unlocked"
	if locked {
		action = "locked"
	}
	e.audit.Log(ctx, audit.LevelInfo, guildID, actorID, audit.EventVoiceLock, fmt.Sprintf("channel %s %s", channelID, action))
}

// RageLock marks the channel so non-exempt joiners get disconnected. A positive duration
// lifts the lock automatically. It returns false if the channel was already rage-locked.
func (e *Engine) RageLock(ctx context.Context, guildID, channelID, actorID string, duration time.Duration) bool {
	e.mu.Lock()
	state := e.stateLocked(guildID, channelID)
	if state.RageLocked {
		e.mu.Unlock()
		return false
	}
	state.RageLocked = true
	state.Until = time.Time{}
	if duration > 0 {
		state.Until = e.clock.Now().Add(duration)
		state.timer = e.clock.AfterFunc(duration, func() {
			e.expire(guildID, channelID)
		})
	}
	e.mu.Unlock()

	details := fmt.Sprintf("channel %s rage-locked", channelID)
	if duration > 0 {
		details += " for " + duration.String()
	}
	e.audit.Log(ctx, audit.LevelWarn, guildID, actorID, audit.EventVoiceLock, details)
	return true
}

// Unrage lifts a rage lock and reports whether one was active.
func (e *Engine) Unrage(ctx context.Context, guildID, channelID, actorID string) bool {
	e.mu.Lock()
	state := e.channels[key(guildID, channelID)]
	if state == nil || !state.RageLocked {
		e.mu.Unlock()
		return false
	}
	e.clearRageLocked(state)
	e.cleanupLocked(guildID, channelID)
	e.mu.Unlock()

	e.audit.Log(ctx, audit.LevelInfo, guildID, actorID, audit.EventVoiceLock, fmt.Sprintf("channel %s rage lock lifted", channelID))
	return true
}

func (e *Engine) IsRageLocked(guildID, channelID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	state := e.channels[key(guildID, channelID)]
	return state != nil && state.RageLocked
}

func (e *Engine) Get(guildID, channelID string) State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	state := e.channels[key(guildID, channelID)]
	if state == nil {
		return State{ChannelID: channelID}
	}
	return state.State
}

// List returns the guild's locked or rage-locked channels ordered by channel id.
func (e *Engine) List(guildID string) []State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	prefix := guildID + ":"
	var out []State
	for k, state := range e.channels {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, state.State)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// Forget drops all state for a deleted channel.
func (e *Engine) Forget(guildID, channelID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if state := e.channels[key(guildID, channelID)]; state != nil {
		e.clearRageLocked(state)
		delete(e.channels, key(guildID, channelID))
	}
}

func (e *Engine) expire(guildID, channelID string) {
	e.mu.Lock()
	state := e.channels[key(guildID, channelID)]
	if state == nil || !state.RageLocked {
		e.mu.Unlock()
		return
	}
	state.RageLocked = false
	state.Until = time.Time{}
	state.timer = nil
	e.cleanupLocked(guildID, channelID)
	notify := e.onExpire
	e.mu.Unlock()

	e.audit.Log(context.Background(), audit.LevelInfo, guildID, "", audit.EventVoiceLock, fmt.Sprintf("channel %s rage lock expired", channelID))
	if notify != nil {
		notify(guildID, channelID)
	}
}

func (e *Engine) clearRageLocked(state *channelState) {
	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}
	state.RageLocked = false
	state.Until = time.Time{}
}

func (e *Engine) stateLocked(guildID, channelID string) *channelState {
	k := key(guildID, channelID)
	state := e.channels[k]
	if state == nil {
		state = &channelState{State: State{ChannelID: channelID}}
		e.channels[k] = state
	}
	return state
}

func (e *Engine) cleanupLocked(guildID, channelID string) {
	k := key(guildID, channelID)
	if state := e.channels[k]; state != nil && !state.Locked && !state.RageLocked {
		delete(e.channels, k)
	}
}

func key(guildID, channelID string) string {
	return guildID + ":" + channelID
}
