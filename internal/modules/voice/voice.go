// Package voice turns voice presence transitions into accrued minutes and a join reward.
package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spiceguild/internal/clock"
	"spiceguild/internal/config"
	"spiceguild/internal/storage"
	"spiceguild/internal/utils"

	"go.uber.org/zap"
)

type Transition int

const (
	None Transition = iota
	Join
	Switch
	Leave
)

func (t Transition) String() string {
	switch t {
	case Join:
		return "join"
	case Switch:
		return "switch"
	case Leave:
		return "leave"
	default:
		return "none"
	}
}

// Classify maps the channel before and after a voice state update to a transition.
// Mute, deafen and stream toggles keep the same channel and classify as None.
func Classify(before, after string) Transition {
	switch {
	case before == "" && after != "":
		return Join
	case before != "" && after == "":
		return Leave
	case before != "" && after != "" && before != after:
		return Switch
	default:
		return None
	}
}

type Result struct {
	Transition Transition
	Minutes    int64
	Reward     int64
}

type Engine struct {
	store  *storage.Store
	cfg    *config.Manager
	logger *zap.Logger
	clock  clock.Clock
	locks  *utils.KeyedMutex

	joinMu     sync.Mutex
	joins      *utils.KeyedWindow
	joinWindow time.Duration
}

func New(store *storage.Store, cfg *config.Manager, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: logger,
		clock:  clock.Real(),
		locks:  utils.NewKeyedMutex(),
	}
}

func (e *Engine) WithClock(c clock.Clock) {
	e.clock = c
}

// Handle applies one presence transition. Transitions for the same user are serialized.
func (e *Engine) Handle(ctx context.Context, userID int64, beforeChannel, afterChannel string) (Result, error) {
	transition := Classify(beforeChannel, afterChannel)
	result := Result{Transition: transition}
	if transition == None {
		return result, nil
	}

	unlock := e.locks.Lock(utils.FormatSnowflake(userID))
	defer unlock()

	now := e.clock.Now()
	switch transition {
	case Join:
		if err := e.store.SetVoiceSessionStart(ctx, userID, &now, now); err != nil {
			return result, fmt.Errorf("voice join: %w", err)
		}
		reward, err := e.joinReward(ctx, userID, now)
		if err != nil {
			return result, err
		}
		result.Reward = reward
	case Switch, Leave:
		minutes, err := e.store.CloseVoiceSegment(ctx, userID, now, transition == Switch)
		if err != nil {
			return result, fmt.Errorf("voice %s: %w", transition, err)
		}
		result.Minutes = minutes
	}

	e.logger.Debug("voice transition",
		zap.Int64("user_id", userID),
		zap.String("transition", transition.String()),
		zap.Int64("minutes", result.Minutes),
		zap.Int64("reward", result.Reward),
	)
	return result, nil
}

func (e *Engine) joinReward(ctx context.Context, userID int64, now time.Time) (int64, error) {
	cfg := e.cfg.Current()
	reward := cfg.JoinReward()
	if reward <= 0 {
		return 0, nil
	}
	if !e.window(cfg.JoinRewardWindow()).Allow(utils.FormatSnowflake(userID), now, cfg.Economy.JoinRewardCap) {
		return 0, nil
	}
	if _, err := e.store.AdjustBalance(ctx, userID, reward); err != nil {
		return 0, fmt.Errorf("voice reward: %w", err)
	}
	return reward, nil
}

func (e *Engine) window(size time.Duration) *utils.KeyedWindow {
	e.joinMu.Lock()
	defer e.joinMu.Unlock()
	if e.joins == nil || e.joinWindow != size {
		e.joins = utils.NewKeyedWindow(size)
		e.joinWindow = size
	}
	return e.joins
}

// Stats is a voice summary including the still-open session.
type Stats struct {
	TotalMinutes   int64
	SessionMinutes int64
	InVoice        bool
}

func (e *Engine) Stats(ctx context.Context, userID int64) (Stats, error) {
	activity, err := e.store.GetVoiceActivity(ctx, userID)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{TotalMinutes: activity.TotalMinutes, InVoice: activity.InVoice()}
	if activity.SessionStart != nil {
		stats.SessionMinutes = storage.ElapsedMinutes(*activity.SessionStart, e.clock.Now())
	}
	return stats, nil
}
