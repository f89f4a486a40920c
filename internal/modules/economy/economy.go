package economy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spiceguild/internal/clock"
	"spiceguild/internal/config"
	"spiceguild/internal/modules/audit"
	"spiceguild/internal/storage"
	"spiceguild/internal/utils"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient balance")
	ErrAlreadyClaimed    = errors.New("daily bonus already claimed")
)

type Service struct {
	store *storage.Store
	cfg   *config.Manager
	audit *audit.Logger
	clock clock.Clock
}

func New(store *storage.Store, cfg *config.Manager, auditLogger *audit.Logger) *Service {
	return &Service{store: store, cfg: cfg, audit: auditLogger, clock: clock.Real()}
}

func (s *Service) WithClock(c clock.Clock) {
	s.clock = c
}

func (s *Service) Account(ctx context.Context, userID int64) (storage.Account, error) {
	return s.store.GetAccount(ctx, userID)
}

// Grant credits target and returns the new balance.
func (s *Service) Grant(ctx context.Context, guildID string, actorID, targetID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, err := s.store.AdjustBalance(ctx, targetID, amount)
	if err != nil {
		return 0, fmt.Errorf("grant: %w", err)
	}
	s.audit.Log(ctx, audit.LevelInfo, guildID, utils.FormatSnowflake(actorID), audit.EventGrant,
		fmt.Sprintf("+%d to %d, balance %d", amount, targetID, balance))
	return balance, nil
}

// Revoke debits target if the balance covers amount. On ErrInsufficientFunds the returned
// balance is the untouched current one.
func (s *Service) Revoke(ctx context.Context, guildID string, actorID, targetID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	balance, ok, err := s.store.Spend(ctx, targetID, amount)
	if err != nil {
		return 0, fmt.Errorf("revoke: %w", err)
	}
	if !ok {
		return balance, ErrInsufficientFunds
	}
	s.audit.Log(ctx, audit.LevelInfo, guildID, utils.FormatSnowflake(actorID), audit.EventRevoke,
		fmt.Sprintf("-%d from %d, balance %d", amount, targetID, balance))
	return balance, nil
}

// ClaimDaily pays the configured daily amount. A second claim on the same local date
// returns ErrAlreadyClaimed together with the time of the next possible claim.
func (s *Service) ClaimDaily(ctx context.Context, userID int64) (storage.DailyClaim, error) {
	cfg := s.cfg.Current()
	claim, err := s.store.ClaimDaily(ctx, userID, cfg.Economy.DailyAmount, s.clock.Now(), cfg.Location())
	if err != nil {
		return storage.DailyClaim{}, fmt.Errorf("daily: %w", err)
	}
	if !claim.Claimed {
		return claim, ErrAlreadyClaimed
	}
	return claim, nil
}

func (s *Service) Leaderboard(ctx context.Context) ([]storage.Account, error) {
	cfg := s.cfg.Current()
	return s.store.Leaderboard(ctx, cfg.Economy.LeaderboardSize, cfg.Economy.LeaderboardIncludeZero)
}

// Now exposes the service clock so cooldown messages agree with the claim check.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}
