// Package promotion moves recruits to members once their accrued voice time crosses the threshold.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spiceguild/internal/clock"
	"spiceguild/internal/config"
	"spiceguild/internal/modules/audit"
	"spiceguild/internal/storage"
	"spiceguild/internal/utils"

	"go.uber.org/zap"
)

var (
	ErrSweepRunning  = errors.New("promotion sweep already running")
	ErrRolesUnset    = errors.New("recruit and member roles are not configured")
	ErrNotRecruit    = errors.New("member does not hold the recruit role")
	ErrAlreadyMember = errors.New("member already holds the member role")
	ErrRoleMissing   = errors.New("configured role does not exist in guild")
)

type Candidate struct {
	GuildID     string
	UserID      string
	DisplayName string
	RoleIDs     []string
}

// Roster is the guild-side view the sweep needs. The bot implements it on top of the gateway state.
type Roster interface {
	Guilds() []string
	RoleExists(guildID, roleID string) bool
	MembersWithRole(ctx context.Context, guildID, roleID string) ([]Candidate, error)
	SwapRoles(ctx context.Context, guildID, userID, removeRoleID, addRoleID string) error
	NotifyPromotion(ctx context.Context, candidate Candidate, minutes, bonus int64) error
}

type Outcome struct {
	Candidate Candidate
	Minutes   int64
	Paid      bool
	Bonus     int64
}

type Report struct {
	Scanned  int
	Promoted []Outcome
	Failed   int
	Skipped  []string
}

type Sweeper struct {
	store  *storage.Store
	cfg    *config.Manager
	roster Roster
	audit  *audit.Logger
	logger *zap.Logger
	clock  clock.Clock

	sweepMu  sync.Mutex
	interval chan time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(store *storage.Store, cfg *config.Manager, roster Roster, auditLogger *audit.Logger, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		cfg:      cfg,
		roster:   roster,
		audit:    auditLogger,
		logger:   logger,
		clock:    clock.Real(),
		interval: make(chan time.Duration, 1),
		stopCh:   make(chan struct{}),
	}
}

func (s *Sweeper) WithClock(c clock.Clock) {
	s.clock = c
}

// Start runs a sweep immediately and then on every interval until ctx ends or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	interval := s.cfg.Current().PromotionInterval()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.runOnce(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case next := <-s.interval:
				if next > 0 && next != interval {
					interval = next
					ticker.Reset(interval)
					s.logger.Info("promotion interval changed", zap.Duration("interval", interval))
				}
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()
}

// SetInterval asks the running loop to switch interval. Only the latest request is kept.
func (s *Sweeper) SetInterval(d time.Duration) {
	select {
	case <-s.interval:
	default:
	}
	select {
	case s.interval <- d:
	default:
	}
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sweeper) runOnce(ctx context.Context) {
	report, err := s.Sweep(ctx)
	if err != nil {
		if errors.Is(err, ErrRolesUnset) || errors.Is(err, ErrSweepRunning) {
			s.logger.Debug("promotion sweep skipped", zap.Error(err))
			return
		}
		s.logger.Error("promotion sweep failed", zap.Error(err))
		return
	}
	if len(report.Promoted) > 0 || report.Failed > 0 {
		s.logger.Info("promotion sweep finished",
			zap.Int("scanned", report.Scanned),
			zap.Int("promoted", len(report.Promoted)),
			zap.Int("failed", report.Failed),
		)
	}
}

// Sweep checks every recruit in every guild once. Concurrent calls return ErrSweepRunning.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	if !s.sweepMu.TryLock() {
		return Report{}, ErrSweepRunning
	}
	defer s.sweepMu.Unlock()

	cfg := s.cfg.Current()
	recruitRole, memberRole := cfg.RoleID(config.RoleRecruit), cfg.RoleID(config.RoleMember)
	if recruitRole == "" || memberRole == "" {
		return Report{}, ErrRolesUnset
	}
	threshold := cfg.PromotionThresholdMinutes()

	var report Report
	for _, guildID := range s.roster.Guilds() {
		if !s.roster.RoleExists(guildID, recruitRole) || !s.roster.RoleExists(guildID, memberRole) {
			s.logger.Warn("promotion roles missing in guild", zap.String("guild_id", guildID))
			report.Skipped = append(report.Skipped, guildID)
			continue
		}
		candidates, err := s.roster.MembersWithRole(ctx, guildID, recruitRole)
		if err != nil {
			s.logger.Warn("list recruits failed", zap.String("guild_id", guildID), zap.Error(err))
			report.Skipped = append(report.Skipped, guildID)
			continue
		}
		for _, candidate := range candidates {
			report.Scanned++
			minutes, err := s.minutes(ctx, candidate.UserID)
			if err != nil {
				report.Failed++
				s.logger.Warn("read voice minutes failed", zap.String("guild_id", guildID), zap.String("user_id", candidate.UserID), zap.Error(err))
				continue
			}
			if minutes < threshold {
				continue
			}
			outcome, err := s.promote(ctx, cfg, candidate, minutes, recruitRole, memberRole)
			if err != nil {
				report.Failed++
				s.logger.Warn("promotion failed", zap.String("guild_id", guildID), zap.String("user_id", candidate.UserID), zap.Error(err))
				continue
			}
			report.Promoted = append(report.Promoted, outcome)
		}
	}
	return report, nil
}

// ForcePromote promotes candidate regardless of voice time. The bonus is still paid at most once.
func (s *Sweeper) ForcePromote(ctx context.Context, candidate Candidate) (Outcome, error) {
	cfg := s.cfg.Current()
	recruitRole, memberRole := cfg.RoleID(config.RoleRecruit), cfg.RoleID(config.RoleMember)
	if recruitRole == "" || memberRole == "" {
		return Outcome{}, ErrRolesUnset
	}
	if !s.roster.RoleExists(candidate.GuildID, recruitRole) || !s.roster.RoleExists(candidate.GuildID, memberRole) {
		return Outcome{}, ErrRoleMissing
	}
	if !hasRole(candidate.RoleIDs, recruitRole) {
		return Outcome{}, ErrNotRecruit
	}
	if hasRole(candidate.RoleIDs, memberRole) {
		return Outcome{}, ErrAlreadyMember
	}
	minutes, err := s.minutes(ctx, candidate.UserID)
	if err != nil {
		return Outcome{}, err
	}
	return s.promote(ctx, cfg, candidate, minutes, recruitRole, memberRole)
}

func (s *Sweeper) promote(ctx context.Context, cfg config.Config, candidate Candidate, minutes int64, recruitRole, memberRole string) (Outcome, error) {
	outcome := Outcome{Candidate: candidate, Minutes: minutes}
	userID, err := utils.ParseSnowflake(candidate.UserID)
	if err != nil {
		return outcome, err
	}
	if err := s.roster.SwapRoles(ctx, candidate.GuildID, candidate.UserID, recruitRole, memberRole); err != nil {
		return outcome, fmt.Errorf("swap roles: %w", err)
	}

	bonus := cfg.Economy.PromotionBonus
	paid, err := s.store.ApplyPromotion(ctx, userID, bonus, s.clock.Now())
	if err != nil {
		return outcome, fmt.Errorf("apply promotion: %w", err)
	}
	outcome.Paid = paid
	if !paid {
		s.logger.Info("promotion already paid, roles synced", zap.String("guild_id", candidate.GuildID), zap.String("user_id", candidate.UserID))
		return outcome, nil
	}
	outcome.Bonus = bonus

	s.audit.Log(ctx, audit.LevelInfo, candidate.GuildID, candidate.UserID, audit.EventPromotion,
		fmt.Sprintf("promoted after %d minutes, bonus %d", minutes, bonus))
	if err := s.roster.NotifyPromotion(ctx, candidate, minutes, bonus); err != nil {
		s.logger.Warn("promotion notice failed", zap.String("guild_id", candidate.GuildID), zap.String("user_id", candidate.UserID), zap.Error(err))
	}
	return outcome, nil
}

func (s *Sweeper) minutes(ctx context.Context, userID string) (int64, error) {
	id, err := utils.ParseSnowflake(userID)
	if err != nil {
		return 0, err
	}
	activity, err := s.store.GetVoiceActivity(ctx, id)
	if err != nil {
		return 0, err
	}
	return activity.TotalMinutes, nil
}

func hasRole(roles []string, roleID string) bool {
	for _, id := range roles {
		if id == roleID {
			return true
		}
	}
	return false
}
