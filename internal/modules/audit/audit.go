package audit

import (
	"context"
	"time"

	"spiceguild/internal/clock"
	"spiceguild/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

const (
	EventGrant        = "spice_grant"
	EventRevoke       = "spice_revoke"
	EventPromotion    = "promotion"
	EventModmailOpen  = "modmail_open"
	EventModmailClose = "modmail_close"
	EventConfig       = "config_update"
	EventVoiceLock    = "voice_lock"
	EventEvent        = "event_create"
	EventRaid         = "raid_create"
)

// Logger records privileged actions to the audit table and the process log.
type Logger struct {
	store  *storage.Store
	logger *zap.Logger
	clock  clock.Clock
}

func NewLogger(store *storage.Store, logger *zap.Logger) *Logger {
	return &Logger{store: store, logger: logger, clock: clock.Real()}
}

func (l *Logger) WithClock(c clock.Clock) {
	l.clock = c
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	if l == nil {
		return
	}
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: l.clock.Now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit write failed", zap.String("event", event), zap.Error(err))
		}
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

// Prune deletes entries older than maxAge.
func (l *Logger) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	if l == nil || l.store == nil {
		return 0, nil
	}
	removed, err := l.store.CleanupAuditLogs(ctx, l.clock.Now().Add(-maxAge))
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		l.logger.Info("audit log pruned", zap.Int64("removed", removed), zap.Duration("max_age", maxAge))
	}
	return removed, nil
}

// RunRetention prunes once per interval until ctx is cancelled.
func (l *Logger) RunRetention(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := l.Prune(ctx, maxAge); err != nil {
			l.logger.Warn("audit prune failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
