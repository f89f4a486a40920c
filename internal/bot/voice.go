package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spiceguild/internal/config"
	"spiceguild/internal/modules/promotion"
	"spiceguild/internal/permissions"
	"spiceguild/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const moveConcurrency = 5

func (b *Bot) onVoiceStateUpdate(session *discordgo.Session, event *discordgo.VoiceStateUpdate) {
	if event.VoiceState == nil || event.GuildID == "" || event.UserID == "" {
		return
	}
	if event.Member != nil && event.Member.User != nil && event.Member.User.Bot {
		return
	}
	before := ""
	if event.BeforeUpdate != nil {
		before = event.BeforeUpdate.ChannelID
	}
	after := event.ChannelID
	if before == after {
		return
	}

	ctx := context.Background()
	cfg := b.cfg.Current()

	if after != "" && b.voicelock.IsRageLocked(event.GuildID, after) {
		b.enforceRageLock(cfg, event.GuildID, event.UserID, after, event.Member)
	}

	userID, err := utils.ParseSnowflake(event.UserID)
	if err == nil {
		if _, err := b.voice.Handle(ctx, userID, before, after); err != nil {
			b.logger.Warn("voice accrual failed", zap.String("guild_id", event.GuildID), zap.String("user_id", event.UserID), zap.Error(err))
		}
	}

	if after != "" && after == cfg.Channels.TempVoiceTrigger {
		b.spawnTempChannel(ctx, cfg, event.GuildID, event.UserID, event.Member)
	}
	if before != "" {
		b.cleanupTempChannel(ctx, event.GuildID, before)
	}
}

func (b *Bot) enforceRageLock(cfg config.Config, guildID, userID, channelID string, member *discordgo.Member) {
	subject := b.subjectFor(guildID, userID, member)
	if b.perms.Check(subject, permissions.RageLockBypass).Allowed {
		return
	}
	if err := b.session.GuildMemberMove(guildID, userID, nil); err != nil {
		b.logger.Warn("rage lock disconnect failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return
	}
	name := channelID
	if channel, err := b.session.State.Channel(channelID); err == nil && channel != nil {
		name = channel.Name
	}
	embed := b.commandEmbed("😡 Rage Lock!", fmt.Sprintf("**%s** is rage-locked right now. You were disconnected.", name), cfg.Notifications.EmbedColors.Error, nil)
	if err := b.warnUser(userID, embed); err != nil {
		b.logger.Debug("rage lock notice failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// voiceTarget resolves the channel option or the caller's current voice channel.
func (b *Bot) voiceTarget(c *commandContext) (*discordgo.Channel, error) {
	channelID := c.args.ID("channel")
	if channelID == "" {
		channelID = b.voiceChannelOf(c.guildID, c.authorID())
	}
	if channelID == "" {
		return nil, reject("No channel", "Name a voice channel or join one first.")
	}
	channel, err := b.session.State.Channel(channelID)
	if err != nil || channel == nil {
		channel, err = b.session.Channel(channelID)
		if err != nil {
			return nil, fmt.Errorf("load channel: %w", err)
		}
	}
	if channel.GuildID != c.guildID || (channel.Type != discordgo.ChannelTypeGuildVoice && channel.Type != discordgo.ChannelTypeGuildStageVoice) {
		return nil, reject("Not a voice channel", "%s is not a voice channel of this server.", channelMention(channelID))
	}
	return channel, nil
}

// setEveryoneConnect denies or restores Connect for @everyone and keeps the other overwrite bits.
func (b *Bot) setEveryoneConnect(channel *discordgo.Channel, deny bool) error {
	everyone := channel.GuildID
	var allowBits, denyBits int64
	for _, ow := range channel.PermissionOverwrites {
		if ow.ID == everyone && ow.Type == discordgo.PermissionOverwriteTypeRole {
			allowBits, denyBits = ow.Allow, ow.Deny
			break
		}
	}
	allowBits, denyBits = connectOverwrite(allowBits, denyBits, deny)
	if allowBits == 0 && denyBits == 0 {
		return b.session.ChannelPermissionDelete(channel.ID, everyone)
	}
	return b.session.ChannelPermissionSet(channel.ID, everyone, discordgo.PermissionOverwriteTypeRole, allowBits, denyBits)
}

func connectOverwrite(allowBits, denyBits int64, deny bool) (int64, int64) {
	if deny {
		return allowBits &^ discordgo.PermissionVoiceConnect, denyBits | discordgo.PermissionVoiceConnect
	}
	return allowBits, denyBits &^ discordgo.PermissionVoiceConnect
}

func (b *Bot) handleLockVoice(c *commandContext) error {
	channel, err := b.voiceTarget(c)
	if err != nil {
		return err
	}
	if err := b.setEveryoneConnect(channel, true); err != nil {
		return fmt.Errorf("lock channel: %w", err)
	}
	b.voicelock.SetLocked(c.ctx, c.guildID, channel.ID, c.authorID(), true)
	return c.reply(b.commandEmbed("🔒 Channel locked", fmt.Sprintf("**%s** is locked. Nobody new can join.", channel.Name), c.cfg.Notifications.EmbedColors.Success, nil))
}

func (b *Bot) handleUnlockVoice(c *commandContext) error {
	channel, err := b.voiceTarget(c)
	if err != nil {
		return err
	}
	if err := b.setEveryoneConnect(channel, false); err != nil {
		return fmt.Errorf("unlock channel: %w", err)
	}
	b.voicelock.SetLocked(c.ctx, c.guildID, channel.ID, c.authorID(), false)
	return c.reply(b.commandEmbed("🔓 Channel unlocked", fmt.Sprintf("**%s** is open again.", channel.Name), c.cfg.Notifications.EmbedColors.Success, nil))
}

func (b *Bot) handleRageLock(c *commandContext) error {
	channel, err := b.voiceTarget(c)
	if err != nil {
		return err
	}
	minutes, _ := c.args.Int("minutes")
	if minutes < 0 {
		return reject("Invalid duration", "Minutes must not be negative.")
	}
	if !b.voicelock.RageLock(c.ctx, c.guildID, channel.ID, c.authorID(), time.Duration(minutes)*time.Minute) {
		return reject("Already rage-locked", "**%s** already has a rage lock.", channel.Name)
	}
	desc := fmt.Sprintf("**%s** is rage-locked. Everyone who joins is disconnected.", channel.Name)
	if minutes > 0 {
		desc += fmt.Sprintf(" The lock lifts in %s.", utils.FormatMinutes(minutes))
	}
	return c.reply(b.commandEmbed("😡 Rage Lock enabled", desc, c.cfg.Notifications.EmbedColors.Warning, nil))
}

func (b *Bot) handleUnrageLock(c *commandContext) error {
	channel, err := b.voiceTarget(c)
	if err != nil {
		return err
	}
	if !b.voicelock.Unrage(c.ctx, c.guildID, channel.ID, c.authorID()) {
		return reject("No rage lock", "**%s** is not rage-locked.", channel.Name)
	}
	return c.reply(b.commandEmbed("😌 Rage Lock lifted", fmt.Sprintf("**%s** can be joined again.", channel.Name), c.cfg.Notifications.EmbedColors.Success, nil))
}

type moveReport struct {
	Moved  int
	Failed []string
}

// moveMembers moves every user concurrently with a bounded fan-out.
func moveMembers(ctx context.Context, users []string, move func(userID string) error) moveReport {
	var (
		mu     sync.Mutex
		report moveReport
	)
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(moveConcurrency)
	for _, userID := range users {
		userID := userID
		g.Go(func() error {
			err := move(userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, userID)
				return nil
			}
			report.Moved++
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (b *Bot) handleMoveAll(c *commandContext) error {
	source := b.voiceChannelOf(c.guildID, c.authorID())
	if source == "" {
		return reject("Not in voice", "Join the voice channel whose members you want to move.")
	}
	target, err := b.voiceTarget(c)
	if err != nil {
		return err
	}
	if target.ID == source {
		return reject("Same channel", "You are already in %s.", channelMention(target.ID))
	}

	var users []string
	for _, userID := range b.voiceMembers(c.guildID, source) {
		if !b.isBot(c.guildID, userID) {
			users = append(users, userID)
		}
	}
	if len(users) == 0 {
		return reject("Nobody to move", "There is nobody in your channel.")
	}

	targetID := target.ID
	report := moveMembers(c.ctx, users, func(userID string) error {
		err := b.session.GuildMemberMove(c.guildID, userID, &targetID)
		if err != nil {
			b.logger.Warn("move member failed", zap.String("guild_id", c.guildID), zap.String("user_id", userID), zap.Error(err))
		}
		return err
	})

	desc := fmt.Sprintf("Moved **%d** members to %s.", report.Moved, channelMention(targetID))
	color := c.cfg.Notifications.EmbedColors.Success
	var fields []*discordgo.MessageEmbedField
	if len(report.Failed) > 0 {
		color = c.cfg.Notifications.EmbedColors.Warning
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Failed", Value: fmt.Sprintf("%d members could not be moved", len(report.Failed)), Inline: false})
	}
	return c.reply(b.commandEmbed("🔀 Members moved", desc, color, fields))
}

func memberStatus(cfg config.Config, roles []string) string {
	has := func(name string) bool {
		id := cfg.RoleID(name)
		if id == "" {
			return false
		}
		for _, roleID := range roles {
			if roleID == id {
				return true
			}
		}
		return false
	}
	switch {
	case has(config.RoleMember):
		return "✅ Member"
	case has(config.RoleRecruit):
		return "🔰 Recruit"
	default:
		return "None"
	}
}

func (b *Bot) handleVoiceStats(c *commandContext) error {
	userID, id, err := c.userArg("user")
	if err != nil {
		return err
	}
	stats, err := b.voice.Stats(c.ctx, id)
	if err != nil {
		return err
	}
	threshold := c.cfg.PromotionThresholdMinutes()
	total := stats.TotalMinutes + stats.SessionMinutes
	fields := []*discordgo.MessageEmbedField{
		{Name: "Voice time", Value: utils.FormatMinutes(stats.TotalMinutes), Inline: true},
	}
	if stats.InVoice {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Current session", Value: utils.FormatMinutes(stats.SessionMinutes), Inline: true})
	}
	if threshold > 0 {
		progress := fmt.Sprintf("%s %s / %s", utils.ProgressBar(total, threshold, 10), utils.FormatMinutes(min(total, threshold)), utils.FormatMinutes(threshold))
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Promotion progress", Value: progress, Inline: false})
	}
	if c.guildID != "" {
		var roles []string
		if member := b.memberForUser(c.guildID, userID); member != nil {
			roles = member.Roles
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Status", Value: memberStatus(c.cfg, roles), Inline: true})
	}
	if promoted, err := b.store.IsPromoted(c.ctx, id); err == nil && promoted {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Promotion bonus", Value: "paid", Inline: true})
	}
	return c.reply(b.commandEmbed("🎙️ Voice stats", mention(userID), c.cfg.Notifications.EmbedColors.Info, fields))
}

func (b *Bot) handleForcePromote(c *commandContext) error {
	userID, _, err := c.userArg("user")
	if err != nil {
		return err
	}
	member := b.memberForUser(c.guildID, userID)
	if member == nil {
		return reject("Unknown member", "%s is not on this server.", mention(userID))
	}
	outcome, err := b.promotion.ForcePromote(c.ctx, promotion.Candidate{
		GuildID:     c.guildID,
		UserID:      userID,
		DisplayName: displayName(member, nil),
		RoleIDs:     member.Roles,
	})
	if errors.Is(err, promotion.ErrNotRecruit) {
		return reject("Not a recruit", "%s does not have the recruit role.", mention(userID))
	}
	if errors.Is(err, promotion.ErrAlreadyMember) {
		return reject("Already a member", "%s is already a member.", mention(userID))
	}
	if err != nil {
		return err
	}
	desc := fmt.Sprintf("%s is now a member.", mention(userID))
	if outcome.Paid {
		desc += fmt.Sprintf(" Bonus paid: **%s**.", spice(outcome.Bonus))
	} else {
		desc += " The promotion bonus was already paid earlier."
	}
	return c.reply(b.commandEmbed("🎉 Promoted", desc, c.cfg.Notifications.EmbedColors.Success, nil))
}
