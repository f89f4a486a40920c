package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"spiceguild/internal/config"
	"spiceguild/internal/modules/audit"
	"spiceguild/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	maxChannelName = 100
	maxUserLimit   = 99
)

const tempOwnerAllow = discordgo.PermissionVoiceConnect |
	discordgo.PermissionManageChannels |
	discordgo.PermissionManageRoles |
	discordgo.PermissionVoiceMoveMembers |
	discordgo.PermissionVoiceMuteMembers |
	discordgo.PermissionVoiceDeafenMembers

func tempChannelName(cfg config.Config, name, owner string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.ReplaceAll(cfg.TempVoice.DefaultName, "{user}", owner)
	}
	return utils.Truncate(name, maxChannelName)
}

// createTempChannel creates a voice channel owned by userID and records it.
func (b *Bot) createTempChannel(ctx context.Context, cfg config.Config, guildID, userID, name string) (*discordgo.Channel, error) {
	unlock := b.tempLocks.Lock(userID)
	defer unlock()

	ownerID, err := utils.ParseSnowflake(userID)
	if err != nil {
		return nil, err
	}
	parentID := cfg.Channels.TempVoiceCategory
	if parentID == "" && cfg.Channels.TempVoiceTrigger != "" {
		if trigger, err := b.session.State.Channel(cfg.Channels.TempVoiceTrigger); err == nil && trigger != nil {
			parentID = trigger.ParentID
		}
	}
	channel, err := b.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:      name,
		Type:      discordgo.ChannelTypeGuildVoice,
		ParentID:  parentID,
		UserLimit: cfg.TempVoice.DefaultLimit,
		PermissionOverwrites: []*discordgo.PermissionOverwrite{
			{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Allow: discordgo.PermissionVoiceConnect | discordgo.PermissionViewChannel},
			{ID: userID, Type: discordgo.PermissionOverwriteTypeMember, Allow: tempOwnerAllow},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create temp channel: %w", err)
	}
	channelID, err := utils.ParseSnowflake(channel.ID)
	if err == nil {
		err = b.store.ClaimTempChannel(ctx, channelID, ownerID, b.clock.Now())
	}
	if err != nil {
		_, _ = b.session.ChannelDelete(channel.ID)
		return nil, fmt.Errorf("record temp channel: %w", err)
	}
	return channel, nil
}

func (b *Bot) spawnTempChannel(ctx context.Context, cfg config.Config, guildID, userID string, member *discordgo.Member) {
	if member == nil {
		member = b.memberForUser(guildID, userID)
	}
	name := tempChannelName(cfg, "", displayName(member, nil))
	channel, err := b.createTempChannel(ctx, cfg, guildID, userID, name)
	if err != nil {
		b.logger.Warn("temp channel spawn failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := b.session.GuildMemberMove(guildID, userID, &channel.ID); err != nil {
		b.logger.Warn("move into temp channel failed", zap.String("guild_id", guildID), zap.String("user_id", userID), zap.Error(err))
		b.cleanupTempChannel(ctx, guildID, channel.ID)
	}
}

// cleanupTempChannel deletes channelID if it is a temp channel nobody sits in anymore.
func (b *Bot) cleanupTempChannel(ctx context.Context, guildID, channelID string) {
	id, err := utils.ParseSnowflake(channelID)
	if err != nil {
		return
	}
	_, ok, err := b.store.GetTempChannelOwner(ctx, id)
	if err != nil || !ok {
		return
	}
	if len(b.voiceMembers(guildID, channelID)) > 0 {
		return
	}
	if _, err := b.session.ChannelDelete(channelID); err != nil {
		b.logger.Warn("delete temp channel failed", zap.String("guild_id", guildID), zap.String("channel_id", channelID), zap.Error(err))
		return
	}
	if _, err := b.store.ReleaseTempChannel(ctx, id); err != nil {
		b.logger.Warn("release temp channel failed", zap.String("channel_id", channelID), zap.Error(err))
	}
}

// cleanupTempChannels drops records of channels that vanished or emptied while the bot was offline.
func (b *Bot) cleanupTempChannels(ctx context.Context) {
	channels, err := b.store.ListTempChannels(ctx)
	if err != nil {
		b.logger.Warn("list temp channels failed", zap.Error(err))
		return
	}
	for _, temp := range channels {
		channelID := utils.FormatSnowflake(temp.ChannelID)
		channel, err := b.session.State.Channel(channelID)
		if err != nil || channel == nil {
			_, _ = b.store.ReleaseTempChannel(ctx, temp.ChannelID)
			continue
		}
		b.cleanupTempChannel(ctx, channel.GuildID, channelID)
	}
}

// ownedTempChannel returns the temp channel the caller sits in, if they own it.
func (b *Bot) ownedTempChannel(c *commandContext) (*discordgo.Channel, error) {
	channelID := b.voiceChannelOf(c.guildID, c.authorID())
	if channelID == "" {
		return nil, reject("Not in voice", "Join your temp channel first.")
	}
	id, err := utils.ParseSnowflake(channelID)
	if err != nil {
		return nil, err
	}
	owner, ok, err := b.store.GetTempChannelOwner(c.ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok || utils.FormatSnowflake(owner) != c.authorID() {
		return nil, reject("Not your channel", "You do not own this voice channel.")
	}
	channel, err := b.session.State.Channel(channelID)
	if err != nil || channel == nil {
		return b.session.Channel(channelID)
	}
	return channel, nil
}

func (b *Bot) handleSetTempTrigger(c *commandContext) error {
	channel, err := b.voiceTarget(c)
	if err != nil {
		return err
	}
	if err := b.cfg.Set("channels.temp_voice_trigger", channel.ID); err != nil {
		return err
	}
	b.audit.Log(c.ctx, audit.LevelInfo, c.guildID, c.authorID(), audit.EventConfig, "channels.temp_voice_trigger="+channel.ID)
	desc := fmt.Sprintf("Joining **%s** now creates a temporary voice channel.", channel.Name)
	return c.reply(b.commandEmbed("✅ Temp trigger set", desc, c.cfg.Notifications.EmbedColors.Success, nil))
}

func (b *Bot) handleTempVoice(c *commandContext) error {
	name := tempChannelName(c.cfg, c.args.String("name"), c.authorName())
	channel, err := b.createTempChannel(c.ctx, c.cfg, c.guildID, c.authorID(), name)
	if err != nil {
		return err
	}
	if b.voiceChannelOf(c.guildID, c.authorID()) != "" {
		_ = b.session.GuildMemberMove(c.guildID, c.authorID(), &channel.ID)
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Channel", Value: channelMention(channel.ID), Inline: true},
		{Name: "Limit", Value: limitText(channel.UserLimit), Inline: true},
	}
	desc := "The channel is deleted once it is empty."
	return c.reply(b.commandEmbed("🎤 Temp channel created", desc, c.cfg.Notifications.EmbedColors.Success, fields))
}

func limitText(limit int) string {
	if limit == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d users", limit)
}

func (b *Bot) handleTempName(c *commandContext) error {
	name := strings.TrimSpace(c.args.String("name"))
	if name == "" {
		return &usageError{usage: c.cmd.usage(c.cfg.Prefix), reason: "Name is required."}
	}
	if utf8.RuneCountInString(name) > maxChannelName {
		return reject("Name too long", "Channel names can have at most %d characters.", maxChannelName)
	}
	channel, err := b.ownedTempChannel(c)
	if err != nil {
		return err
	}
	old := channel.Name
	if _, err := b.session.ChannelEdit(channel.ID, &discordgo.ChannelEdit{Name: name}); err != nil {
		return fmt.Errorf("rename channel: %w", err)
	}
	desc := fmt.Sprintf("**%s** is now **%s**.", old, name)
	return c.reply(b.commandEmbed("✅ Channel renamed", desc, c.cfg.Notifications.EmbedColors.Success, nil))
}

func (b *Bot) handleTempLimit(c *commandContext) error {
	limit, ok := c.args.Int("limit")
	if !ok || limit < 0 || limit > maxUserLimit {
		return reject("Invalid limit", "The limit must be between 0 and %d (0 = unlimited).", maxUserLimit)
	}
	channel, err := b.ownedTempChannel(c)
	if err != nil {
		return err
	}
	// ChannelEdit drops a zero user_limit, so the patch is sent directly.
	endpoint := discordgo.EndpointChannel(channel.ID)
	if _, err := b.session.RequestWithBucketID("PATCH", endpoint, map[string]int64{"user_limit": limit}, endpoint); err != nil {
		return fmt.Errorf("set user limit: %w", err)
	}
	desc := fmt.Sprintf("The limit of **%s** is now **%s**.", channel.Name, limitText(int(limit)))
	return c.reply(b.commandEmbed("✅ Limit changed", desc, c.cfg.Notifications.EmbedColors.Success, nil))
}

func (b *Bot) handleTempKick(c *commandContext) error {
	userID, _, err := c.userArg("user")
	if err != nil {
		return err
	}
	channel, err := b.ownedTempChannel(c)
	if err != nil {
		return err
	}
	if userID == c.authorID() || b.voiceChannelOf(c.guildID, userID) != channel.ID {
		return reject("Not in your channel", "%s is not in your voice channel.", mention(userID))
	}
	if err := b.session.GuildMemberMove(c.guildID, userID, nil); err != nil {
		return fmt.Errorf("kick from channel: %w", err)
	}
	reason := c.args.String("reason")
	if reason == "" {
		reason = "No reason given"
	}
	fields := []*discordgo.MessageEmbedField{{Name: "Reason", Value: utils.Truncate(reason, 1024), Inline: false}}
	return c.reply(b.commandEmbed("👢 Member kicked", mention(userID)+" was removed from the channel.", c.cfg.Notifications.EmbedColors.Warning, fields))
}
