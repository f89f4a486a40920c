package bot

import (
	"context"
	"fmt"
	"strings"

	"spiceguild/internal/config"
	"spiceguild/internal/modules/audit"
	"spiceguild/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const modmailColor = 0x3498DB

const modmailStaffAllow = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionManageMessages |
	discordgo.PermissionReadMessageHistory

func (b *Bot) handleModmail(c *commandContext) error {
	guildID := b.primaryGuild(c.cfg)
	if guildID == "" {
		return reject("Unavailable", "The bot is not connected to a server.")
	}
	userID, err := utils.ParseSnowflake(c.authorID())
	if err != nil {
		return err
	}

	unlock := b.mailLocks.Lock(c.authorID())
	defer unlock()

	if channelID, ok, err := b.store.GetOpenModmailChannel(c.ctx, userID); err != nil {
		return err
	} else if ok {
		existing := utils.FormatSnowflake(channelID)
		if _, err := b.session.Channel(existing); err == nil {
			return reject("Ticket already open", "You already have an open ticket. Just write here and it is forwarded.")
		}
		// The channel is gone, so the stale thread is closed before opening a new one.
		if _, _, err := b.store.CloseModmail(c.ctx, channelID, b.clock.Now()); err != nil {
			return err
		}
	}

	overwrites := []*discordgo.PermissionOverwrite{
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
	}
	for _, name := range []string{config.RoleModerator, config.RoleAdmin} {
		if roleID := c.cfg.RoleID(name); roleID != "" {
			overwrites = append(overwrites, &discordgo.PermissionOverwrite{ID: roleID, Type: discordgo.PermissionOverwriteTypeRole, Allow: modmailStaffAllow})
		}
	}
	channel, err := b.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
		Name:                 "modmail-" + utils.ChannelSlug(c.author.Username),
		Type:                 discordgo.ChannelTypeGuildText,
		ParentID:             c.cfg.Channels.ModmailCategory,
		Topic:                "ModMail ticket of " + c.author.Username + " (" + c.authorID() + ")",
		PermissionOverwrites: overwrites,
	})
	if err != nil {
		return fmt.Errorf("create modmail channel: %w", err)
	}
	channelID, err := utils.ParseSnowflake(channel.ID)
	if err != nil {
		return err
	}
	opened, err := b.store.OpenModmail(c.ctx, userID, channelID, b.clock.Now())
	if err != nil || !opened {
		_, _ = b.session.ChannelDelete(channel.ID)
		if err != nil {
			return err
		}
		return reject("Ticket already open", "You already have an open ticket.")
	}

	message := c.args.String("message")
	fields := []*discordgo.MessageEmbedField{{Name: "💬 First message", Value: utils.Truncate(message, 1024), Inline: false}}
	if threads, err := b.store.ListModmailThreads(c.ctx, userID); err == nil && len(threads) > 1 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "📁 Previous tickets", Value: fmt.Sprintf("%d", len(threads)-1), Inline: true})
	}
	intro := b.commandEmbed("📬 New ModMail ticket", fmt.Sprintf("**User:** %s (%s)\n**User ID:** %s", mention(c.authorID()), c.author.Username, c.authorID()), modmailColor, fields)
	intro.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Answer with %sreply, close with %sclose", c.cfg.Prefix, c.cfg.Prefix)}
	if _, err := b.session.ChannelMessageSendEmbed(channel.ID, intro); err != nil {
		b.logger.Warn("modmail intro failed", zap.String("channel_id", channel.ID), zap.Error(err))
	}
	if roleID := c.cfg.RoleID(config.RoleModerator); roleID != "" {
		_, _ = b.session.ChannelMessageSend(channel.ID, fmt.Sprintf("<@&%s> new ModMail ticket", roleID))
	}

	b.audit.Log(c.ctx, audit.LevelInfo, guildID, c.authorID(), audit.EventModmailOpen, "channel "+channel.ID)
	desc := "Your ticket was created. The moderators will answer here soon. Everything you write to me is forwarded."
	return c.reply(b.commandEmbed("✅ Ticket created", desc, c.cfg.Notifications.EmbedColors.Success, nil))
}

// forwardModmail relays a plain DM into the sender's open ticket.
func (b *Bot) forwardModmail(ctx context.Context, cfg config.Config, msg *discordgo.Message) {
	userID, err := utils.ParseSnowflake(msg.Author.ID)
	if err != nil {
		return
	}
	channelID, ok, err := b.store.GetOpenModmailChannel(ctx, userID)
	if err != nil {
		b.logger.Warn("modmail lookup failed", zap.String("user_id", msg.Author.ID), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	content := msg.Content
	if content == "" {
		content = "*(no text)*"
	}
	embed := b.commandEmbed("💬 New message", utils.Truncate(content, 4000), modmailColor, nil)
	embed.Author = &discordgo.MessageEmbedAuthor{Name: msg.Author.Username, IconURL: msg.Author.AvatarURL("")}
	if len(msg.Attachments) > 0 {
		urls := make([]string, 0, len(msg.Attachments))
		for _, attachment := range msg.Attachments {
			urls = append(urls, attachment.URL)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "📎 Attachments", Value: utils.Truncate(strings.Join(urls, "\n"), 1024), Inline: false})
	}
	if _, err := b.session.ChannelMessageSendEmbed(utils.FormatSnowflake(channelID), embed); err != nil {
		b.logger.Warn("modmail forward failed", zap.String("user_id", msg.Author.ID), zap.Int64("channel_id", channelID), zap.Error(err))
		notice := b.commandEmbed("❌ Not delivered", "Your message could not be forwarded to the moderators.", cfg.Notifications.EmbedColors.Error, nil)
		_, _ = b.session.ChannelMessageSendEmbed(msg.ChannelID, notice)
		return
	}
	_ = b.session.MessageReactionAdd(msg.ChannelID, msg.ID, "✅")
}

func (b *Bot) ticketUser(c *commandContext) (int64, int64, error) {
	channelID, err := utils.ParseSnowflake(c.channelID)
	if err != nil {
		return 0, 0, err
	}
	userID, ok, err := b.store.GetOpenModmailUser(c.ctx, channelID)
	if err != nil {
		return 0, 0, err
	}
	if !ok {
		return 0, 0, reject("No ticket", "This channel is not an open ModMail ticket.")
	}
	return channelID, userID, nil
}

func (b *Bot) handleReply(c *commandContext) error {
	_, userID, err := b.ticketUser(c)
	if err != nil {
		return err
	}
	message := c.args.String("message")
	embed := b.commandEmbed("📨 Reply from the moderators", utils.Truncate(message, 4000), modmailColor, nil)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Answer by writing to me here"}
	if err := b.warnUser(utils.FormatSnowflake(userID), embed); err != nil {
		return fmt.Errorf("deliver reply: %w", err)
	}
	sent := b.commandEmbed("✅ Reply sent", utils.Truncate(message, 4000), c.cfg.Notifications.EmbedColors.Success, nil)
	sent.Author = &discordgo.MessageEmbedAuthor{Name: c.authorName()}
	return c.reply(sent)
}

func (b *Bot) handleClose(c *commandContext) error {
	channelID, _, err := b.ticketUser(c)
	if err != nil {
		return err
	}
	userID, closed, err := b.store.CloseModmail(c.ctx, channelID, b.clock.Now())
	if err != nil {
		return err
	}
	if !closed {
		return reject("No ticket", "This ticket is already closed.")
	}

	reason := c.args.String("reason")
	if reason == "" {
		reason = "No reason given"
	}
	notice := b.commandEmbed("🔒 Ticket closed", "Your ModMail ticket was closed by the moderators.", modmailColor,
		[]*discordgo.MessageEmbedField{{Name: "Reason", Value: utils.Truncate(reason, 1024), Inline: false}})
	if err := b.warnUser(utils.FormatSnowflake(userID), notice); err != nil {
		b.logger.Debug("modmail close notice failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	b.audit.Log(c.ctx, audit.LevelInfo, c.guildID, c.authorID(), audit.EventModmailClose, fmt.Sprintf("ticket of %d closed: %s", userID, reason))

	delay := c.cfg.ModmailCloseDelay()
	channel := c.channelID
	b.clock.AfterFunc(delay, func() {
		if _, err := b.session.ChannelDelete(channel); err != nil {
			b.logger.Warn("delete modmail channel failed", zap.String("channel_id", channel), zap.Error(err))
		}
	})
	desc := fmt.Sprintf("This channel is deleted in %d seconds.", int(delay.Seconds()))
	return c.reply(b.commandEmbed("🔒 Ticket closed", desc, c.cfg.Notifications.EmbedColors.Warning, nil))
}
