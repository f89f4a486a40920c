package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spiceguild/internal/config"
	"spiceguild/internal/modules/audit"
	"spiceguild/internal/modules/registry"
	"spiceguild/internal/storage"
	"spiceguild/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const eventColor = 0xFF8C00

func (b *Bot) eventEmbed(event storage.Event, groups []registry.Group) *discordgo.MessageEmbed {
	counts := make([]string, 0, len(groups))
	for _, group := range groups {
		role := registry.EventRole(group.Role)
		counts = append(counts, fmt.Sprintf("%s %s: %d", role.Emoji(), group.Role, len(group.Entries)))
	}
	signup := make([]string, 0, 2)
	for _, role := range registry.ReactionRoles() {
		signup = append(signup, role.Emoji()+" "+string(role))
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: strings.Join(signup, " & "), Value: "Sign up with a reaction", Inline: false},
		{Name: "Event ID", Value: "`" + event.ID + "`", Inline: true},
		{Name: "👤 Created by", Value: mention(utils.FormatSnowflake(event.CreatorID)), Inline: true},
		{Name: "📊 Sign-ups", Value: strings.Join(counts, "\n"), Inline: false},
	}
	embed := b.commandEmbed("⚔️ "+event.Title, event.Description, eventColor, fields)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Event ID: " + event.ID + " | use event-info <id> for details"}
	return embed
}

func (b *Bot) handleEvent(c *commandContext) error {
	creator, err := utils.ParseSnowflake(c.authorID())
	if err != nil {
		return err
	}
	channelID, err := utils.ParseSnowflake(c.channelID)
	if err != nil {
		return err
	}
	now := b.registry.Now()
	event := storage.Event{
		ID:          registry.NewEventID(now),
		CreatorID:   creator,
		Title:       utils.Truncate(c.args.String("title"), 200),
		Description: utils.Truncate(c.args.String("description"), 4000),
		ChannelID:   channelID,
		CreatedAt:   now,
	}

	msg, err := b.session.ChannelMessageSendEmbed(c.channelID, b.eventEmbed(event, registry.GroupRegistrations(eventOrder(), nil)))
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	if event.MessageID, err = utils.ParseSnowflake(msg.ID); err != nil {
		return err
	}
	for _, role := range registry.ReactionRoles() {
		if err := b.session.MessageReactionAdd(c.channelID, msg.ID, role.Emoji()); err != nil {
			b.logger.Warn("add event reaction failed", zap.String("channel_id", c.channelID), zap.Error(err))
		}
	}
	if err := b.registry.CreateEvent(c.ctx, event); err != nil {
		_ = b.session.ChannelMessageDelete(c.channelID, msg.ID)
		return fmt.Errorf("store event: %w", err)
	}
	b.audit.Log(c.ctx, audit.LevelInfo, c.guildID, c.authorID(), audit.EventEvent, event.ID+" "+event.Title)
	return c.replyPrivate(b.commandEmbed("✅ Event created", "ID: `"+event.ID+"`", c.cfg.Notifications.EmbedColors.Success, nil))
}

func eventOrder() []string {
	order := make([]string, 0, len(registry.EventRoles))
	for _, role := range registry.EventRoles {
		order = append(order, string(role))
	}
	return order
}

func (b *Bot) handleEventInfo(c *commandContext) error {
	summary, err := b.registry.EventSummary(c.ctx, c.args.String("event_id"))
	if err != nil {
		return err
	}
	if summary.Total == 0 {
		return reject("No sign-ups", "Nobody has signed up for `%s` yet.", summary.Event.ID)
	}
	embed := b.commandEmbed("⚔️ Event sign-ups: "+summary.Event.Title, fmt.Sprintf("`%s` · %d total", summary.Event.ID, summary.Total), eventColor, eventInfoFields(summary.Groups))
	return c.reply(embed)
}

const emptyGroup = "Nobody yet"

// eventInfoFields renders one field per role group, empty groups included.
func eventInfoFields(groups []registry.Group) []*discordgo.MessageEmbedField {
	fields := make([]*discordgo.MessageEmbedField, 0, len(groups))
	for _, group := range groups {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s %s (%d)", registry.EventRole(group.Role).Emoji(), group.Role, len(group.Entries)),
			Value:  registrationLines(group.Entries, false),
			Inline: true,
		})
	}
	return fields
}

func raidInfoFields(groups []registry.Group) []*discordgo.MessageEmbedField {
	fields := make([]*discordgo.MessageEmbedField, 0, len(groups))
	for _, group := range groups {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s (%d)", group.Role, len(group.Entries)),
			Value:  registrationLines(group.Entries, true),
			Inline: false,
		})
	}
	return fields
}

func registrationLines(entries []storage.Registration, notes bool) string {
	if len(entries) == 0 {
		return emptyGroup
	}
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		line := "• " + entry.DisplayName
		if notes && entry.Notes != "" {
			line += " (" + entry.Notes + ")"
		}
		lines = append(lines, line)
	}
	return utils.Truncate(strings.Join(lines, "\n"), 1024)
}

func (b *Bot) handleAssignCrawler(c *commandContext) error {
	return b.assignEventRole(c, registry.Crawler)
}

func (b *Bot) handleAssignCarrier(c *commandContext) error {
	return b.assignEventRole(c, registry.Carrier)
}

func (b *Bot) handleEventEdit(c *commandContext) error {
	role, ok := registry.ParseEventRole(c.args.String("role"))
	if !ok {
		return reject("Unknown role", "Choose Crawler or Carrier.")
	}
	return b.assignEventRole(c, role)
}

func (b *Bot) assignEventRole(c *commandContext, role registry.EventRole) error {
	userID, id, err := c.userArg("user")
	if err != nil {
		return err
	}
	eventID := c.args.String("event_id")
	name := displayName(b.memberForUser(c.guildID, userID), nil)
	if name == "" {
		name = userID
	}
	existing, err := b.registry.Assign(c.ctx, eventID, id, name, role)
	if errors.Is(err, registry.ErrAlreadyRegistered) && existing != nil {
		return reject("Already registered", "%s is already signed up as **%s**.", mention(userID), existing.Role)
	}
	if err != nil {
		return err
	}
	b.refreshEventMessage(c.ctx, eventID)
	desc := fmt.Sprintf("%s is now %s **%s** for `%s`.", mention(userID), role.Emoji(), role, eventID)
	return c.reply(b.commandEmbed("✅ Role assigned", desc, c.cfg.Notifications.EmbedColors.Success, nil))
}

func (b *Bot) refreshEventMessage(ctx context.Context, eventID string) {
	summary, err := b.registry.EventSummary(ctx, eventID)
	if err != nil || summary.Event.MessageID == 0 {
		return
	}
	channelID := utils.FormatSnowflake(summary.Event.ChannelID)
	messageID := utils.FormatSnowflake(summary.Event.MessageID)
	if _, err := b.session.ChannelMessageEditEmbed(channelID, messageID, b.eventEmbed(summary.Event, summary.Groups)); err != nil {
		b.logger.Debug("refresh event message failed", zap.String("event_id", eventID), zap.Error(err))
	}
}

func (b *Bot) onMessageReactionAdd(session *discordgo.Session, event *discordgo.MessageReactionAdd) {
	if event.GuildID == "" || session.State.User == nil || event.UserID == session.State.User.ID {
		return
	}
	if event.Member != nil && event.Member.User != nil && event.Member.User.Bot {
		return
	}
	messageID, err := utils.ParseSnowflake(event.MessageID)
	if err != nil {
		return
	}
	userID, err := utils.ParseSnowflake(event.UserID)
	if err != nil {
		return
	}

	ctx := context.Background()
	cfg := b.cfg.Current()
	member := event.Member
	if member == nil {
		member = b.memberForUser(event.GuildID, event.UserID)
	}
	name := displayName(member, nil)
	if name == "" {
		name = event.UserID
	}

	result, err := b.registry.RegisterByReaction(ctx, messageID, userID, name, event.Emoji.Name)
	switch {
	case err == nil:
		b.refreshEventMessage(ctx, result.Event.ID)
		return
	case errors.Is(err, registry.ErrUnknownEvent), errors.Is(err, registry.ErrUnknownReaction):
		return
	case errors.Is(err, registry.ErrPrivilegedRole):
		b.removeReaction(event)
		b.notifyReactionRejected(cfg, event.UserID, fmt.Sprintf("**%s** is assigned by moderators only.", result.Role))
	case errors.Is(err, registry.ErrAlreadyRegistered):
		b.removeReaction(event)
		role := string(result.Role)
		if result.Existing != nil {
			role = result.Existing.Role
		}
		b.notifyReactionRejected(cfg, event.UserID, fmt.Sprintf("You are already signed up for **%s** as **%s**.", result.Event.Title, role))
	default:
		b.logger.Warn("reaction registration failed", zap.String("guild_id", event.GuildID), zap.String("user_id", event.UserID), zap.Error(err))
	}
}

func (b *Bot) removeReaction(event *discordgo.MessageReactionAdd) {
	if err := b.session.MessageReactionRemove(event.ChannelID, event.MessageID, event.Emoji.APIName(), event.UserID); err != nil {
		b.logger.Debug("remove reaction failed", zap.String("channel_id", event.ChannelID), zap.Error(err))
	}
}

func (b *Bot) notifyReactionRejected(cfg config.Config, userID, message string) {
	embed := b.commandEmbed("⚠️ Sign-up not possible", message, cfg.Notifications.EmbedColors.Warning, nil)
	if err := b.warnUser(userID, embed); err != nil {
		b.logger.Debug("sign-up notice failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func raidRoleList() string {
	lines := make([]string, 0, len(registry.RaidRoles))
	for i, role := range registry.RaidRoles {
		lines = append(lines, fmt.Sprintf("`%d` %s", i+1, role))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) handleCreateRaid(c *commandContext) error {
	now := b.registry.Now()
	raidID := registry.NewRaidID(now)
	channelID := c.cfg.Channels.RaidAnnouncements
	if channelID == "" {
		channelID = c.channelID
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Raid ID", Value: "`" + raidID + "`", Inline: true},
		{Name: "👤 Raid leader", Value: mention(c.authorID()), Inline: true},
		{Name: "Roles", Value: raidRoleList(), Inline: false},
		{Name: "Sign up", Value: fmt.Sprintf("`%sregister-raid %s <number> [notes]`", c.cfg.Prefix, raidID), Inline: false},
	}
	embed := b.commandEmbed("🏰 Raid", c.args.String("description"), 0x8E44AD, fields)
	if _, err := b.session.ChannelMessageSendEmbed(channelID, embed); err != nil {
		return fmt.Errorf("post raid: %w", err)
	}
	b.audit.Log(c.ctx, audit.LevelInfo, c.guildID, c.authorID(), audit.EventRaid, raidID)
	desc := fmt.Sprintf("ID: `%s`, posted in %s.", raidID, channelMention(channelID))
	return c.replyPrivate(b.commandEmbed("✅ Raid created", desc, c.cfg.Notifications.EmbedColors.Success, nil))
}

func (b *Bot) handleRegisterRaid(c *commandContext) error {
	number, ok := c.args.Int("role")
	if !ok {
		return &usageError{usage: c.cmd.usage(c.cfg.Prefix), reason: "Role must be a number."}
	}
	id, err := utils.ParseSnowflake(c.authorID())
	if err != nil {
		return err
	}
	raidID := c.args.String("raid_id")
	role, err := b.registry.SignupRaid(c.ctx, raidID, id, c.authorName(), int(number), c.args.String("notes"))
	switch {
	case errors.Is(err, registry.ErrInvalidRoleIndex):
		return reject("Invalid role", "Choose one of these roles:\n%s", raidRoleList())
	case errors.Is(err, registry.ErrAlreadyRegistered):
		return reject("Already registered", "You are already signed up for `%s`.", raidID)
	case err != nil:
		return err
	}
	desc := fmt.Sprintf("You are signed up for `%s` as **%s**.", raidID, role)
	return c.reply(b.commandEmbed("✅ Raid sign-up", desc, c.cfg.Notifications.EmbedColors.Success, nil))
}

func (b *Bot) handleRaidInfo(c *commandContext) error {
	raidID := c.args.String("raid_id")
	summary, err := b.registry.RaidSummary(c.ctx, raidID)
	if err != nil {
		return err
	}
	if summary.Total == 0 {
		return reject("No sign-ups", "No sign-ups found for raid `%s`.", raidID)
	}
	return c.reply(b.commandEmbed("🏰 Raid sign-ups", fmt.Sprintf("`%s` · %d total", raidID, summary.Total), 0x8E44AD, raidInfoFields(summary.Groups)))
}
