package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spiceguild/internal/clock"
	"spiceguild/internal/config"
	"spiceguild/internal/modules/audit"
	"spiceguild/internal/modules/economy"
	"spiceguild/internal/modules/promotion"
	"spiceguild/internal/modules/registry"
	"spiceguild/internal/modules/voice"
	"spiceguild/internal/modules/voicelock"
	"spiceguild/internal/permissions"
	"spiceguild/internal/storage"
	"spiceguild/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg       *config.Manager
	logger    *zap.Logger
	store     *storage.Store
	audit     *audit.Logger
	economy   *economy.Service
	voice     *voice.Engine
	registry  *registry.Registry
	voicelock *voicelock.Engine
	perms     *permissions.Checker
	promotion *promotion.Sweeper
	clock     clock.Clock
	session   *discordgo.Session

	commands  []*command
	byName    map[string]*command
	tempLocks *utils.KeyedMutex
	mailLocks *utils.KeyedMutex
}

func New(cfg *config.Manager, logger *zap.Logger, store *storage.Store, auditLogger *audit.Logger) (*Bot, error) {
	current := cfg.Current()
	session, err := discordgo.New("Bot " + current.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	session.State.TrackVoice = true

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		audit:     auditLogger,
		economy:   economy.New(store, cfg, auditLogger),
		voice:     voice.New(store, cfg, logger),
		registry:  registry.New(store),
		voicelock: voicelock.New(auditLogger),
		perms:     permissions.NewChecker(cfg),
		clock:     clock.Real(),
		session:   session,
		tempLocks: utils.NewKeyedMutex(),
		mailLocks: utils.NewKeyedMutex(),
	}
	b.promotion = promotion.New(store, cfg, b, auditLogger, logger)
	b.loadCommands()

	b.voicelock.OnExpire(func(guildID, channelID string) {
		b.logger.Info("rage lock expired", zap.String("guild_id", guildID), zap.String("channel_id", channelID))
	})
	cfg.OnChange(func(next config.Config) {
		b.promotion.SetInterval(next.PromotionInterval())
	})

	return b, nil
}

// CommandNames lists every command in the table, without a session.
func CommandNames() []string {
	b := &Bot{}
	b.loadCommands()
	names := make([]string, 0, len(b.commands))
	for _, cmd := range b.commands {
		names = append(names, cmd.Name)
	}
	return names
}

func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onMessageReactionAdd)
	b.session.AddHandler(b.onChannelDelete)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.promotion.Start(ctx)
	return nil
}

func (b *Bot) Close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		b.promotion.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		b.logger.Warn("promotion sweep did not stop in time")
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username), zap.Int("guilds", len(event.Guilds)))
	go b.cleanupTempChannels(context.Background())
}

func (b *Bot) onChannelDelete(session *discordgo.Session, event *discordgo.ChannelDelete) {
	if event.Channel == nil || event.GuildID == "" {
		return
	}
	b.voicelock.Forget(event.GuildID, event.ID)
	if id, err := utils.ParseSnowflake(event.ID); err == nil {
		_, _ = b.store.ReleaseTempChannel(context.Background(), id)
	}
}

// primaryGuild is the configured guild, or the first one the bot is in.
func (b *Bot) primaryGuild(cfg config.Config) string {
	if cfg.GuildID != "" {
		return cfg.GuildID
	}
	if b.session == nil || b.session.State == nil {
		return ""
	}
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	for _, guild := range b.session.State.Guilds {
		if guild != nil {
			return guild.ID
		}
	}
	return ""
}

func (b *Bot) memberForUser(guildID, userID string) *discordgo.Member {
	member, err := b.session.State.Member(guildID, userID)
	if err == nil && member != nil {
		return member
	}
	member, _ = b.session.GuildMember(guildID, userID)
	return member
}

func (b *Bot) memberHasAdmin(guild *discordgo.Guild, member *discordgo.Member) bool {
	if guild == nil || member == nil {
		return false
	}
	perms := int64(0)
	for _, role := range guild.Roles {
		if role.ID == guild.ID {
			perms |= role.Permissions
			break
		}
	}
	roleMap := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roleMap[role.ID] = role
	}
	for _, roleID := range member.Roles {
		if role := roleMap[roleID]; role != nil {
			perms |= role.Permissions
		}
	}
	return perms&discordgo.PermissionAdministrator != 0
}

// subjectFor builds the permission subject for userID in guildID.
func (b *Bot) subjectFor(guildID, userID string, member *discordgo.Member) permissions.Subject {
	subject := permissions.Subject{UserID: userID}
	if guildID == "" {
		return subject
	}
	if member == nil {
		member = b.memberForUser(guildID, userID)
	}
	if member != nil {
		subject.RoleIDs = append(subject.RoleIDs, member.Roles...)
	}
	guild, err := b.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return subject
	}
	subject.Owner = guild.OwnerID == userID
	subject.Administrator = b.memberHasAdmin(guild, member)
	return subject
}

// voiceChannelOf returns the voice channel userID currently sits in.
func (b *Bot) voiceChannelOf(guildID, userID string) string {
	state, err := b.session.State.VoiceState(guildID, userID)
	if err != nil || state == nil {
		return ""
	}
	return state.ChannelID
}

// voiceMembers lists the users in channelID according to the gateway cache.
func (b *Bot) voiceMembers(guildID, channelID string) []string {
	guild, err := b.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return nil
	}
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	var users []string
	for _, state := range guild.VoiceStates {
		if state == nil || state.ChannelID != channelID || state.UserID == "" {
			continue
		}
		users = append(users, state.UserID)
	}
	return users
}

func (b *Bot) isBot(guildID, userID string) bool {
	member := b.memberForUser(guildID, userID)
	return member != nil && member.User != nil && member.User.Bot
}

func (b *Bot) warnUser(userID string, embed *discordgo.MessageEmbed) error {
	if userID == "" || embed == nil {
		return nil
	}
	channel, err := b.session.UserChannelCreate(userID)
	if err != nil {
		return err
	}
	_, err = b.session.ChannelMessageSendEmbed(channel.ID, embed)
	return err
}

func (b *Bot) commandEmbed(title, description string, color int, fields []*discordgo.MessageEmbedField) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   b.clock.Now().Format(time.RFC3339),
		Fields:      fields,
	}
}

func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil {
		if member.Nick != "" {
			return member.Nick
		}
		if member.User != nil {
			user = member.User
		}
	}
	if user == nil {
		return ""
	}
	return user.Username
}

func mention(userID string) string {
	return "<@" + userID + ">"
}

func channelMention(channelID string) string {
	return "<#" + channelID + ">"
}

func roleMentions(cfg config.Config, names []string) string {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if id := cfg.RoleID(name); id != "" {
			parts = append(parts, fmt.Sprintf("%s (<@&%s>)", name, id))
			continue
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}
