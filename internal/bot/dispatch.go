package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"spiceguild/internal/config"
	"spiceguild/internal/modules/economy"
	"spiceguild/internal/modules/promotion"
	"spiceguild/internal/modules/registry"
	"spiceguild/internal/utils"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type commandArgs map[string]string

func (a commandArgs) String(name string) string {
	return a[name]
}

func (a commandArgs) Has(name string) bool {
	_, ok := a[name]
	return ok
}

func (a commandArgs) Int(name string) (int64, bool) {
	value, ok := a[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(value, 10, 64)
	return n, err == nil
}

// ID returns a snowflake option. Missing options return "".
func (a commandArgs) ID(name string) string {
	return a[name]
}

type commandContext struct {
	ctx       context.Context
	cfg       config.Config
	cmd       *command
	guildID   string
	channelID string
	author    *discordgo.User
	member    *discordgo.Member
	args      commandArgs
	out       responder
}

func (c *commandContext) reply(embed *discordgo.MessageEmbed) error {
	return c.out.send(embed, false)
}

// replyPrivate answers ephemerally where the transport allows it.
func (c *commandContext) replyPrivate(embed *discordgo.MessageEmbed) error {
	return c.out.send(embed, true)
}

func (c *commandContext) authorID() string {
	if c.author == nil {
		return ""
	}
	return c.author.ID
}

func (c *commandContext) authorName() string {
	return displayName(c.member, c.author)
}

type responder interface {
	send(embed *discordgo.MessageEmbed, private bool) error
}

type slashResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
	deferred    bool
	answered    bool
}

func (r *slashResponder) send(embed *discordgo.MessageEmbed, private bool) error {
	flags := discordgo.MessageFlags(0)
	if private {
		flags = discordgo.MessageFlagsEphemeral
	}
	if r.deferred || r.answered {
		_, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		})
		return err
	}
	r.answered = true
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}

type prefixResponder struct {
	session   *discordgo.Session
	channelID string
	messageID string
}

func (r *prefixResponder) send(embed *discordgo.MessageEmbed, _ bool) error {
	_, err := r.session.ChannelMessageSendComplex(r.channelID, &discordgo.MessageSend{
		Embeds:    []*discordgo.MessageEmbed{embed},
		Reference: &discordgo.MessageReference{MessageID: r.messageID, ChannelID: r.channelID},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	})
	return err
}

// rejection is an expected business refusal shown to the caller as a warning.
type rejection struct {
	title   string
	message string
}

func (r *rejection) Error() string {
	return r.message
}

func reject(title, format string, args ...any) error {
	return &rejection{title: title, message: fmt.Sprintf(format, args...)}
}

type denial struct {
	required []string
}

func (d *denial) Error() string {
	return "missing required role"
}

type usageError struct {
	usage  string
	reason string
}

func (u *usageError) Error() string {
	return u.reason
}

var businessErrors = []error{
	economy.ErrInvalidAmount,
	economy.ErrInsufficientFunds,
	economy.ErrAlreadyClaimed,
	registry.ErrUnknownEvent,
	registry.ErrPrivilegedRole,
	registry.ErrNotAssignable,
	registry.ErrAlreadyRegistered,
	registry.ErrInvalidRoleIndex,
	registry.ErrMissingActivity,
	promotion.ErrRolesUnset,
	promotion.ErrRoleMissing,
	promotion.ErrNotRecruit,
	promotion.ErrAlreadyMember,
	config.ErrUnknownKey,
}

func isBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// errorEmbed renders err for the caller. platform reports whether it was an unexpected failure
// that should be logged.
func (b *Bot) errorEmbed(cfg config.Config, err error) (embed *discordgo.MessageEmbed, platform bool) {
	colors := cfg.Notifications.EmbedColors
	var rej *rejection
	var deny *denial
	var usage *usageError
	switch {
	case errors.As(err, &rej):
		return b.commandEmbed("⚠️ "+rej.title, rej.message, colors.Warning, nil), false
	case errors.As(err, &deny):
		fields := []*discordgo.MessageEmbedField{{Name: "Required roles", Value: roleMentions(cfg, deny.required), Inline: false}}
		return b.commandEmbed("❌ No permission", "You do not have a role that may use this command.", colors.Error, fields), false
	case errors.As(err, &usage):
		fields := []*discordgo.MessageEmbedField{{Name: "Usage", Value: "`" + usage.usage + "`", Inline: false}}
		return b.commandEmbed("⚠️ Invalid arguments", usage.reason, colors.Warning, fields), false
	case isBusinessError(err):
		return b.commandEmbed("⚠️ Not possible", sentence(err.Error()), colors.Warning, nil), false
	default:
		fields := []*discordgo.MessageEmbedField{{Name: "Error", Value: utils.Truncate(err.Error(), 1024), Inline: false}}
		return b.commandEmbed("❌ Something went wrong", "The action could not be completed.", colors.Error, fields), true
	}
}

func sentence(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

func (b *Bot) run(c *commandContext) {
	cmd := c.cmd
	switch {
	case cmd.Scope == scopeGuild && c.guildID == "":
		b.finish(c, reject("Server only", "This command only works inside the server."))
		return
	case cmd.Scope == scopeDM && c.guildID != "":
		b.finish(c, reject("DM only", "Send this command to me in a direct message."))
		return
	}

	subject := b.subjectFor(c.guildID, c.authorID(), c.member)
	if decision := b.perms.Check(subject, cmd.Name); !decision.Allowed {
		b.finish(c, &denial{required: decision.Required})
		return
	}

	b.finish(c, cmd.Handler(c))
}

func (b *Bot) finish(c *commandContext, err error) {
	if err == nil {
		return
	}
	embed, platform := b.errorEmbed(c.cfg, err)
	if platform {
		b.logger.Warn("command failed",
			zap.String("command", c.cmd.Name),
			zap.String("guild_id", c.guildID),
			zap.String("user_id", c.authorID()),
			zap.Error(err),
		)
	}
	if sendErr := c.replyPrivate(embed); sendErr != nil {
		b.logger.Warn("command reply failed", zap.String("command", c.cmd.Name), zap.Error(sendErr))
	}
}

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := interaction.ApplicationCommandData()
	cmd := b.lookupCommand(data.Name)
	if cmd == nil {
		return
	}

	out := &slashResponder{session: session, interaction: interaction.Interaction}
	c := &commandContext{
		ctx:       context.Background(),
		cfg:       b.cfg.Current(),
		cmd:       cmd,
		guildID:   interaction.GuildID,
		channelID: interaction.ChannelID,
		author:    interaction.User,
		member:    interaction.Member,
		args:      slashArgs(data.Options),
		out:       out,
	}
	if interaction.Member != nil && interaction.Member.User != nil {
		c.author = interaction.Member.User
	}
	if c.author == nil {
		return
	}

	if cmd.Deferred {
		err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		})
		if err != nil {
			b.logger.Warn("defer interaction failed", zap.String("command", cmd.Name), zap.Error(err))
			return
		}
		out.deferred = true
	}
	b.run(c)
}

func slashArgs(options []*discordgo.ApplicationCommandInteractionDataOption) commandArgs {
	args := make(commandArgs, len(options))
	for _, opt := range options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionInteger:
			args[opt.Name] = strconv.FormatInt(opt.IntValue(), 10)
		case discordgo.ApplicationCommandOptionString:
			args[opt.Name] = strings.TrimSpace(opt.StringValue())
		default:
			args[opt.Name] = fmt.Sprint(opt.Value)
		}
	}
	return args
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	ctx := context.Background()
	cfg := b.cfg.Current()

	name, raw, ok := splitCommand(cfg.Prefix, msg.Content)
	if !ok {
		if msg.GuildID == "" {
			b.forwardModmail(ctx, cfg, msg.Message)
		}
		return
	}
	cmd := b.lookupCommand(name)
	if cmd == nil {
		return
	}

	c := &commandContext{
		ctx:       ctx,
		cfg:       cfg,
		cmd:       cmd,
		guildID:   msg.GuildID,
		channelID: msg.ChannelID,
		author:    msg.Author,
		member:    msg.Member,
		out:       &prefixResponder{session: session, channelID: msg.ChannelID, messageID: msg.ID},
	}
	if c.member != nil && c.member.User == nil {
		member := *c.member
		member.User = msg.Author
		c.member = &member
	}

	args, err := parsePrefixArgs(cmd.Options, raw)
	if err != nil {
		b.finish(c, &usageError{usage: cmd.usage(cfg.Prefix), reason: sentence(err.Error())})
		return
	}
	c.args = args
	b.run(c)
}

// splitCommand separates "<prefix>name rest" into name and rest.
func splitCommand(prefix, content string) (name, rest string, ok bool) {
	content = strings.TrimSpace(content)
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	content = strings.TrimPrefix(content, prefix)
	name, rest = nextToken(content)
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), rest, true
}

func nextToken(s string) (token, rest string) {
	s = strings.TrimLeft(s, " \t\n")
	if i := strings.IndexAny(s, " \t\n"); i >= 0 {
		return s[:i], strings.TrimLeft(s[i:], " \t\n")
	}
	return s, ""
}

// parsePrefixArgs consumes raw positionally against options. The last string option takes the
// rest of the line.
func parsePrefixArgs(options []option, raw string) (commandArgs, error) {
	args := make(commandArgs, len(options))
	rest := strings.TrimSpace(raw)
	for i, opt := range options {
		if rest == "" {
			if opt.Required {
				return nil, fmt.Errorf("missing %s", opt.Name)
			}
			continue
		}
		if opt.Type == discordgo.ApplicationCommandOptionString && i == len(options)-1 {
			args[opt.Name] = rest
			rest = ""
			continue
		}
		var token string
		token, rest = nextToken(rest)
		value, err := parseOptionValue(opt, token)
		if err != nil {
			return nil, err
		}
		args[opt.Name] = value
	}
	return args, nil
}

func parseOptionValue(opt option, token string) (string, error) {
	switch opt.Type {
	case discordgo.ApplicationCommandOptionUser:
		if id, ok := parseMention(token, "<@!", "<@"); ok {
			return id, nil
		}
		return "", fmt.Errorf("%s must be a user mention or id", opt.Name)
	case discordgo.ApplicationCommandOptionChannel:
		if id, ok := parseMention(token, "<#"); ok {
			return id, nil
		}
		return "", fmt.Errorf("%s must be a channel mention or id", opt.Name)
	case discordgo.ApplicationCommandOptionInteger:
		if _, err := strconv.ParseInt(token, 10, 64); err != nil {
			return "", fmt.Errorf("%s must be a whole number", opt.Name)
		}
		return token, nil
	default:
		if len(opt.Choices) > 0 {
			for _, choice := range opt.Choices {
				if strings.EqualFold(choice, token) {
					return choice, nil
				}
			}
			return "", fmt.Errorf("%s must be one of %s", opt.Name, strings.Join(opt.Choices, ", "))
		}
		return token, nil
	}
}

// parseMention accepts a raw snowflake or one wrapped as <prefix…id>.
func parseMention(token string, prefixes ...string) (string, bool) {
	id := token
	for _, prefix := range prefixes {
		if strings.HasPrefix(token, prefix) && strings.HasSuffix(token, ">") {
			id = strings.TrimSuffix(strings.TrimPrefix(token, prefix), ">")
			break
		}
	}
	if _, err := utils.ParseSnowflake(id); err != nil {
		return "", false
	}
	return id, true
}
