package bot

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"spiceguild/internal/config"
	"spiceguild/internal/modules/audit"
	"spiceguild/internal/utils"

	"github.com/bwmarrin/discordgo"
	"gopkg.in/yaml.v3"
)

func (b *Bot) handleSetup(c *commandContext) error {
	switch c.args.String("action") {
	case "show":
		return c.replyPrivate(b.setupEmbed(c.cfg))
	case "set":
		key := strings.TrimSpace(c.args.String("key"))
		value := c.args.String("value")
		if key == "" || !c.args.Has("value") {
			return &usageError{usage: c.cfg.Prefix + "setup set <key> <value>", reason: "Key and value are required."}
		}
		if err := b.cfg.Set(key, value); err != nil {
			if errors.Is(err, config.ErrUnknownKey) {
				return reject("Unknown key", "`%s` is not a configuration key.", key)
			}
			return reject("Invalid value", "%s", sentence(err.Error()))
		}
		b.audit.Log(c.ctx, audit.LevelInfo, c.guildID, c.authorID(), audit.EventConfig, key+"="+value)
		desc := fmt.Sprintf("`%s` = `%s`", key, utils.Truncate(value, 200))
		return c.replyPrivate(b.commandEmbed("✅ Configuration updated", desc, c.cfg.Notifications.EmbedColors.Success, nil))
	case "reload":
		if err := b.cfg.Reload(); err != nil {
			return err
		}
		b.audit.Log(c.ctx, audit.LevelInfo, c.guildID, c.authorID(), audit.EventConfig, "reload")
		return c.replyPrivate(b.commandEmbed("🔄 Configuration reloaded", "Loaded "+b.cfg.Path(), c.cfg.Notifications.EmbedColors.Success, nil))
	default:
		return &usageError{usage: c.cmd.usage(c.cfg.Prefix), reason: "Action must be show, set or reload."}
	}
}

func (b *Bot) setupEmbed(cfg config.Config) *discordgo.MessageEmbed {
	roleNames := make([]string, 0, len(cfg.Roles))
	for name := range cfg.Roles {
		roleNames = append(roleNames, name)
	}
	sort.Strings(roleNames)
	roles := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		value := "not set"
		if id := cfg.Roles[name]; id != "" {
			value = "<@&" + id + ">"
		}
		roles = append(roles, fmt.Sprintf("`%s`: %s", name, value))
	}

	channel := func(id string) string {
		if id == "" {
			return "not set"
		}
		return channelMention(id)
	}
	channels := []string{
		"Temp trigger: " + channel(cfg.Channels.TempVoiceTrigger),
		"Temp category: " + channel(cfg.Channels.TempVoiceCategory),
		"ModMail category: " + channel(cfg.Channels.ModmailCategory),
		"Raid announcements: " + channel(cfg.Channels.RaidAnnouncements),
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Roles", Value: strings.Join(roles, "\n"), Inline: false},
		{Name: "Channels", Value: strings.Join(channels, "\n"), Inline: false},
		{Name: "Economy", Value: yamlBlock(cfg.Economy), Inline: false},
		{Name: "Voice promotion", Value: yamlBlock(cfg.VoicePromotion), Inline: true},
		{Name: "Temp voice", Value: yamlBlock(cfg.TempVoice), Inline: true},
	}
	if len(cfg.CommandPermissions) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Command permissions", Value: yamlBlock(cfg.CommandPermissions), Inline: false})
	}
	desc := fmt.Sprintf("Prefix `%s`. Change values with `%ssetup set <key> <value>`.", cfg.Prefix, cfg.Prefix)
	return b.commandEmbed("⚙️ Configuration", desc, cfg.Notifications.EmbedColors.Info, fields)
}

func yamlBlock(value any) string {
	data, err := yaml.Marshal(value)
	if err != nil {
		return err.Error()
	}
	return "```yaml\n" + utils.Truncate(strings.TrimSpace(string(data)), 1000) + "\n```"
}

func (b *Bot) handleHelp(c *commandContext) error {
	subject := b.subjectFor(c.guildID, c.authorID(), c.member)
	byCategory := make(map[string][]string)
	var categories []string
	for _, cmd := range b.commands {
		if c.guildID == "" && cmd.Scope == scopeGuild {
			continue
		}
		if c.guildID != "" && cmd.Scope == scopeDM {
			continue
		}
		if !b.perms.Check(subject, cmd.Name).Allowed {
			continue
		}
		if _, ok := byCategory[cmd.Category]; !ok {
			categories = append(categories, cmd.Category)
		}
		byCategory[cmd.Category] = append(byCategory[cmd.Category], fmt.Sprintf("`%s` %s", cmd.usage(c.cfg.Prefix), cmd.Description))
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(categories))
	for _, category := range categories {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   category,
			Value:  utils.Truncate(strings.Join(byCategory[category], "\n"), 1024),
			Inline: false,
		})
	}
	desc := "Every command also works as a slash command."
	if c.guildID != "" {
		desc += fmt.Sprintf(" Your level: **%s**.", b.perms.Level(subject))
	}
	return c.replyPrivate(b.commandEmbed("📘 Commands", desc, c.cfg.Notifications.EmbedColors.Info, fields))
}
