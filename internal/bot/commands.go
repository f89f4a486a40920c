package bot

import (
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"
)

type scope int

const (
	scopeGuild scope = iota
	scopeDM
	scopeAny
)

type option struct {
	Name        string
	Description string
	Type        discordgo.ApplicationCommandOptionType
	Required    bool
	Choices     []string
}

// command is one entry of the command table. Name doubles as the capability checked by the
// permission service.
type command struct {
	Name        string
	Aliases     []string
	Category    string
	Description string
	Options     []option
	Scope       scope
	// Deferred commands acknowledge the interaction first and answer with a followup.
	Deferred bool
	Handler  func(c *commandContext) error
}

func (c *command) usage(prefix string) string {
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(c.Name)
	for _, opt := range c.Options {
		sb.WriteByte(' ')
		if opt.Required {
			sb.WriteString("<" + opt.Name + ">")
		} else {
			sb.WriteString("[" + opt.Name + "]")
		}
	}
	return sb.String()
}

func userOpt(name, description string, required bool) option {
	return option{Name: name, Description: description, Type: discordgo.ApplicationCommandOptionUser, Required: required}
}

func channelOpt(name, description string, required bool) option {
	return option{Name: name, Description: description, Type: discordgo.ApplicationCommandOptionChannel, Required: required}
}

func intOpt(name, description string, required bool) option {
	return option{Name: name, Description: description, Type: discordgo.ApplicationCommandOptionInteger, Required: required}
}

func stringOpt(name, description string, required bool, choices ...string) option {
	return option{Name: name, Description: description, Type: discordgo.ApplicationCommandOptionString, Required: required, Choices: choices}
}

func (b *Bot) loadCommands() {
	b.commands = []*command{
		{Name: "balance", Aliases: []string{"bal", "spice"}, Category: "Economy", Description: "Show a Spice balance", Scope: scopeAny,
			Options: []option{userOpt("user", "member to look up", false)}, Handler: b.handleBalance},
		{Name: "leaderboard", Aliases: []string{"lb", "top"}, Category: "Economy", Description: "Richest members", Scope: scopeAny, Handler: b.handleLeaderboard},
		{Name: "give", Aliases: []string{"add_spice"}, Category: "Economy", Description: "Give Spice to a member",
			Options: []option{userOpt("user", "recipient", true), intOpt("amount", "amount of Spice", true)}, Handler: b.handleGive},
		{Name: "take", Aliases: []string{"remove_spice"}, Category: "Economy", Description: "Take Spice from a member",
			Options: []option{userOpt("user", "member to debit", true), intOpt("amount", "amount of Spice", true)}, Handler: b.handleTake},
		{Name: "daily", Category: "Economy", Description: "Claim the daily Spice bonus", Scope: scopeAny, Handler: b.handleDaily},

		{Name: "event", Aliases: []string{"create_event"}, Category: "Events", Description: "Create an event with reaction sign-up",
			Options: []option{stringOpt("title", "event title", true), stringOpt("description", "event description", true)}, Handler: b.handleEvent},
		{Name: "event-info", Aliases: []string{"event_info", "eventinfo"}, Category: "Events", Description: "Show event sign-ups",
			Options: []option{stringOpt("event_id", "event id", true)}, Handler: b.handleEventInfo},
		{Name: "assign-crawler", Aliases: []string{"assign_crawler"}, Category: "Events", Description: "Assign a member as Crawler",
			Options: []option{stringOpt("event_id", "event id", true), userOpt("user", "member", true)}, Handler: b.handleAssignCrawler},
		{Name: "assign-carrier", Aliases: []string{"assign_carrier"}, Category: "Events", Description: "Assign a member as Carrier",
			Options: []option{stringOpt("event_id", "event id", true), userOpt("user", "member", true)}, Handler: b.handleAssignCarrier},
		{Name: "event-edit", Aliases: []string{"event_edit"}, Category: "Events", Description: "Assign Crawler or Carrier on an event",
			Options: []option{stringOpt("event_id", "event id", true), userOpt("user", "member", true), stringOpt("role", "role to assign", true, "Crawler", "Carrier")},
			Handler: b.handleEventEdit},
		{Name: "create-raid", Aliases: []string{"create_raid", "raid"}, Category: "Raids", Description: "Announce a raid",
			Options: []option{stringOpt("description", "raid description", true)}, Handler: b.handleCreateRaid},
		{Name: "register-raid", Aliases: []string{"register_raid", "signup"}, Category: "Raids", Description: "Sign up for a raid",
			Options: []option{stringOpt("raid_id", "raid id", true), intOpt("role", "role number from the raid post", true), stringOpt("notes", "notes for the raid leader", false)},
			Handler: b.handleRegisterRaid},
		{Name: "raid-info", Aliases: []string{"raid_info", "raidinfo"}, Category: "Raids", Description: "Show raid sign-ups",
			Options: []option{stringOpt("raid_id", "raid id", true)}, Handler: b.handleRaidInfo},

		{Name: "lock-voice", Aliases: []string{"lock", "lockvoice"}, Category: "Voice", Description: "Lock a voice channel",
			Options: []option{channelOpt("channel", "voice channel, defaults to yours", false)}, Handler: b.handleLockVoice},
		{Name: "unlock-voice", Aliases: []string{"unlock", "unlockvoice"}, Category: "Voice", Description: "Unlock a voice channel",
			Options: []option{channelOpt("channel", "voice channel, defaults to yours", false)}, Handler: b.handleUnlockVoice},
		{Name: "rage-lock", Aliases: []string{"ragelock"}, Category: "Voice", Description: "Disconnect everyone who joins a channel",
			Options: []option{channelOpt("channel", "voice channel, defaults to yours", false), intOpt("minutes", "lift automatically after this many minutes", false)},
			Handler: b.handleRageLock},
		{Name: "unrage-lock", Aliases: []string{"unragelock", "un-rage-lock"}, Category: "Voice", Description: "Lift a rage lock",
			Options: []option{channelOpt("channel", "voice channel, defaults to yours", false)}, Handler: b.handleUnrageLock},
		{Name: "move-all", Aliases: []string{"moveall"}, Category: "Voice", Description: "Move everyone in your channel", Deferred: true,
			Options: []option{channelOpt("channel", "target voice channel", true)}, Handler: b.handleMoveAll},
		{Name: "voice-stats", Aliases: []string{"voicestats", "vs"}, Category: "Voice", Description: "Voice time and promotion progress", Scope: scopeAny,
			Options: []option{userOpt("user", "member to look up", false)}, Handler: b.handleVoiceStats},
		{Name: "force-promote", Aliases: []string{"force_promote", "promote"}, Category: "Voice", Description: "Promote a recruit now",
			Options: []option{userOpt("user", "recruit to promote", true)}, Handler: b.handleForcePromote},

		{Name: "set-temp-trigger", Aliases: []string{"set_temp_trigger", "temp_trigger"}, Category: "Temp voice", Description: "Set the channel that spawns temp channels",
			Options: []option{channelOpt("channel", "voice channel", true)}, Handler: b.handleSetTempTrigger},
		{Name: "temp-voice", Aliases: []string{"temp_voice", "temp"}, Category: "Temp voice", Description: "Create your own voice channel",
			Options: []option{stringOpt("name", "channel name", false)}, Handler: b.handleTempVoice},
		{Name: "temp-name", Aliases: []string{"temp_name", "rename"}, Category: "Temp voice", Description: "Rename your temp channel",
			Options: []option{stringOpt("name", "new name", true)}, Handler: b.handleTempName},
		{Name: "temp-limit", Aliases: []string{"temp_limit", "limit"}, Category: "Temp voice", Description: "Set the user limit of your temp channel",
			Options: []option{intOpt("limit", "0 to 99, 0 means unlimited", true)}, Handler: b.handleTempLimit},
		{Name: "temp-kick", Aliases: []string{"temp_kick", "tk"}, Category: "Temp voice", Description: "Kick someone from your temp channel",
			Options: []option{userOpt("user", "member to kick", true), stringOpt("reason", "reason", false)}, Handler: b.handleTempKick},

		{Name: "modmail", Aliases: []string{"mm"}, Category: "ModMail", Description: "Open a ticket with the moderators", Scope: scopeDM,
			Options: []option{stringOpt("message", "your message", true)}, Handler: b.handleModmail},
		{Name: "reply", Aliases: []string{"r"}, Category: "ModMail", Description: "Answer the ticket in this channel",
			Options: []option{stringOpt("message", "reply text", true)}, Handler: b.handleReply},
		{Name: "close", Category: "ModMail", Description: "Close the ticket in this channel",
			Options: []option{stringOpt("reason", "reason", false)}, Handler: b.handleClose},

		{Name: "setup", Aliases: []string{"config"}, Category: "Admin", Description: "Show or change the bot configuration",
			Options: []option{stringOpt("action", "show, set or reload", true, "show", "set", "reload"), stringOpt("key", "dotted key path", false), stringOpt("value", "new value", false)},
			Handler: b.handleSetup},
		{Name: "help", Aliases: []string{"commands", "overview"}, Category: "Admin", Description: "List the commands you can use", Scope: scopeAny, Handler: b.handleHelp},
	}

	b.byName = make(map[string]*command, len(b.commands)*2)
	for _, cmd := range b.commands {
		b.byName[cmd.Name] = cmd
		for _, alias := range cmd.Aliases {
			b.byName[alias] = cmd
		}
	}
}

func (b *Bot) lookupCommand(name string) *command {
	return b.byName[strings.ToLower(name)]
}

func applicationCommand(cmd *command) *discordgo.ApplicationCommand {
	out := &discordgo.ApplicationCommand{
		Name:        cmd.Name,
		Description: cmd.Description,
	}
	if cmd.Scope == scopeGuild {
		dm := false
		out.DMPermission = &dm
	}
	for _, opt := range cmd.Options {
		appOpt := &discordgo.ApplicationCommandOption{
			Type:        opt.Type,
			Name:        opt.Name,
			Description: opt.Description,
			Required:    opt.Required,
		}
		if opt.Type == discordgo.ApplicationCommandOptionChannel {
			appOpt.ChannelTypes = []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice}
		}
		for _, choice := range opt.Choices {
			appOpt.Choices = append(appOpt.Choices, &discordgo.ApplicationCommandOptionChoice{Name: choice, Value: choice})
		}
		out.Options = append(out.Options, appOpt)
	}
	return out
}

func (b *Bot) applicationCommands() []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(b.commands))
	for _, cmd := range b.commands {
		out = append(out, applicationCommand(cmd))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *Bot) registerCommands() error {
	commands := b.applicationCommands()

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}

	// Guild-scoped leftovers shadow the global commands, so they are pruned too.
	for _, guild := range b.session.State.Guilds {
		if guild == nil {
			continue
		}
		guildID := guild.ID
		guildCmds, err := b.session.ApplicationCommands(appID, guildID)
		if err != nil {
			continue
		}
		for _, cmd := range guildCmds {
			_ = b.session.ApplicationCommandDelete(appID, guildID, cmd.ID)
		}
	}
	return nil
}
