package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"spiceguild/internal/clock"
	"spiceguild/internal/config"
	"spiceguild/internal/modules/economy"
	"spiceguild/internal/modules/registry"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBot() *Bot {
	b := &Bot{clock: clock.NewFake(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))}
	b.loadCommands()
	return b
}

func TestSplitCommand(t *testing.T) {
	name, rest, ok := splitCommand("!", "  !Give <@123> 50 ")
	require.True(t, ok)
	assert.Equal(t, "give", name)
	assert.Equal(t, "<@123> 50", rest)

	_, _, ok = splitCommand("!", "hello there")
	assert.False(t, ok)
	_, _, ok = splitCommand("!", "!")
	assert.False(t, ok)
	_, _, ok = splitCommand("", "!give")
	assert.False(t, ok)
}

func TestParsePrefixArgs(t *testing.T) {
	b := testBot()

	args, err := parsePrefixArgs(b.lookupCommand("give").Options, "<@!42> 150")
	require.NoError(t, err)
	assert.Equal(t, "42", args.ID("user"))
	amount, ok := args.Int("amount")
	require.True(t, ok)
	assert.Equal(t, int64(150), amount)

	args, err = parsePrefixArgs(b.lookupCommand("register-raid").Options, "raid_01abc 3 bring  potions please")
	require.NoError(t, err)
	assert.Equal(t, "raid_01abc", args.String("raid_id"))
	assert.Equal(t, "3", args.String("role"))
	assert.Equal(t, "bring  potions please", args.String("notes"))

	args, err = parsePrefixArgs(b.lookupCommand("register-raid").Options, "raid_01abc 2")
	require.NoError(t, err)
	assert.False(t, args.Has("notes"))

	args, err = parsePrefixArgs(b.lookupCommand("lock-voice").Options, "<#777>")
	require.NoError(t, err)
	assert.Equal(t, "777", args.ID("channel"))

	args, err = parsePrefixArgs(b.lookupCommand("balance").Options, "")
	require.NoError(t, err)
	assert.Empty(t, args)

	args, err = parsePrefixArgs(b.lookupCommand("setup").Options, "SET economy.daily_amount 250")
	require.NoError(t, err)
	assert.Equal(t, "set", args.String("action"))
	assert.Equal(t, "economy.daily_amount", args.String("key"))
	assert.Equal(t, "250", args.String("value"))
}

func TestParsePrefixArgsRejectsBadInput(t *testing.T) {
	b := testBot()
	cases := []struct {
		command string
		raw     string
	}{
		{"give", "<@42>"},
		{"give", "bob 10"},
		{"give", "<@42> ten"},
		{"lock-voice", "<@42>"},
		{"setup", "delete"},
		{"event", ""},
	}
	for _, tc := range cases {
		t.Run(tc.command+" "+tc.raw, func(t *testing.T) {
			_, err := parsePrefixArgs(b.lookupCommand(tc.command).Options, tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestParseMention(t *testing.T) {
	id, ok := parseMention("<@!123>", "<@!", "<@")
	require.True(t, ok)
	assert.Equal(t, "123", id)

	id, ok = parseMention("<@456>", "<@!", "<@")
	require.True(t, ok)
	assert.Equal(t, "456", id)

	id, ok = parseMention("789", "<#")
	require.True(t, ok)
	assert.Equal(t, "789", id)

	_, ok = parseMention("<#abc>", "<#")
	assert.False(t, ok)
	_, ok = parseMention("<@&99>", "<@!", "<@")
	assert.False(t, ok)
}

var slashName = regexp.MustCompile(`^[-_a-z0-9]{1,32}$`)

func TestCommandTable(t *testing.T) {
	b := testBot()
	seen := map[string]string{}
	for _, cmd := range b.commands {
		require.NotNil(t, cmd.Handler, cmd.Name)
		assert.Regexp(t, slashName, cmd.Name)
		assert.NotEmpty(t, cmd.Description, cmd.Name)
		assert.LessOrEqual(t, len(cmd.Description), 100, cmd.Name)

		for _, name := range append([]string{cmd.Name}, cmd.Aliases...) {
			if owner, dup := seen[name]; dup {
				t.Fatalf("%s is used by %s and %s", name, owner, cmd.Name)
			}
			seen[name] = cmd.Name
		}

		optional := false
		for _, opt := range cmd.Options {
			assert.Regexp(t, slashName, opt.Name)
			if !opt.Required {
				optional = true
			} else if optional {
				t.Fatalf("%s: required option %s follows an optional one", cmd.Name, opt.Name)
			}
		}
	}
}

func TestApplicationCommand(t *testing.T) {
	b := testBot()
	app := applicationCommand(b.lookupCommand("event-edit"))
	assert.Equal(t, "event-edit", app.Name)
	require.NotNil(t, app.DMPermission)
	assert.False(t, *app.DMPermission)
	require.Len(t, app.Options, 3)
	assert.Equal(t, discordgo.ApplicationCommandOptionUser, app.Options[1].Type)
	require.Len(t, app.Options[2].Choices, 2)
	assert.Equal(t, "Crawler", app.Options[2].Choices[0].Value)

	dm := applicationCommand(b.lookupCommand("modmail"))
	assert.Nil(t, dm.DMPermission)

	lock := applicationCommand(b.lookupCommand("lock-voice"))
	assert.Equal(t, []discordgo.ChannelType{discordgo.ChannelTypeGuildVoice}, lock.Options[0].ChannelTypes)

	names := make([]string, 0)
	for _, cmd := range b.applicationCommands() {
		names = append(names, cmd.Name)
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Len(t, names, len(b.commands))
}

func TestUsage(t *testing.T) {
	b := testBot()
	assert.Equal(t, "!register-raid <raid_id> <role> [notes]", b.lookupCommand("register-raid").usage("!"))
	assert.Equal(t, "?daily", b.lookupCommand("daily").usage("?"))
	assert.Same(t, b.lookupCommand("balance"), b.lookupCommand("BAL"))
}

func TestErrorEmbed(t *testing.T) {
	b := testBot()
	cfg := config.DefaultConfig()
	cfg.Roles[config.RoleModerator] = "555"
	colors := cfg.Notifications.EmbedColors

	embed, platform := b.errorEmbed(cfg, reject("Insufficient balance", "only %d left", 5))
	assert.False(t, platform)
	assert.Equal(t, colors.Warning, embed.Color)
	assert.Equal(t, "only 5 left", embed.Description)
	assert.Equal(t, "2024-07-01T12:00:00Z", embed.Timestamp)

	embed, platform = b.errorEmbed(cfg, &denial{required: []string{config.RoleAdmin, config.RoleModerator}})
	assert.False(t, platform)
	assert.Equal(t, colors.Error, embed.Color)
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "admin, moderator (<@&555>)", embed.Fields[0].Value)

	embed, platform = b.errorEmbed(cfg, fmt.Errorf("revoke: %w", economy.ErrInsufficientFunds))
	assert.False(t, platform)
	assert.Equal(t, colors.Warning, embed.Color)
	assert.Equal(t, "Revoke: insufficient balance.", embed.Description)

	_, platform = b.errorEmbed(cfg, registry.ErrAlreadyRegistered)
	assert.False(t, platform)

	embed, platform = b.errorEmbed(cfg, &usageError{usage: "!give <user> <amount>", reason: "Missing amount."})
	assert.False(t, platform)
	assert.Equal(t, "`!give <user> <amount>`", embed.Fields[0].Value)

	embed, platform = b.errorEmbed(cfg, errors.New("HTTP 403 Forbidden"))
	assert.True(t, platform)
	assert.Equal(t, colors.Error, embed.Color)
	assert.Equal(t, "HTTP 403 Forbidden", embed.Fields[0].Value)
}

type recordingResponder struct {
	embeds  []*discordgo.MessageEmbed
	private []bool
}

func (r *recordingResponder) send(embed *discordgo.MessageEmbed, private bool) error {
	r.embeds = append(r.embeds, embed)
	r.private = append(r.private, private)
	return nil
}

func TestRunRejectsWrongScope(t *testing.T) {
	b := testBot()
	out := &recordingResponder{}
	c := &commandContext{
		ctx:    context.Background(),
		cfg:    config.DefaultConfig(),
		cmd:    b.lookupCommand("give"),
		author: &discordgo.User{ID: "1"},
		out:    out,
	}
	b.run(c)
	require.Len(t, out.embeds, 1)
	assert.True(t, out.private[0])
	assert.Contains(t, out.embeds[0].Description, "inside the server")

	out = &recordingResponder{}
	c.cmd = b.lookupCommand("modmail")
	c.guildID = "guild"
	c.out = out
	b.run(c)
	require.Len(t, out.embeds, 1)
	assert.Contains(t, out.embeds[0].Description, "direct message")
}

func TestConnectOverwrite(t *testing.T) {
	allow, deny := connectOverwrite(discordgo.PermissionVoiceConnect|discordgo.PermissionViewChannel, 0, true)
	assert.Equal(t, int64(discordgo.PermissionViewChannel), allow)
	assert.Equal(t, int64(discordgo.PermissionVoiceConnect), deny)

	allow, deny = connectOverwrite(allow, deny|discordgo.PermissionSendMessages, false)
	assert.Equal(t, int64(discordgo.PermissionViewChannel), allow)
	assert.Equal(t, int64(discordgo.PermissionSendMessages), deny)
}

func TestMoveMembers(t *testing.T) {
	users := []string{"1", "2", "3", "4", "5", "6", "7"}
	report := moveMembers(context.Background(), users, func(userID string) error {
		if userID == "3" || userID == "6" {
			return errors.New("missing access")
		}
		return nil
	})
	assert.Equal(t, 5, report.Moved)
	assert.ElementsMatch(t, []string{"3", "6"}, report.Failed)
}

func TestTempChannelName(t *testing.T) {
	cfg := config.DefaultConfig()
	assert.Equal(t, "Mia's Channel", tempChannelName(cfg, "", "Mia"))
	assert.Equal(t, "Raid Prep", tempChannelName(cfg, "  Raid Prep ", "Mia"))
	assert.Len(t, []rune(tempChannelName(cfg, strings.Repeat("a", 150), "Mia")), maxChannelName)
}

func TestMemberStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Roles[config.RoleRecruit] = "10"
	cfg.Roles[config.RoleMember] = "20"
	assert.Equal(t, "🔰 Recruit", memberStatus(cfg, []string{"10"}))
	assert.Equal(t, "✅ Member", memberStatus(cfg, []string{"10", "20"}))
	assert.Equal(t, "None", memberStatus(cfg, nil))
}

func TestSlashArgs(t *testing.T) {
	args := slashArgs([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "user", Type: discordgo.ApplicationCommandOptionUser, Value: "42"},
		{Name: "amount", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(75)},
		{Name: "notes", Type: discordgo.ApplicationCommandOptionString, Value: "  hi "},
	})
	assert.Equal(t, "42", args.ID("user"))
	amount, ok := args.Int("amount")
	require.True(t, ok)
	assert.Equal(t, int64(75), amount)
	assert.Equal(t, "hi", args.String("notes"))
}
