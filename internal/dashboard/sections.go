package dashboard

import (
	"strconv"

	"spiceguild/internal/config"
)

type field struct {
	Key   string
	Label string
	Kind  string
	get   func(config.Config) string
}

type section struct {
	Name   string
	Title  string
	Fields []field
}

type fieldView struct {
	Key   string
	Label string
	Kind  string
	Value string
}

type sectionView struct {
	Name   string
	Title  string
	Fields []fieldView
}

func text(key, label string, get func(config.Config) string) field {
	return field{Key: key, Label: label, Kind: "text", get: get}
}

func number[T int | int64](key, label string, get func(config.Config) T) field {
	return field{Key: key, Label: label, Kind: "number", get: func(c config.Config) string {
		return strconv.FormatInt(int64(get(c)), 10)
	}}
}

func boolean(key, label string, get func(config.Config) bool) field {
	return field{Key: key, Label: label, Kind: "bool", get: func(c config.Config) string {
		return strconv.FormatBool(get(c))
	}}
}

func role(name string) field {
	return text("roles."+name, name, func(c config.Config) string { return c.Roles[name] })
}

// sections lists what the settings form can edit; a POST only accepts its section's keys.
var sections = []section{
	{Name: "basic", Title: "Basic", Fields: []field{
		text("prefix", "Command prefix", func(c config.Config) string { return c.Prefix }),
		text("guild_id", "Guild ID", func(c config.Config) string { return c.GuildID }),
		text("log_level", "Log level", func(c config.Config) string { return c.LogLevel }),
	}},
	{Name: "roles", Title: "Roles", Fields: []field{
		role(config.RoleRecruit),
		role(config.RoleMember),
		role(config.RoleModerator),
		role(config.RoleAdmin),
		role(config.RoleRaidLeader),
	}},
	{Name: "channels", Title: "Channels", Fields: []field{
		text("channels.modmail_category", "ModMail category", func(c config.Config) string { return c.Channels.ModmailCategory }),
		text("channels.temp_voice_category", "Temp voice category", func(c config.Config) string { return c.Channels.TempVoiceCategory }),
		text("channels.temp_voice_trigger", "Temp voice trigger", func(c config.Config) string { return c.Channels.TempVoiceTrigger }),
		text("channels.raid_announcements", "Raid announcements", func(c config.Config) string { return c.Channels.RaidAnnouncements }),
	}},
	{Name: "economy", Title: "Economy", Fields: []field{
		number("economy.voice_reward_per_hour", "Voice reward per hour", func(c config.Config) int64 { return c.Economy.VoiceRewardPerHour }),
		number("economy.voice_reward_ticks", "Reward divisor per join", func(c config.Config) int64 { return c.Economy.VoiceRewardTicks }),
		number("economy.daily_amount", "Daily bonus", func(c config.Config) int64 { return c.Economy.DailyAmount }),
		number("economy.promotion_bonus", "Promotion bonus", func(c config.Config) int64 { return c.Economy.PromotionBonus }),
		number("economy.leaderboard_size", "Leaderboard size", func(c config.Config) int { return c.Economy.LeaderboardSize }),
		boolean("economy.leaderboard_include_zero", "Show zero balances", func(c config.Config) bool { return c.Economy.LeaderboardIncludeZero }),
		text("economy.timezone", "Timezone", func(c config.Config) string { return c.Economy.Timezone }),
		number("economy.join_reward_cap", "Join rewards per window (0 = unlimited)", func(c config.Config) int { return c.Economy.JoinRewardCap }),
		number("economy.join_reward_window_minutes", "Join reward window (minutes)", func(c config.Config) int { return c.Economy.JoinRewardWindowMinutes }),
	}},
	{Name: "voice_promotion", Title: "Voice promotion", Fields: []field{
		number("voice_promotion.hours_required", "Hours required", func(c config.Config) int { return c.VoicePromotion.HoursRequired }),
		number("voice_promotion.check_interval_seconds", "Check interval (seconds)", func(c config.Config) int { return c.VoicePromotion.CheckIntervalSeconds }),
	}},
	{Name: "temp_voice", Title: "Temp voice", Fields: []field{
		text("temp_voice.default_name", "Default name ({user} is replaced)", func(c config.Config) string { return c.TempVoice.DefaultName }),
		number("temp_voice.default_limit", "Default user limit", func(c config.Config) int { return c.TempVoice.DefaultLimit }),
	}},
	{Name: "modmail", Title: "ModMail", Fields: []field{
		number("modmail.close_delay_seconds", "Delete channel after close (seconds)", func(c config.Config) int { return c.Modmail.CloseDelaySeconds }),
	}},
}

func findSection(name string) (section, bool) {
	for _, s := range sections {
		if s.Name == name {
			return s, true
		}
	}
	return section{}, false
}

func sectionViews(cfg config.Config) []sectionView {
	out := make([]sectionView, 0, len(sections))
	for _, s := range sections {
		view := sectionView{Name: s.Name, Title: s.Title}
		for _, f := range s.Fields {
			view.Fields = append(view.Fields, fieldView{Key: f.Key, Label: f.Label, Kind: f.Kind, Value: f.get(cfg)})
		}
		out = append(out, view)
	}
	return out
}
