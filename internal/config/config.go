package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const defaultPath = "config.yaml"

type Config struct {
	DiscordToken       string              `yaml:"-" json:"-"`
	Prefix             string              `yaml:"prefix" json:"prefix"`
	GuildID            string              `yaml:"guild_id" json:"guild_id"`
	DatabasePath       string              `yaml:"database_path" json:"database_path"`
	LogLevel           string              `yaml:"log_level" json:"log_level"`
	Roles              map[string]string   `yaml:"roles" json:"roles"`
	Channels           ChannelConfig       `yaml:"channels" json:"channels"`
	Economy            EconomyConfig       `yaml:"economy" json:"economy"`
	VoicePromotion     PromotionConfig     `yaml:"voice_promotion" json:"voice_promotion"`
	TempVoice          TempVoiceConfig     `yaml:"temp_voice" json:"temp_voice"`
	Modmail            ModmailConfig       `yaml:"modmail" json:"modmail"`
	CommandPermissions map[string][]string `yaml:"command_permissions" json:"command_permissions"`
	Dashboard          DashboardConfig     `yaml:"dashboard" json:"dashboard"`
	Notifications      NotifyConfig        `yaml:"notifications" json:"notifications"`
}

type ChannelConfig struct {
	ModmailCategory   string `yaml:"modmail_category" json:"modmail_category"`
	TempVoiceCategory string `yaml:"temp_voice_category" json:"temp_voice_category"`
	TempVoiceTrigger  string `yaml:"temp_voice_trigger" json:"temp_voice_trigger"`
	RaidAnnouncements string `yaml:"raid_announcements" json:"raid_announcements"`
}

type EconomyConfig struct {
	VoiceRewardPerHour      int64  `yaml:"voice_reward_per_hour" json:"voice_reward_per_hour"`
	VoiceRewardTicks        int64  `yaml:"voice_reward_ticks" json:"voice_reward_ticks"`
	DailyAmount             int64  `yaml:"daily_amount" json:"daily_amount"`
	PromotionBonus          int64  `yaml:"promotion_bonus" json:"promotion_bonus"`
	LeaderboardSize         int    `yaml:"leaderboard_size" json:"leaderboard_size"`
	LeaderboardIncludeZero  bool   `yaml:"leaderboard_include_zero" json:"leaderboard_include_zero"`
	Timezone                string `yaml:"timezone" json:"timezone"`
	JoinRewardCap           int    `yaml:"join_reward_cap" json:"join_reward_cap"`
	JoinRewardWindowMinutes int    `yaml:"join_reward_window_minutes" json:"join_reward_window_minutes"`
}

type PromotionConfig struct {
	HoursRequired        int `yaml:"hours_required" json:"hours_required"`
	CheckIntervalSeconds int `yaml:"check_interval_seconds" json:"check_interval_seconds"`
}

type TempVoiceConfig struct {
	DefaultName  string `yaml:"default_name" json:"default_name"`
	DefaultLimit int    `yaml:"default_limit" json:"default_limit"`
}

type ModmailConfig struct {
	CloseDelaySeconds int `yaml:"close_delay_seconds" json:"close_delay_seconds"`
}

type DashboardConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"-" json:"-"`
	Secret   string `yaml:"-" json:"-"`
}

type NotifyConfig struct {
	EmbedColors EmbedColors `yaml:"embed_colors" json:"embed_colors"`
}

type EmbedColors struct {
	Success int `yaml:"success" json:"success"`
	Info    int `yaml:"info" json:"info"`
	Warning int `yaml:"warning" json:"warning"`
	Error   int `yaml:"error" json:"error"`
}

// Role names understood by the permission hierarchy.
const (
	RoleRecruit    = "rekrut"
	RoleMember     = "member"
	RoleModerator  = "moderator"
	RoleAdmin      = "admin"
	RoleRaidLeader = "raid_leader"
)

func DefaultConfig() Config {
	return Config{
		Prefix:       "!",
		DatabasePath: "/data/spiceguild.db",
		LogLevel:     "info",
		Roles: map[string]string{
			RoleRecruit:    "",
			RoleMember:     "",
			RoleModerator:  "",
			RoleAdmin:      "",
			RoleRaidLeader: "",
		},
		Economy: EconomyConfig{
			VoiceRewardPerHour: 60,
			VoiceRewardTicks:   12,
			DailyAmount:        100,
			PromotionBonus:     1000,
			LeaderboardSize:    10,
			Timezone:           "Local",
		},
		VoicePromotion:     PromotionConfig{HoursRequired: 24, CheckIntervalSeconds: 300},
		TempVoice:          TempVoiceConfig{DefaultName: "{user}'s Channel", DefaultLimit: 0},
		Modmail:            ModmailConfig{CloseDelaySeconds: 10},
		CommandPermissions: map[string][]string{},
		Dashboard:          DashboardConfig{Enabled: true, Addr: ":8080"},
		Notifications: NotifyConfig{
			EmbedColors: EmbedColors{
				Success: 0x22C55E,
				Info:    0x3B82F6,
				Warning: 0xF59E0B,
				Error:   0xEF4444,
			},
		},
	}
}

// Path returns the config file location from CONFIG_PATH.
func Path() string {
	return envString("CONFIG_PATH", defaultPath)
}

func Load() (Config, error) {
	cfg, err := LoadFile(Path())
	if err != nil {
		return Config{}, err
	}
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	return cfg, nil
}

// LoadFile reads path over the defaults and applies the environment. A missing file is not an error.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	applyEnv(&cfg)
	normalize(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.Prefix = envString("BOT_PREFIX", cfg.Prefix)
	cfg.GuildID = envString("GUILD_ID", cfg.GuildID)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.VoicePromotion.HoursRequired = envInt("VOICE_HOURS_REQUIRED", cfg.VoicePromotion.HoursRequired)
	cfg.VoicePromotion.CheckIntervalSeconds = envInt("VOICE_CHECK_INTERVAL", cfg.VoicePromotion.CheckIntervalSeconds)
	cfg.Dashboard.Enabled = envBool("DASHBOARD_ENABLED", cfg.Dashboard.Enabled)
	cfg.Dashboard.Addr = envString("DASHBOARD_ADDR", cfg.Dashboard.Addr)
	cfg.Dashboard.Password = envString("ADMIN_PASSWORD", cfg.Dashboard.Password)
	cfg.Dashboard.Password = envString("DASHBOARD_PASSWORD", cfg.Dashboard.Password)
	cfg.Dashboard.Secret = envString("DASHBOARD_SECRET", cfg.Dashboard.Secret)
	cfg.Notifications.EmbedColors.Success = envInt("EMBED_COLOR_SUCCESS", cfg.Notifications.EmbedColors.Success)
	cfg.Notifications.EmbedColors.Info = envInt("EMBED_COLOR_INFO", cfg.Notifications.EmbedColors.Info)
	cfg.Notifications.EmbedColors.Warning = envInt("EMBED_COLOR_WARNING", cfg.Notifications.EmbedColors.Warning)
	cfg.Notifications.EmbedColors.Error = envInt("EMBED_COLOR_ERROR", cfg.Notifications.EmbedColors.Error)
}

func normalize(cfg *Config) {
	cfg.Prefix = strings.TrimSpace(cfg.Prefix)
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.Roles == nil {
		cfg.Roles = map[string]string{}
	}
	if cfg.CommandPermissions == nil {
		cfg.CommandPermissions = map[string][]string{}
	}
	if cfg.Economy.VoiceRewardTicks <= 0 {
		cfg.Economy.VoiceRewardTicks = 12
	}
	if cfg.Economy.LeaderboardSize <= 0 {
		cfg.Economy.LeaderboardSize = 10
	}
	if cfg.VoicePromotion.CheckIntervalSeconds <= 0 {
		cfg.VoicePromotion.CheckIntervalSeconds = 300
	}
	if cfg.Modmail.CloseDelaySeconds < 0 {
		cfg.Modmail.CloseDelaySeconds = 0
	}
}

func (c Config) Validate() error {
	if c.TempVoice.DefaultLimit < 0 || c.TempVoice.DefaultLimit > 99 {
		return errors.New("temp_voice.default_limit must be between 0 and 99")
	}
	if c.VoicePromotion.HoursRequired < 0 {
		return errors.New("voice_promotion.hours_required must not be negative")
	}
	if c.Economy.DailyAmount < 0 || c.Economy.PromotionBonus < 0 || c.Economy.VoiceRewardPerHour < 0 {
		return errors.New("economy amounts must not be negative")
	}
	if _, err := loadLocation(c.Economy.Timezone); err != nil {
		return err
	}
	return nil
}

// RoleID maps a hierarchy role name to its configured snowflake.
func (c Config) RoleID(name string) string {
	return c.Roles[name]
}

func (c Config) Location() *time.Location {
	loc, err := loadLocation(c.Economy.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// JoinReward is the per-join trickle: reward-per-hour split into ticks.
func (c Config) JoinReward() int64 {
	if c.Economy.VoiceRewardTicks <= 0 {
		return 0
	}
	return c.Economy.VoiceRewardPerHour / c.Economy.VoiceRewardTicks
}

func (c Config) PromotionThresholdMinutes() int64 {
	return int64(c.VoicePromotion.HoursRequired) * 60
}

func (c Config) PromotionInterval() time.Duration {
	return time.Duration(c.VoicePromotion.CheckIntervalSeconds) * time.Second
}

func (c Config) ModmailCloseDelay() time.Duration {
	return time.Duration(c.Modmail.CloseDelaySeconds) * time.Second
}

func (c Config) JoinRewardWindow() time.Duration {
	return time.Duration(c.Economy.JoinRewardWindowMinutes) * time.Minute
}

// DashboardActive reports whether the web dashboard should be served.
func (c Config) DashboardActive() bool {
	return c.Dashboard.Enabled && c.Dashboard.Password != ""
}

func loadLocation(name string) (*time.Location, error) {
	switch strings.TrimSpace(name) {
	case "", "Local", "local":
		return time.Local, nil
	default:
		return time.LoadLocation(name)
	}
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(strings.ToLower(level)))
	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
