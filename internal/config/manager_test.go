package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.DiscordToken = "token"
	cfg.Dashboard.Password = "secret-password"
	return NewManager(path, cfg)
}

func TestManagerSetScalar(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Set("voice_promotion.hours_required", "12"))
	require.NoError(t, m.Set("temp_voice.default_name", "{user}'s Lair"))
	require.NoError(t, m.Set("economy.leaderboard_include_zero", "true"))

	cfg := m.Current()
	assert.Equal(t, 12, cfg.VoicePromotion.HoursRequired)
	assert.Equal(t, "{user}'s Lair", cfg.TempVoice.DefaultName)
	assert.True(t, cfg.Economy.LeaderboardIncludeZero)
	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, "secret-password", cfg.Dashboard.Password)
}

func TestManagerSetOpenSections(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Set("roles.rekrut", "123456789012345678"))
	require.NoError(t, m.Set("roles.veteran", "42"))
	require.NoError(t, m.Set("command_permissions.give", "[admin, moderator]"))

	cfg := m.Current()
	assert.Equal(t, "123456789012345678", cfg.RoleID(RoleRecruit))
	assert.Equal(t, "42", cfg.RoleID("veteran"))
	assert.Equal(t, []string{"admin", "moderator"}, cfg.CommandPermissions["give"])
}

func TestManagerSetRejects(t *testing.T) {
	m := newTestManager(t)

	err := m.Set("voice_promotion.unknown", "1")
	assert.ErrorIs(t, err, ErrUnknownKey)

	err = m.Set("channels.modmail_category.deep", "1")
	assert.ErrorIs(t, err, ErrUnknownKey)

	assert.Error(t, m.Set("voice_promotion", "1"))
	assert.Error(t, m.Set("voice_promotion.hours_required", "lots"))
	assert.Error(t, m.Set("temp_voice.default_limit", "100"))

	assert.Equal(t, 24, m.Current().VoicePromotion.HoursRequired)
}

func TestManagerPersistsWithoutSecrets(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Set("prefix", "$"))

	data, err := os.ReadFile(m.Path())
	require.NoError(t, err)
	body := string(data)
	assert.Contains(t, body, "prefix:")
	assert.False(t, strings.Contains(body, "token"))
	assert.False(t, strings.Contains(body, "secret-password"))

	loaded, err := LoadFile(m.Path())
	require.NoError(t, err)
	assert.Equal(t, "$", loaded.Prefix)
}

func TestManagerReloadAndNotify(t *testing.T) {
	m := newTestManager(t)
	var seen []int
	m.OnChange(func(cfg Config) { seen = append(seen, cfg.VoicePromotion.CheckIntervalSeconds) })

	require.NoError(t, m.Set("voice_promotion.check_interval_seconds", "120"))
	require.NoError(t, os.WriteFile(m.Path(), []byte("voice_promotion:\n  check_interval_seconds: 90\n"), 0o600))
	require.NoError(t, m.Reload())

	assert.Equal(t, []int{120, 90}, seen)
	assert.Equal(t, "token", m.Current().DiscordToken)
}

func TestManagerCommandRoles(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.SetCommandRoles("take", []string{" admin ", ""}))
	assert.Equal(t, []string{"admin"}, m.Current().CommandPermissions["take"])

	require.NoError(t, m.SetCommandRoles("take", nil))
	_, ok := m.Current().CommandPermissions["take"]
	assert.False(t, ok)

	require.NoError(t, m.SetCommandRoles("give", []string{"admin"}))
	require.NoError(t, m.ResetCommandRoles())
	assert.Empty(t, m.Current().CommandPermissions)
}

func TestManagerSnapshotIsolation(t *testing.T) {
	m := newTestManager(t)
	snap := m.Current()
	snap.Roles[RoleAdmin] = "mutated"
	assert.Equal(t, "", m.Current().RoleID(RoleAdmin))
}

func TestManagerSetMany(t *testing.T) {
	m := newTestManager(t)
	err := m.SetMany(map[string]string{
		"temp_voice.default_limit": "5",
		"temp_voice.default_name":  "Room",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, m.Current().TempVoice.DefaultLimit)

	err = m.SetMany(map[string]string{
		"temp_voice.default_limit": "7",
		"temp_voice.bogus":         "x",
	})
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Equal(t, 5, m.Current().TempVoice.DefaultLimit)
}
