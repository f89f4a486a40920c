package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolatedEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", filepath.Join(dir, "config.yaml"))
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "test.db"))
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DASHBOARD_PASSWORD", "")
	t.Setenv("ADMIN_PASSWORD", "")
	return dir
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["dashboard"])
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
}

func TestRunRequiresToken(t *testing.T) {
	isolatedEnv(t)
	root := newRootCmd()
	root.SetArgs([]string{"run"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DISCORD_TOKEN")
}

func TestDashboardRequiresPassword(t *testing.T) {
	isolatedEnv(t)
	root := newRootCmd()
	root.SetArgs([]string{"dashboard"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DASHBOARD_PASSWORD")
}

func TestEnvFileIsLoaded(t *testing.T) {
	dir := isolatedEnv(t)
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("SPICEGUILD_ENV_MARKER=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("SPICEGUILD_ENV_MARKER") })

	root := newRootCmd()
	root.SetArgs([]string{"--env-file", envPath, "dashboard"})
	err := root.Execute()
	require.Error(t, err)
	assert.Equal(t, "loaded", os.Getenv("SPICEGUILD_ENV_MARKER"))

	missing := newRootCmd()
	missing.SetArgs([]string{"--env-file", filepath.Join(dir, "absent.env"), "dashboard"})
	assert.Error(t, missing.Execute())
}
