package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"spiceguild/internal/analytics"
	"spiceguild/internal/clock"
	"spiceguild/internal/config"
	"spiceguild/internal/modules/audit"
	"spiceguild/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPassword = "hunter2"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixture struct {
	server *Server
	cfg    *config.Manager
	store  *storage.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())

	cfg := config.DefaultConfig()
	cfg.Dashboard.Password = testPassword
	cfg.Dashboard.Secret = "0123456789abcdef0123456789abcdef"
	cfg.Roles[config.RoleModerator] = "555"
	manager := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"), cfg)

	logger := zap.NewNop()
	server, err := New(manager, analytics.New(store), audit.NewLogger(store, logger), store, []string{"balance", "give", "help"}, logger)
	require.NoError(t, err)
	return &fixture{server: server, cfg: manager, store: store}
}

// client replays the cookies a browser would keep between requests.
type client struct {
	t       *testing.T
	handler http.Handler
	cookies map[string]*http.Cookie
}

func (f *fixture) client(t *testing.T) *client {
	return &client{t: t, handler: f.server.Handler(), cookies: map[string]*http.Cookie{}}
}

func (c *client) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	for _, cookie := range rec.Result().Cookies() {
		c.cookies[cookie.Name] = cookie
	}
	return rec
}

func (c *client) login() {
	rec := c.do(http.MethodPost, "/login", url.Values{"password": {testPassword}})
	require.Equal(c.t, http.StatusSeeOther, rec.Code)
	require.Equal(c.t, "/", rec.Header().Get("Location"))
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	rec := f.client(t).do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequiresLogin(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	rec := c.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = c.do(http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodPost, "/settings/economy", url.Values{"economy.daily_amount": {"1"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, int64(100), f.cfg.Current().Economy.DailyAmount)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	rec := c.do(http.MethodPost, "/login", url.Values{"password": {"wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wrong password")

	c.login()
	rec = c.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Voice promotion")
	assert.Contains(t, rec.Body.String(), "economy.daily_amount")

	rec = c.do(http.MethodGet, "/logout", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	delete(c.cookies, sessionName)
	rec = c.do(http.MethodGet, "/api/config", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		codes = append(codes, c.do(http.MethodPost, "/login", url.Values{"password": {"nope"}}).Code)
	}
	assert.Equal(t, []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}, codes)
}

func TestConfigAPIHidesSecrets(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	c.login()

	rec := c.do(http.MethodGet, "/api/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), testPassword)
	assert.NotContains(t, rec.Body.String(), "0123456789abcdef")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "!", body["prefix"])
	assert.Equal(t, "555", body["roles"].(map[string]any)["moderator"])
}

func TestUpdateSection(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	c.login()

	rec := c.do(http.MethodPost, "/settings/economy", url.Values{
		"economy.daily_amount":             {"250"},
		"economy.leaderboard_include_zero": {"true"},
		"prefix":                           {"?"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)

	cfg := f.cfg.Current()
	assert.Equal(t, int64(250), cfg.Economy.DailyAmount)
	assert.True(t, cfg.Economy.LeaderboardIncludeZero)
	assert.Equal(t, "!", cfg.Prefix, "keys outside the section are ignored")

	rec = c.do(http.MethodGet, "/", nil)
	assert.Contains(t, rec.Body.String(), "Economy saved.")

	logs, err := f.store.ListAuditLogs(context.Background(), "", time.Time{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, audit.EventConfig, logs[0].Event)
	assert.Equal(t, "economy.daily_amount,economy.leaderboard_include_zero", logs[0].Details)
}

func TestUpdateSectionRejectsInvalidValues(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	c.login()

	rec := c.do(http.MethodPost, "/settings/temp_voice", url.Values{
		"temp_voice.default_name":  {"Room of {user}"},
		"temp_voice.default_limit": {"150"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cfg := f.cfg.Current()
	assert.Equal(t, 0, cfg.TempVoice.DefaultLimit)
	assert.Equal(t, "{user}'s Channel", cfg.TempVoice.DefaultName, "a failed section commits nothing")

	rec = c.do(http.MethodGet, "/", nil)
	assert.Contains(t, rec.Body.String(), "between 0 and 99")

	rec = c.do(http.MethodPost, "/settings/secrets", url.Values{"x": {"y"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateRoles(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	c.login()

	rec := c.do(http.MethodPost, "/settings/roles", url.Values{"roles.rekrut": {"111"}, "roles.member": {"222"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cfg := f.cfg.Current()
	assert.Equal(t, "111", cfg.RoleID(config.RoleRecruit))
	assert.Equal(t, "222", cfg.RoleID(config.RoleMember))
	assert.Equal(t, "555", cfg.RoleID(config.RoleModerator))
}

func TestPermissions(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	c.login()

	rec := c.do(http.MethodPost, "/permissions", url.Values{"command": {"give"}, "roles": {"raid_leader, moderator"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, []string{"raid_leader", "moderator"}, f.cfg.Current().CommandPermissions["give"])

	c.do(http.MethodPost, "/permissions", url.Values{"command": {"give"}, "roles": {"wizard"}})
	assert.Equal(t, []string{"raid_leader", "moderator"}, f.cfg.Current().CommandPermissions["give"])

	c.do(http.MethodPost, "/permissions", url.Values{"command": {"launch-rockets"}, "roles": {"admin"}})
	assert.NotContains(t, f.cfg.Current().CommandPermissions, "launch-rockets")

	c.do(http.MethodPost, "/permissions", url.Values{"command": {"rage_lock_bypass"}, "roles": {"member"}})
	assert.Equal(t, []string{"member"}, f.cfg.Current().CommandPermissions["rage_lock_bypass"])

	rec = c.do(http.MethodGet, "/", nil)
	assert.Contains(t, rec.Body.String(), "raid_leader, moderator")

	rec = c.do(http.MethodPost, "/permissions/reset", url.Values{})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, f.cfg.Current().CommandPermissions)
}

func TestActivity(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	f.server.WithClock(clock.NewFake(now))

	ctx := context.Background()
	require.NoError(t, f.store.AddAuditLog(ctx, storage.AuditLog{GuildID: "g", UserID: "1", Level: audit.LevelInfo, Event: audit.EventGrant, CreatedAt: now.Add(-time.Hour)}))
	require.NoError(t, f.store.AddAuditLog(ctx, storage.AuditLog{GuildID: "g", UserID: "1", Level: audit.LevelInfo, Event: audit.EventGrant, CreatedAt: now.Add(-48 * time.Hour)}))

	c := f.client(t)
	c.login()
	rec := c.do(http.MethodGet, "/api/activity", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report analytics.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Total)
	assert.Equal(t, []analytics.Count{{Key: audit.EventGrant, Count: 1}}, report.ByEvent)
}
