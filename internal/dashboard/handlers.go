package dashboard

import (
	"context"
	"crypto/subtle"
	"net/http"
	"sort"
	"strings"
	"time"

	"spiceguild/internal/modules/audit"
	"spiceguild/internal/permissions"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type permissionRow struct {
	Command string
	Roles   []string
	Custom  bool
}

func joinRoles(roles []string) string {
	if len(roles) == 0 {
		return "everyone"
	}
	return strings.Join(roles, ", ")
}

func (s *Server) healthCheck(c *gin.Context) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) loginPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{})
}

func (s *Server) login(c *gin.Context) {
	if !s.limiter.Allow() {
		s.logger.Warn("dashboard login rate limited", zap.String("remote", c.ClientIP()))
		c.HTML(http.StatusTooManyRequests, "login.html", gin.H{"Error": "Too many attempts, wait a moment."})
		return
	}
	password := s.cfg.Current().Dashboard.Password
	given := c.PostForm("password")
	if password == "" || subtle.ConstantTimeCompare([]byte(given), []byte(password)) != 1 {
		s.logger.Warn("dashboard login failed", zap.String("remote", c.ClientIP()))
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{"Error": "Wrong password."})
		return
	}

	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionAuthed, true)
	if err := session.Save(); err != nil {
		s.logger.Error("save dashboard session", zap.Error(err))
		c.HTML(http.StatusInternalServerError, "login.html", gin.H{"Error": "Could not start a session."})
		return
	}
	s.logger.Info("dashboard login", zap.String("remote", c.ClientIP()))
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = session.Save()
	c.Redirect(http.StatusSeeOther, "/login")
}

func (s *Server) index(c *gin.Context) {
	cfg := s.cfg.Current()
	session := sessions.Default(c)
	flashes := session.Flashes()
	if len(flashes) > 0 {
		_ = session.Save()
	}

	roleNames := make([]string, 0, len(cfg.Roles))
	for name := range cfg.Roles {
		roleNames = append(roleNames, name)
	}
	sort.Strings(roleNames)

	c.HTML(http.StatusOK, "index.html", gin.H{
		"Flashes":     flashes,
		"Sections":    sectionViews(cfg),
		"Permissions": s.permissionRows(),
		"Commands":    s.commandChoices(),
		"RoleNames":   roleNames,
	})
}

func (s *Server) permissionRows() []permissionRow {
	cfg := s.cfg.Current()
	seen := make(map[string]struct{})
	var rows []permissionRow
	add := func(command string) {
		if _, ok := seen[command]; ok {
			return
		}
		seen[command] = struct{}{}
		_, custom := cfg.CommandPermissions[command]
		rows = append(rows, permissionRow{Command: command, Roles: s.perms.Required(command), Custom: custom})
	}
	for _, command := range permissions.Restricted() {
		add(command)
	}
	for command := range cfg.CommandPermissions {
		add(command)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Command < rows[j].Command })
	return rows
}

// commandChoices is every command plus the capabilities that are not commands.
func (s *Server) commandChoices() []string {
	set := make(map[string]struct{}, len(s.commands))
	for _, command := range s.commands {
		set[command] = struct{}{}
	}
	for _, command := range permissions.Restricted() {
		set[command] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for command := range set {
		out = append(out, command)
	}
	sort.Strings(out)
	return out
}

func (s *Server) flash(c *gin.Context, message string) {
	session := sessions.Default(c)
	session.AddFlash(message)
	if err := session.Save(); err != nil {
		s.logger.Warn("save dashboard flash", zap.Error(err))
	}
}

func (s *Server) updateSection(c *gin.Context) {
	sec, ok := findSection(c.Param("section"))
	if !ok {
		c.String(http.StatusNotFound, "unknown section")
		return
	}
	values := make(map[string]string, len(sec.Fields))
	for _, f := range sec.Fields {
		if value, ok := c.GetPostForm(f.Key); ok {
			values[f.Key] = value
		}
	}
	if len(values) == 0 {
		s.flash(c, sec.Title+": nothing to save.")
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	if err := s.cfg.SetMany(values); err != nil {
		s.logger.Warn("dashboard update rejected", zap.String("section", sec.Name), zap.Error(err))
		s.flash(c, sec.Title+": "+err.Error())
		c.Redirect(http.StatusSeeOther, "/")
		return
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	s.audit.Log(c.Request.Context(), audit.LevelInfo, s.cfg.Current().GuildID, "dashboard", audit.EventConfig, strings.Join(keys, ","))
	s.flash(c, sec.Title+" saved.")
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) updatePermission(c *gin.Context) {
	command := strings.TrimSpace(c.PostForm("command"))
	if !s.knownCommand(command) {
		s.flash(c, "Unknown command "+command+".")
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	roles := strings.FieldsFunc(c.PostForm("roles"), func(r rune) bool { return r == ',' || r == ' ' })
	cfg := s.cfg.Current()
	for _, name := range roles {
		if _, ok := cfg.Roles[name]; !ok {
			s.flash(c, "Unknown role "+name+".")
			c.Redirect(http.StatusSeeOther, "/")
			return
		}
	}
	if err := s.cfg.SetCommandRoles(command, roles); err != nil {
		s.logger.Warn("dashboard permission update rejected", zap.String("command", command), zap.Error(err))
		s.flash(c, err.Error())
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	s.audit.Log(c.Request.Context(), audit.LevelInfo, cfg.GuildID, "dashboard", audit.EventConfig, "command_permissions."+command+"="+strings.Join(roles, ","))
	s.flash(c, "Permissions for "+command+" saved.")
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) knownCommand(command string) bool {
	if command == "" {
		return false
	}
	for _, known := range s.commandChoices() {
		if known == command {
			return true
		}
	}
	return false
}

func (s *Server) resetPermissions(c *gin.Context) {
	if err := s.cfg.ResetCommandRoles(); err != nil {
		s.logger.Error("reset command permissions", zap.Error(err))
		s.flash(c, err.Error())
		c.Redirect(http.StatusSeeOther, "/")
		return
	}
	s.audit.Log(c.Request.Context(), audit.LevelWarn, s.cfg.Current().GuildID, "dashboard", audit.EventConfig, "command_permissions reset")
	s.flash(c, "Permissions reset to defaults.")
	c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Current())
}

func (s *Server) getActivity(c *gin.Context) {
	if s.activity == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "activity unavailable"})
		return
	}
	since := s.clock.Now().Add(-activityRange)
	report, err := s.activity.Report(c.Request.Context(), s.cfg.Current().GuildID, since)
	if err != nil {
		s.logger.Error("activity report", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, report)
}
