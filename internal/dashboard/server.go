// Package dashboard serves the password protected web UI for editing the bot configuration.
package dashboard

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"sort"
	"strings"
	"time"

	"spiceguild/internal/analytics"
	"spiceguild/internal/clock"
	"spiceguild/internal/config"
	"spiceguild/internal/modules/audit"
	"spiceguild/internal/permissions"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	sessionName   = "spiceguild_session"
	sessionAuthed = "authenticated"
	sessionMaxAge = 12 * time.Hour
	activityRange = 24 * time.Hour
)

//go:embed templates/*.html
var templateFS embed.FS

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg      *config.Manager
	perms    *permissions.Checker
	activity *analytics.Service
	audit    *audit.Logger
	db       Pinger
	logger   *zap.Logger
	clock    clock.Clock
	commands []string
	limiter  *rate.Limiter
	engine   *gin.Engine
}

// New builds the gin engine. commands is the full command list offered on the permissions form.
func New(cfg *config.Manager, activity *analytics.Service, auditLog *audit.Logger, db Pinger, commands []string, logger *zap.Logger) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{"join": joinRoles}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		perms:    permissions.NewChecker(cfg),
		activity: activity,
		audit:    auditLog,
		db:       db,
		logger:   logger,
		clock:    clock.Real(),
		commands: append([]string(nil), commands...),
		limiter:  rate.NewLimiter(rate.Limit(1), 3),
	}
	sort.Strings(s.commands)

	secret := []byte(cfg.Current().Dashboard.Secret)
	if len(secret) == 0 {
		logger.Warn("dashboard secret not set, generating random key (sessions will not survive restarts)")
		secret = securecookie.GenerateRandomKey(64)
	}
	store := cookie.NewStore(secret)
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(sessions.Sessions(sessionName, store))
	r.SetHTMLTemplate(tmpl)

	r.GET("/healthz", s.healthCheck)
	r.GET("/login", s.loginPage)
	r.POST("/login", s.login)
	r.GET("/logout", s.logout)

	protected := r.Group("/")
	protected.Use(s.requireLogin())
	protected.GET("/", s.index)
	protected.POST("/settings/:section", s.updateSection)
	protected.POST("/permissions", s.updatePermission)
	protected.POST("/permissions/reset", s.resetPermissions)
	protected.GET("/api/config", s.getConfig)
	protected.GET("/api/activity", s.getActivity)

	s.engine = r
	return s, nil
}

func (s *Server) WithClock(c clock.Clock) {
	s.clock = c
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("dashboard listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.clock.Now()
		c.Next()
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("duration", s.clock.Now().Sub(start)),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn("dashboard request failed", fields...)
			return
		}
		s.logger.Debug("dashboard request", fields...)
	}
}

func (s *Server) requireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if authed, _ := session.Get(sessionAuthed).(bool); authed {
			c.Next()
			return
		}
		if isAPIRequest(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Redirect(http.StatusSeeOther, "/login")
		c.Abort()
	}
}

func isAPIRequest(c *gin.Context) bool {
	return strings.HasPrefix(c.Request.URL.Path, "/api/")
}
