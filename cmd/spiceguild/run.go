package main

import (
	"context"
	"fmt"
	"time"

	"spiceguild/internal/analytics"
	"spiceguild/internal/bot"
	"spiceguild/internal/config"
	"spiceguild/internal/dashboard"
	"spiceguild/internal/modules/audit"
	"spiceguild/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	auditRetention  = 90 * 24 * time.Hour
	pruneInterval   = 24 * time.Hour
)

type app struct {
	cfg    *config.Manager
	logger *zap.Logger
	store  *storage.Store
	audit  *audit.Logger
}

func (r *app) close() {
	r.store.Close()
	_ = r.logger.Sync()
}

func setup(requireToken bool) (*app, error) {
	path := config.Path()
	load := config.Load
	if !requireToken {
		load = func() (config.Config, error) { return config.LoadFile(path) }
	}
	cfg, err := load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &app{
		cfg:    config.NewManager(path, cfg),
		logger: logger,
		store:  store,
		audit:  audit.NewLogger(store, logger),
	}, nil
}

func (r *app) dashboard() (*dashboard.Server, error) {
	return dashboard.New(r.cfg, analytics.New(r.store), r.audit, r.store, bot.CommandNames(), r.logger.Named("dashboard"))
}

func newRunCmd() *cobra.Command {
	var noDashboard bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect the bot and serve the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(true)
			if err != nil {
				return err
			}
			defer rt.close()
			return runBot(cmd.Context(), rt, !noDashboard)
		},
	}
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "do not start the web dashboard")
	return cmd
}

func runBot(ctx context.Context, rt *app, withDashboard bool) error {
	cfg := rt.cfg.Current()
	var server *dashboard.Server
	switch {
	case !withDashboard:
	case !cfg.DashboardActive():
		rt.logger.Info("dashboard disabled", zap.Bool("enabled", cfg.Dashboard.Enabled), zap.Bool("password_set", cfg.Dashboard.Password != ""))
	default:
		var err error
		if server, err = rt.dashboard(); err != nil {
			return fmt.Errorf("dashboard init: %w", err)
		}
	}

	botSvc, err := bot.New(rt.cfg, rt.logger, rt.store, rt.audit)
	if err != nil {
		return fmt.Errorf("bot init: %w", err)
	}
	if err := botSvc.Start(ctx); err != nil {
		shutdownBot(botSvc)
		return fmt.Errorf("bot start: %w", err)
	}
	rt.logger.Info("bot started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.audit.RunRetention(gctx, pruneInterval, auditRetention)
		return nil
	})
	if server != nil {
		g.Go(func() error {
			return server.Run(gctx, cfg.Dashboard.Addr)
		})
	}

	err = g.Wait()
	if err != nil {
		rt.logger.Error("component failed", zap.Error(err))
	} else {
		rt.logger.Info("shutdown requested")
	}
	shutdownBot(botSvc)
	return err
}

func shutdownBot(botSvc *bot.Bot) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	botSvc.Close(ctx)
}
