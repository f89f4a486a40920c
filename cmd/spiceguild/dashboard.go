package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newDashboardCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Serve only the web dashboard (no Discord connection)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(false)
			if err != nil {
				return err
			}
			defer rt.close()

			cfg := rt.cfg.Current()
			if cfg.Dashboard.Password == "" {
				return errors.New("DASHBOARD_PASSWORD is required")
			}
			if addr == "" {
				addr = cfg.Dashboard.Addr
			}
			server, err := rt.dashboard()
			if err != nil {
				return err
			}
			return server.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, defaults to dashboard.addr")
	return cmd
}
