package main

import (
	"github.com/spf13/cobra"

	"github.com/pachecocarlos27/DataTrackPro/pkg/datatrack/dashboard"
)

func newDashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Serve the live dashboard",
		Long: `Serve the dashboard page, its websocket feed at /ws, the event and alert
APIs under /api and the metrics registry at /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := dashboard.NewServer(a.dashboardAddr(),
				dashboard.WithLogger(a.logger),
				dashboard.WithRegistry(a.registry()),
			)
			return srv.Run(cmd.Context())
		},
	}
}
