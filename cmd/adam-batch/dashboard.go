package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"adam-batch/internal/config"
	"adam-batch/internal/dashboard"
)

var (
	dashOutDir  string
	dashJobPath string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render a Grafana dashboard for the GreptimeDB sink",
	Long:  "dashboard writes a Grafana dashboard querying the status and end state tables. The datasource uid is read from $GREPTIMEDB_DATASOURCE_UID.",
	RunE: func(cmd *cobra.Command, args []string) error {
		g := config.Defaults().Sinks.Greptime
		if dashJobPath != "" {
			job, err := config.Load(dashJobPath, "")
			if err != nil {
				return err
			}
			g = job.Sinks.Greptime
		}
		path, err := dashboard.Render(dashOutDir, dashboard.Tables{EndStateTable: g.Table, StatusTable: g.StatusTable})
		if err != nil {
			return err
		}
		slog.Info("dashboard written", "path", path)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashOutDir, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashJobPath, "job", "", "Job YAML whose sinks section names the tables")
}
