package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"adam-batch/internal/logging"
)

var (
	rootURL       string
	rootTokenEnv  string
	rootLogLevel  string
	rootLogFormat string

	logLevel slog.Level
)

var rootCmd = &cobra.Command{
	Use:           "adam-batch",
	Short:         "Batch orbit propagation client",
	Long:          "adam-batch submits orbit propagation batches to the ADAM service, tracks them to completion and collects their end states.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := logging.ParseLevel(rootLogLevel)
		if err != nil {
			return err
		}
		logLevel = lvl
		slog.SetDefault(logging.New(cmd.ErrOrStderr(), lvl, rootLogFormat))
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootURL, "url", "", "Service base URL (overrides the job file and $ADAM_URL)")
	rootCmd.PersistentFlags().StringVar(&rootTokenEnv, "token-env", "", "Environment variable holding the service token (default $ADAM_TOKEN)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&rootLogFormat, "log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(opmCmd)
	rootCmd.AddCommand(stmCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(dashboardCmd)
}
