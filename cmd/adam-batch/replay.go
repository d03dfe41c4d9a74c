package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"adam-batch/internal/config"
	"adam-batch/internal/sink"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayJobPath   string
	replayOutput    string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay an end state log file",
	Long:  "replay feeds end state rows from a JSONL results log back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		g := config.Defaults().Sinks.Greptime
		if replayJobPath != "" {
			job, err := config.Load(replayJobPath, "")
			if err != nil {
				return err
			}
			g = job.Sinks.Greptime
		}
		_, writer, err := baseWriters(g, replayPrintOnly, false, replayOutput)
		if err != nil {
			return err
		}
		n, err := sink.ReplayLogFile(replayInput, writer, replaySpeed)
		slog.Info("replayed end states", "rows", n, "input", replayInput)
		if err != nil {
			return err
		}
		return sink.Flush(writer)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to an end state log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "Playback speed multiplier, 0 replays without delay")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print end states to STDOUT instead of writing to DB")
	replayCmd.Flags().StringVar(&replayJobPath, "job", "", "Job YAML whose sinks section locates GreptimeDB")
	replayCmd.Flags().StringVar(&replayOutput, "output", "json", "STDOUT format: json or color")
	replayCmd.MarkFlagRequired("input") //nolint:errcheck
}
