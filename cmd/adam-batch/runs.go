package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

const defaultLedgerPath = "adam-batch.db"

var (
	runsLedger string
	runsRunID  string
	runsLimit  int
	runsJSON   bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs recorded in the local ledger",
	Long:  "runs lists the runs recorded by `run --ledger`, newest first. With --run it lists the batches of one run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openLedger(cmd.Context(), runsLedger)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck

		out := cmd.OutOrStdout()
		if runsRunID != "" {
			batches, err := store.Batches(cmd.Context(), runsRunID)
			if err != nil {
				return err
			}
			if runsJSON {
				return printJSON(out, batches)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "#\tBATCH\tOBJECT\tSTATE\tUPDATED")
			for _, b := range batches {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", b.Position, b.BatchID, b.ObjectID, b.CalcState, humanize.Time(b.UpdatedAt))
			}
			return tw.Flush()
		}

		runs, err := store.Runs(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if runsJSON {
			return printJSON(out, runs)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tPROJECT\tSTATE\tBATCHES\tCREATED\tJOB")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", r.ID, r.ProjectID, r.State, r.BatchCount,
				r.CreatedAt.Local().Format(time.DateTime), r.JobPath)
		}
		return tw.Flush()
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsLedger, "ledger", defaultLedgerPath, "Path to the SQLite ledger")
	runsCmd.Flags().StringVar(&runsRunID, "run", "", "List the batches of this run")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs, 0 for all")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Print JSON instead of a table")
}
