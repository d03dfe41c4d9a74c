package main

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"adam-batch/internal/batch"
)

var (
	listProject      string
	resultsEphemeris bool
	resultsRecords   bool
)

var statusCmd = &cobra.Command{
	Use:   "status <batch-id>",
	Short: "Show the status of a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, ok, err := newClient(serviceSettings(nil)).Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("batch %s not found", args[0])
		}
		return printJSON(cmd.OutOrStdout(), st)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the batches of a project",
	RunE: func(cmd *cobra.Command, args []string) error {
		byID, err := newClient(serviceSettings(nil)).Statuses(cmd.Context(), listProject)
		if err != nil {
			return err
		}
		out := make([]batch.Status, 0, len(byID))
		for _, st := range byID {
			out = append(out, st)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return printJSON(cmd.OutOrStdout(), out)
	},
}

type partSummary struct {
	Index     int             `json:"part_index"`
	CalcState batch.CalcState `json:"calc_state,omitempty"`
	Missing   bool            `json:"missing,omitempty"`
	Error     string          `json:"error,omitempty"`
	Ephemeris string          `json:"stk_ephemeris,omitempty"`
}

type recordSummary struct {
	Time  string     `json:"time"`
	State [6]float64 `json:"state"`
}

type resultSummary struct {
	Status   batch.Status    `json:"status"`
	Parts    []partSummary   `json:"parts"`
	EndState *[6]float64     `json:"end_state,omitempty"`
	Records  []recordSummary `json:"records,omitempty"`
}

var resultsCmd = &cobra.Command{
	Use:   "results <batch-id>",
	Short: "Fetch the result parts and end state of a batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(serviceSettings(nil))
		st, ok, err := client.Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("batch %s not found", args[0])
		}
		res, ok, err := client.Results(cmd.Context(), st)
		if err != nil {
			return err
		}
		summary := resultSummary{Status: st}
		if ok {
			for i, p := range res.Parts() {
				if p == nil {
					summary.Parts = append(summary.Parts, partSummary{Index: i + 1, Missing: true})
					continue
				}
				ps := partSummary{Index: p.Index, CalcState: p.CalcState, Error: p.Error}
				if resultsEphemeris {
					ps.Ephemeris = p.Ephemeris
				}
				summary.Parts = append(summary.Parts, ps)
			}
			sv, ok, err := res.EndStateVector()
			if err != nil {
				return err
			}
			if ok {
				v := [6]float64(sv)
				summary.EndState = &v
			}
			if resultsRecords {
				recs, err := res.EphemerisRecords()
				if err != nil {
					return err
				}
				for _, rec := range recs {
					summary.Records = append(summary.Records, recordSummary{Time: rec.Time, State: [6]float64(rec.State)})
				}
			}
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <batch-id>...",
	Short: "Delete batches",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient(serviceSettings(nil))
		for _, id := range args {
			if err := client.Delete(cmd.Context(), id); err != nil {
				return err
			}
			slog.Info("deleted batch", "batch_id", id)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listProject, "project", "", "Project id")
	listCmd.MarkFlagRequired("project") //nolint:errcheck
	resultsCmd.Flags().BoolVar(&resultsEphemeris, "ephemeris", false, "Include the raw STK ephemeris of every part")
	resultsCmd.Flags().BoolVar(&resultsRecords, "records", false, "Include every state record of the completed parts, in km and km/s")
}
