package main

import (
	"github.com/spf13/cobra"

	"adam-batch/internal/batch"
	"adam-batch/internal/config"
)

var (
	submitJobPath    string
	submitSchemaPath string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit the batches of a job without waiting",
	Long:  "submit creates one batch per initial state in a single bulk request and prints the returned statuses as JSON.",
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := config.Load(submitJobPath, submitSchemaPath)
		if err != nil {
			return err
		}
		batches, err := jobBatches(job)
		if err != nil {
			return err
		}
		pairs := make([]batch.Pair, len(batches))
		for i, b := range batches {
			pairs[i] = batch.Pair{Propagation: b.PropagationParams(), State: b.InitialState()}
		}
		statuses, err := newClient(serviceSettings(job)).SubmitMany(cmd.Context(), pairs)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), statuses)
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitJobPath, "job", "job.yaml", "Path to the job YAML")
	submitCmd.Flags().StringVar(&submitSchemaPath, "schema", "", "Path to a CUE schema replacing the embedded one")
}
