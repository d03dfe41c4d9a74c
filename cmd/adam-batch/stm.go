package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"adam-batch/internal/config"
	"adam-batch/internal/stm"
)

var (
	stmJobPath    string
	stmSchemaPath string
	stmIndex      int
)

var stmCmd = &cobra.Command{
	Use:   "stm",
	Short: "Compute the state transition matrix of an initial state",
	Long:  "stm propagates an initial state and twelve perturbed copies of it, then prints the end state and the 6x6 central difference matrix d(end state)/d(initial state).",
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := config.Load(stmJobPath, stmSchemaPath)
		if err != nil {
			return err
		}
		p, err := job.PropagationParams()
		if err != nil {
			return err
		}
		states, err := job.States()
		if err != nil {
			return err
		}
		if stmIndex < 0 || stmIndex >= len(states) {
			return fmt.Errorf("--index %d out of range: job has %d initial states", stmIndex, len(states))
		}
		m := stm.NewModule(newClient(serviceSettings(job)), job.RunnerOptions())
		end, matrix, err := m.Run(cmd.Context(), p, states[stmIndex])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			EndState [6]float64    `json:"end_state"`
			STM      [6][6]float64 `json:"stm"`
		}{[6]float64(end), [6][6]float64(matrix)})
	},
}

func init() {
	stmCmd.Flags().StringVar(&stmJobPath, "job", "job.yaml", "Path to the job YAML")
	stmCmd.Flags().StringVar(&stmSchemaPath, "schema", "", "Path to a CUE schema replacing the embedded one")
	stmCmd.Flags().IntVar(&stmIndex, "index", 0, "Index of the initial state in the job")
}
