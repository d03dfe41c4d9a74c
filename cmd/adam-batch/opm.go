package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"adam-batch/internal/config"
	"adam-batch/internal/opm"
)

var (
	opmJobPath    string
	opmSchemaPath string
	opmIndex      int
	opmCheck      bool
)

var opmCmd = &cobra.Command{
	Use:   "opm",
	Short: "Print the OPM of an initial state",
	Long:  "opm renders one initial state of a job as the Orbit Parameter Message sent to the service. --check parses the message back and compares it with the state.",
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := config.Load(opmJobPath, opmSchemaPath)
		if err != nil {
			return err
		}
		states, err := job.States()
		if err != nil {
			return err
		}
		if opmIndex < 0 || opmIndex >= len(states) {
			return fmt.Errorf("--index %d out of range: job has %d initial states", opmIndex, len(states))
		}
		s := states[opmIndex]
		text := opm.Encode(s, time.Now)
		if opmCheck {
			msg, err := opm.Parse(text)
			if err != nil {
				return err
			}
			sv, err := msg.StateVector()
			if err != nil {
				return err
			}
			if sv != s.StateVector {
				return fmt.Errorf("opm check: state vector %v does not match %v", sv, s.StateVector)
			}
			if msg.HasCovariance() != (s.Covariance != nil) {
				return fmt.Errorf("opm check: covariance block mismatch")
			}
			slog.Info("opm check passed", "index", opmIndex, "keys", len(msg.Keys()))
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	},
}

func init() {
	opmCmd.Flags().StringVar(&opmJobPath, "job", "job.yaml", "Path to the job YAML")
	opmCmd.Flags().StringVar(&opmSchemaPath, "schema", "", "Path to a CUE schema replacing the embedded one")
	opmCmd.Flags().IntVar(&opmIndex, "index", 0, "Index of the initial state in the job")
	opmCmd.Flags().BoolVar(&opmCheck, "check", false, "Parse the rendered message and verify it matches the state")
}
