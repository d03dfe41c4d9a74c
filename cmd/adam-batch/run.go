package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"adam-batch/internal/admin"
	"adam-batch/internal/apierr"
	"adam-batch/internal/batch"
	"adam-batch/internal/config"
	"adam-batch/internal/ledger"
	"adam-batch/internal/logging"
	"adam-batch/internal/runner"
	"adam-batch/internal/sink"
	"adam-batch/internal/tui"
)

var (
	runJobPath    string
	runSchemaPath string
	runTUI        string
	runAdminAddr  string
	runJSONL      string
	runLedger     string
	runPrintOnly  bool
	runOutput     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Propagate every initial state of a job",
	Long:  "run submits one batch per initial state, polls the service until all of them are finished, fetches their results and writes the end states to the configured sinks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := config.Load(runJobPath, runSchemaPath)
		if err != nil {
			return err
		}
		batches, err := jobBatches(job)
		if err != nil {
			return err
		}
		client := newClient(serviceSettings(job))
		r, err := runner.New(client, batches, job.RunnerOptions())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		useTUI, err := wantTUI(runTUI)
		if err != nil {
			return err
		}
		log := slog.Default()
		var extra []sink.EndStateWriter
		var mon *tui.Monitor
		if useTUI {
			mon = tui.New(r.ProjectID())
			defer mon.Close() //nolint:errcheck
			log = logging.New(mon, logLevel, rootLogFormat)
			r.Subscribe(mon.Observe)
			extra = append(extra, mon)
		}
		log = log.With("run_id", r.ID())
		ctx = logging.NewContext(ctx, log)

		jsonl := runJSONL
		if jsonl == "" {
			jsonl = job.Sinks.JSONL
		}
		out, cleanup, err := newWriters(job.Sinks.Greptime, runPrintOnly, useTUI, runOutput, jsonl, extra...)
		if err != nil {
			return err
		}
		defer cleanup()

		tracker := sink.NewStatusTracker()
		r.Subscribe(func(s runner.Snapshot) {
			if err := out.WriteStatuses(tracker.Changed(s)); err != nil {
				log.Warn("write statuses", "err", err)
			}
		})

		ledgerPath := runLedger
		if ledgerPath == "" {
			ledgerPath = job.Sinks.Ledger
		}
		if ledgerPath != "" {
			store, err := openLedger(ctx, ledgerPath)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck
			if err := store.RecordRun(ctx, ledger.Run{
				ID:         r.ID(),
				ProjectID:  r.ProjectID(),
				JobPath:    runJobPath,
				State:      r.State().String(),
				BatchCount: len(batches),
			}); err != nil {
				return err
			}
			r.Subscribe(func(s runner.Snapshot) {
				// the run context may already be cancelled when the last snapshot arrives
				if err := store.RecordSnapshot(context.WithoutCancel(ctx), s); err != nil {
					log.Warn("record snapshot", "err", err)
				}
			})
		}

		if runAdminAddr != "" {
			srv := admin.NewServer(r, log)
			go func() {
				err := srv.Start(ctx, runAdminAddr, func(net.Addr) {
					if mon != nil {
						mon.SetAdminStatus(true)
					}
				})
				if err != nil {
					log.Error("admin server failed", "err", err)
				}
				if mon != nil {
					mon.SetAdminStatus(false)
				}
			}()
		}

		if err := r.Run(ctx); err != nil {
			log.Error("run failed", "error_class", apierr.Classify(err), "err", err)
			return fmt.Errorf("run %s: %w", r.ID(), err)
		}

		rows, skipped := sink.EndStateRows(r.ID(), r.Batches(), time.Now().UTC())
		var unreadable []error
		for _, s := range skipped {
			if s.Err != nil {
				log.Error("end state unreadable", "batch_id", s.BatchID, "error_class", apierr.Classify(s.Err), "err", s.Err)
				unreadable = append(unreadable, fmt.Errorf("batch %s: %w", s.BatchID, s.Err))
				continue
			}
			log.Warn("end state unavailable", "batch_id", s.BatchID)
		}
		if err := out.WriteEndStates(rows); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
		counts := r.Snapshot().Counts()
		log.Info("run finished",
			"batches", len(batches),
			"completed", counts[string(batch.StateCompleted)],
			"failed", counts[string(batch.StateFailed)],
			"end_states", len(rows))
		// rows that could be read are already written
		return errors.Join(unreadable...)
	},
}

// jobBatches pairs the job's propagation window with each initial state.
func jobBatches(job *config.Job) ([]*batch.Batch, error) {
	p, err := job.PropagationParams()
	if err != nil {
		return nil, err
	}
	states, err := job.States()
	if err != nil {
		return nil, err
	}
	out := make([]*batch.Batch, len(states))
	for i, s := range states {
		out[i] = batch.New(p, s)
	}
	return out, nil
}

// wantTUI resolves the --tui flag. auto enables it when stdout is a terminal.
func wantTUI(mode string) (bool, error) {
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto":
		return term.IsTerminal(int(os.Stdout.Fd())), nil
	default:
		return false, fmt.Errorf("invalid --tui %q: want auto, on or off", mode)
	}
}

func openLedger(ctx context.Context, path string) (*ledger.Store, error) {
	store, err := ledger.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := ledger.ApplyMigrations(ctx, store.DB()); err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}
	return store, nil
}

func init() {
	runCmd.Flags().StringVar(&runJobPath, "job", "job.yaml", "Path to the job YAML")
	runCmd.Flags().StringVar(&runSchemaPath, "schema", "", "Path to a CUE schema replacing the embedded one")
	runCmd.Flags().StringVar(&runTUI, "tui", "auto", "Live progress view: auto, on or off")
	runCmd.Flags().StringVar(&runAdminAddr, "admin", "", "Serve progress and metrics on this address (e.g. :8080)")
	runCmd.Flags().StringVar(&runJSONL, "jsonl", "", "Write end states (JSONL) to this file, statuses to <file>.status")
	runCmd.Flags().StringVar(&runLedger, "ledger", "", "Record the run in this SQLite ledger (see the runs command)")
	runCmd.Flags().BoolVar(&runPrintOnly, "print-only", false, "Print to STDOUT even when GreptimeDB is configured")
	runCmd.Flags().StringVar(&runOutput, "output", "json", "STDOUT format: json or color")
}
