// Package runner drives a set of batches through submission, polling and
// result retrieval, exposing a snapshot of their states while it runs.
package runner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"adam-batch/internal/apierr"
	"adam-batch/internal/batch"
	"adam-batch/internal/logging"
	"adam-batch/internal/metrics"
)

// Service is the subset of batch.Client the runner needs.
type Service interface {
	SubmitMany(ctx context.Context, pairs []batch.Pair) ([]batch.Status, error)
	Statuses(ctx context.Context, projectID string) (map[string]batch.Status, error)
	Results(ctx context.Context, st batch.Status) (*batch.Result, bool, error)
}

// State is the lifecycle of a whole run.
type State int

const (
	Initialized State = iota + 1
	Submitted
	Completed
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "INITIALIZED"
	case Submitted:
		return "SUBMITTED"
	case Completed:
		return "COMPLETED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Defaults follow the service limits: a bulk call of 500 batches takes about
// 20 seconds server side and calls time out around 60.
const (
	DefaultChunkSize     = 500
	DefaultSubmitWorkers = 10
	DefaultResultWorkers = 5
	DefaultPollInterval  = 5 * time.Second
)

// ErrAlreadySubmitted is returned by Submit on a run that left Initialized.
var ErrAlreadySubmitted = errors.New("runs already submitted, cannot resubmit")

// ErrNotSubmitted is returned by Update before Submit.
var ErrNotSubmitted = errors.New("runs not yet submitted, no state to retrieve")

// Options tunes concurrency and polling. Zero values take the defaults.
type Options struct {
	ChunkSize     int
	SubmitWorkers int
	ResultWorkers int
	PollInterval  time.Duration
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.SubmitWorkers <= 0 {
		o.SubmitWorkers = DefaultSubmitWorkers
	}
	if o.ResultWorkers <= 0 {
		o.ResultWorkers = DefaultResultWorkers
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Entry is one batch as seen in a snapshot.
type Entry struct {
	Index     int             `json:"index"`
	ID        string          `json:"id"`
	ObjectID  string          `json:"object_id"`
	CalcState batch.CalcState `json:"calc_state"`
}

// Snapshot is a consistent copy of the run's progress.
type Snapshot struct {
	RunID     string                       `json:"run_id"`
	ProjectID string                       `json:"project_id"`
	State     string                       `json:"state"`
	ByState   map[batch.CalcState][]string `json:"by_state"`
	Batches   []Entry                      `json:"batches"`
	Time      time.Time                    `json:"time"`
}

// Counts returns the number of batches per calc state.
func (s Snapshot) Counts() map[string]int {
	out := make(map[string]int, len(s.ByState))
	for k, ids := range s.ByState {
		out[string(k)] = len(ids)
	}
	return out
}

// Runner manages the lifetime of a set of batches belonging to one project.
// Only LatestStatuses, Snapshot and Subscribe are safe to call while Run,
// Wait or Update is in progress.
type Runner struct {
	id      string
	svc     Service
	batches []*batch.Batch
	project string
	opts    Options
	state   State
	now     func() time.Time

	mu        sync.Mutex
	snapshot  Snapshot
	observers []func(Snapshot)
}

// New validates that all batches share one project and returns an Initialized
// runner.
func New(svc Service, batches []*batch.Batch, opts Options) (*Runner, error) {
	if len(batches) == 0 {
		return nil, apierr.Invalid("runner", "no batches to run")
	}
	project := batches[0].PropagationParams().ProjectID
	for _, b := range batches[1:] {
		if b.PropagationParams().ProjectID != project {
			return nil, apierr.Invalid("runner", "all batches must belong to the same project")
		}
	}
	if project == "" {
		return nil, apierr.Invalid("runner", "project_id is required to track batches")
	}
	r := &Runner{
		id:      uuid.NewString(),
		svc:     svc,
		batches: batches,
		project: project,
		opts:    opts.withDefaults(),
		state:   Initialized,
		now:     time.Now,
	}
	r.refresh()
	return r, nil
}

func (r *Runner) ID() string              { return r.id }
func (r *Runner) ProjectID() string       { return r.project }
func (r *Runner) State() State            { return r.state }
func (r *Runner) Batches() []*batch.Batch { return r.batches }

func (r *Runner) String() string {
	return fmt.Sprintf("Batch run manager [%s: %d batches]", r.state, len(r.batches))
}

// Subscribe registers fn to receive every new snapshot. fn runs on the
// goroutine that produced the snapshot and must not block.
func (r *Runner) Subscribe(fn func(Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// LatestStatuses returns batch ids grouped by calc state.
func (r *Runner) LatestStatuses() map[batch.CalcState][]string {
	return r.Snapshot().ByState
}

// Snapshot returns a copy of the latest progress.
func (r *Runner) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copySnapshot(r.snapshot)
}

func copySnapshot(s Snapshot) Snapshot {
	by := make(map[batch.CalcState][]string, len(s.ByState))
	for k, v := range s.ByState {
		by[k] = append([]string(nil), v...)
	}
	s.ByState = by
	s.Batches = append([]Entry(nil), s.Batches...)
	return s
}

// refresh rebuilds the cached snapshot from the batches and notifies observers.
func (r *Runner) refresh() {
	snap := Snapshot{
		RunID:     r.id,
		ProjectID: r.project,
		State:     r.state.String(),
		ByState: map[batch.CalcState][]string{
			batch.StatePending:   {},
			batch.StateRunning:   {},
			batch.StateCompleted: {},
			batch.StateFailed:    {},
		},
		Batches: make([]Entry, len(r.batches)),
		Time:    r.now().UTC(),
	}
	for i, b := range r.batches {
		e := Entry{Index: i, ID: b.ID(), ObjectID: b.InitialState().ObjectID, CalcState: b.CalcState()}
		snap.Batches[i] = e
		if e.ID != "" {
			snap.ByState[e.CalcState] = append(snap.ByState[e.CalcState], e.ID)
		}
	}
	for _, ids := range snap.ByState {
		sort.Strings(ids)
	}

	r.mu.Lock()
	r.snapshot = snap
	observers := slices.Clone(r.observers)
	r.mu.Unlock()

	metrics.SetStateCounts(snap.Counts())
	for _, fn := range observers {
		fn(copySnapshot(snap))
	}
}

// Submit creates every batch on the service in chunks, several chunks at a
// time, and stores the returned statuses positionally.
func (r *Runner) Submit(ctx context.Context) error {
	if r.state != Initialized {
		return ErrAlreadySubmitted
	}
	defer r.phase(ctx, "submit", fmt.Sprintf("Submitting %d runs.", len(r.batches)))()

	chunks := (len(r.batches) + r.opts.ChunkSize - 1) / r.opts.ChunkSize
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(chunks, r.opts.SubmitWorkers))
	for start := 0; start < len(r.batches); start += r.opts.ChunkSize {
		runs := r.batches[start:min(start+r.opts.ChunkSize, len(r.batches))]
		g.Go(func() error {
			pairs := make([]batch.Pair, len(runs))
			for i, b := range runs {
				pairs[i] = batch.Pair{Propagation: b.PropagationParams(), State: b.InitialState()}
			}
			statuses, err := r.svc.SubmitMany(gctx, pairs)
			if err != nil {
				return fmt.Errorf("submit chunk at %d: %w", start, err)
			}
			for i, st := range statuses {
				runs[i].SetStatus(st)
			}
			metrics.AddSubmitted(len(statuses))
			return nil
		})
	}
	err := g.Wait()
	r.refresh()
	if err != nil {
		return err
	}
	r.state = Submitted
	return nil
}

// Update polls the project listing once. A batch absent from the listing keeps
// its previous status. The run becomes Completed once every batch is terminal.
func (r *Runner) Update(ctx context.Context) error {
	switch r.state {
	case Initialized:
		return ErrNotSubmitted
	case Completed:
		return nil
	}
	statuses, err := r.svc.Statuses(ctx, r.project)
	if err != nil {
		return err
	}
	complete := true
	for _, b := range r.batches {
		if st, ok := statuses[b.ID()]; ok {
			b.SetStatus(st)
		} else {
			logging.FromContext(ctx).Debug("batch missing from listing", "batch_id", b.ID())
		}
		if !b.CalcState().Terminal() {
			complete = false
		}
	}
	if complete {
		r.state = Completed
	}
	r.refresh()
	return nil
}

// Wait polls until every batch is terminal or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	defer r.phase(ctx, "wait", "Running.")()
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	for {
		if err := r.Update(ctx); err != nil {
			return err
		}
		if r.state == Completed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FetchResults retrieves the results of every batch. A batch without parts is
// left without a result.
func (r *Runner) FetchResults(ctx context.Context) error {
	defer r.phase(ctx, "results", "Retrieving propagation results.")()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.ResultWorkers)
	for _, b := range r.batches {
		st := b.Status()
		if st == nil {
			continue
		}
		g.Go(func() error {
			res, ok, err := r.svc.Results(gctx, *st)
			if err != nil {
				return fmt.Errorf("results of %s: %w", st.ID, err)
			}
			if ok {
				b.SetResult(res)
			}
			return nil
		})
	}
	return g.Wait()
}

// Run submits, waits for completion and fetches results.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Submit(ctx); err != nil {
		return err
	}
	if err := r.Wait(ctx); err != nil {
		return err
	}
	return r.FetchResults(ctx)
}

// phase logs the start of a phase and returns a func logging its duration.
func (r *Runner) phase(ctx context.Context, name, msg string) func() {
	log := logging.FromContext(ctx).With("run_id", r.id, "phase", name)
	log.Info(msg)
	start := r.now()
	return func() {
		d := r.now().Sub(start)
		metrics.ObservePhase(name, d)
		log.Info("phase finished", "duration", d)
	}
}
