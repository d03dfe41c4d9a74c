package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"adam-batch/internal/apierr"
	"adam-batch/internal/batch"
	"adam-batch/internal/params"
)

// fakeService derives ids from the object ids and serves the states queued in
// polls, one map per Statuses call.
type fakeService struct {
	mu        sync.Mutex
	chunks    []int
	polls     []map[string]batch.CalcState
	pollCalls int
	parts     int
	resultFor []string
}

func (f *fakeService) SubmitMany(_ context.Context, pairs []batch.Pair) ([]batch.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, len(pairs))
	out := make([]batch.Status, len(pairs))
	for i, p := range pairs {
		// The object id encodes the batch index so positional assignment can be checked.
		out[i] = batch.Status{ID: "b" + p.State.ObjectID, CalcState: batch.StatePending}
	}
	return out, nil
}

func (f *fakeService) Statuses(_ context.Context, _ string) (map[string]batch.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	poll := f.polls[min(f.pollCalls, len(f.polls)-1)]
	f.pollCalls++
	out := map[string]batch.Status{}
	for id, state := range poll {
		out[id] = batch.Status{ID: id, CalcState: state, PartsCount: f.parts}
	}
	return out, nil
}

func (f *fakeService) Results(_ context.Context, st batch.Status) (*batch.Result, bool, error) {
	f.mu.Lock()
	f.resultFor = append(f.resultFor, st.ID)
	f.mu.Unlock()
	if st.PartsCount < 1 {
		return nil, false, nil
	}
	r, err := batch.NewResult([]*batch.Part{{Index: 1, CalcState: batch.StateCompleted, Ephemeris: "0 1000 0 0 0 0 0"}})
	return r, true, err
}

func makeBatches(t *testing.T, n int, project string) []*batch.Batch {
	t.Helper()
	p, err := params.NewPropagationParams(params.PropagationParams{StartTime: "a", EndTime: "b", ProjectID: project})
	if err != nil {
		t.Fatal(err)
	}
	out := make([]*batch.Batch, n)
	for i := range out {
		s, err := params.NewInitialState(params.InitialState{Epoch: "e", ObjectID: fmt.Sprint(i)})
		if err != nil {
			t.Fatal(err)
		}
		out[i] = batch.New(p, s)
	}
	return out
}

func TestNewRequiresSingleProject(t *testing.T) {
	mixed := append(makeBatches(t, 2, "p1"), makeBatches(t, 1, "p2")...)
	if _, err := New(&fakeService{}, mixed, Options{}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := New(&fakeService{}, nil, Options{}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error for empty run, got %v", err)
	}
	if _, err := New(&fakeService{}, makeBatches(t, 1, ""), Options{}); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("expected validation error without project, got %v", err)
	}
}

func TestSubmitChunksPositionally(t *testing.T) {
	svc := &fakeService{}
	batches := makeBatches(t, 7, "p1")
	r, err := New(svc, batches, Options{ChunkSize: 3, SubmitWorkers: 2})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	total := 0
	for _, n := range svc.chunks {
		if n > 3 {
			t.Errorf("chunk of %d exceeds chunk size", n)
		}
		total += n
	}
	if len(svc.chunks) != 3 || total != 7 {
		t.Fatalf("chunks = %v", svc.chunks)
	}
	for i, b := range batches {
		if b.ID() != fmt.Sprintf("b%d", i) {
			t.Errorf("batch %d got id %s", i, b.ID())
		}
	}
	if r.State() != Submitted {
		t.Fatalf("state = %s", r.State())
	}
	if got := len(r.LatestStatuses()[batch.StatePending]); got != 7 {
		t.Fatalf("pending = %d", got)
	}
	if err := r.Submit(context.Background()); !errors.Is(err, ErrAlreadySubmitted) {
		t.Fatalf("resubmit: %v", err)
	}
}

func TestUpdateBeforeSubmit(t *testing.T) {
	r, _ := New(&fakeService{}, makeBatches(t, 1, "p1"), Options{})
	if err := r.Update(context.Background()); !errors.Is(err, ErrNotSubmitted) {
		t.Fatalf("expected ErrNotSubmitted, got %v", err)
	}
}

func TestRunToCompletion(t *testing.T) {
	svc := &fakeService{
		parts: 1,
		polls: []map[string]batch.CalcState{
			{"b0": batch.StateRunning, "b1": batch.StatePending},
			// b1 missing from the listing keeps its previous state.
			{"b0": batch.StateCompleted},
			{"b0": batch.StateCompleted, "b1": batch.StateFailed},
		},
	}
	batches := makeBatches(t, 2, "p1")
	r, err := New(svc, batches, Options{PollInterval: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	var seen []Snapshot
	r.Subscribe(func(s Snapshot) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.State() != Completed {
		t.Fatalf("state = %s", r.State())
	}
	if svc.pollCalls != 3 {
		t.Fatalf("expected 3 polls, got %d", svc.pollCalls)
	}
	latest := r.LatestStatuses()
	if len(latest[batch.StateCompleted]) != 1 || len(latest[batch.StateFailed]) != 1 {
		t.Fatalf("latest = %v", latest)
	}
	if len(svc.resultFor) != 2 {
		t.Fatalf("results fetched for %v", svc.resultFor)
	}
	for _, b := range batches {
		if b.Result() == nil {
			t.Errorf("batch %s has no result", b.ID())
		}
	}

	mu.Lock()
	defer mu.Unlock()
	// submit + three polls
	if len(seen) != 4 {
		t.Fatalf("observer saw %d snapshots", len(seen))
	}
	gap := seen[2]
	if gap.Batches[1].CalcState != batch.StatePending {
		t.Fatalf("missing batch should keep previous state, got %s", gap.Batches[1].CalcState)
	}
	if seen[len(seen)-1].State != "COMPLETED" {
		t.Fatalf("final snapshot state = %s", seen[len(seen)-1].State)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	svc := &fakeService{polls: []map[string]batch.CalcState{{"b0": batch.StateRunning}}}
	r, _ := New(svc, makeBatches(t, 1, "p1"), Options{PollInterval: time.Hour})
	if err := r.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r, _ := New(&fakeService{}, makeBatches(t, 1, "p1"), Options{})
	_ = r.Submit(context.Background())
	s := r.Snapshot()
	s.ByState[batch.StatePending][0] = "mutated"
	s.Batches[0].ID = "mutated"
	again := r.Snapshot()
	if again.ByState[batch.StatePending][0] != "b0" || again.Batches[0].ID != "b0" {
		t.Fatalf("snapshot shares state with runner: %+v", again)
	}
}

func TestSubscribeFromObserver(t *testing.T) {
	svc := &fakeService{polls: []map[string]batch.CalcState{{"b0": batch.StateRunning}}}
	r, _ := New(svc, makeBatches(t, 1, "p1"), Options{})
	var late []Snapshot
	var once sync.Once
	r.Subscribe(func(Snapshot) {
		once.Do(func() {
			r.Subscribe(func(s Snapshot) { late = append(late, s) })
		})
	})
	if err := r.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(late) != 0 {
		t.Fatalf("observer added during a notification saw %d snapshots", len(late))
	}
	if err := r.Update(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(late) != 1 || late[0].Batches[0].CalcState != batch.StateRunning {
		t.Fatalf("late observer saw %+v", late)
	}
}
