package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"adam-batch/internal/batch"
	"adam-batch/internal/runner"
)

func newStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "ledger", "runs.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store, ctx
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	store, ctx := newStore(t)
	if err := ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	var n int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != len(migrations) {
		t.Fatalf("schema_migrations rows = %d", n)
	}
}

func TestRecordRunAndSnapshot(t *testing.T) {
	store, ctx := newStore(t)
	base := time.Date(2017, 10, 4, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }

	if err := store.RecordRun(ctx, Run{ID: "r1", ProjectID: "p", JobPath: "job.yaml", State: "INITIALIZED", BatchCount: 2}); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	snap := runner.Snapshot{RunID: "r1", State: "SUBMITTED", Batches: []runner.Entry{
		{Index: 0, ID: "b1", ObjectID: "o1", CalcState: batch.StatePending},
		{Index: 1, ID: "b2", ObjectID: "o2", CalcState: batch.StateRunning},
	}}
	if err := store.RecordSnapshot(ctx, snap); err != nil {
		t.Fatalf("RecordSnapshot: %v", err)
	}
	snap.State = "COMPLETED"
	snap.Batches[1].CalcState = batch.StateCompleted
	if err := store.RecordSnapshot(ctx, snap); err != nil {
		t.Fatalf("RecordSnapshot again: %v", err)
	}

	runs, err := store.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].State != "COMPLETED" || runs[0].JobPath != "job.yaml" || !runs[0].CreatedAt.Equal(base) {
		t.Fatalf("unexpected runs: %+v", runs)
	}
	got, err := store.Batches(ctx, "r1")
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	if len(got) != 2 || got[0].BatchID != "b1" || got[1].CalcState != "COMPLETED" || got[1].ObjectID != "o2" {
		t.Fatalf("unexpected batches: %+v", got)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	store, ctx := newStore(t)
	base := time.Date(2017, 10, 4, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		created := base.Add(time.Duration(i) * 500 * time.Millisecond)
		if err := store.RecordRun(ctx, Run{ID: id, ProjectID: "p", State: "INITIALIZED", CreatedAt: created}); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := store.Runs(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Fatalf("unexpected order: %+v", runs)
	}
}

func TestNotFound(t *testing.T) {
	store, ctx := newStore(t)
	if err := store.UpdateStatus(ctx, "missing", "COMPLETED"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateStatus err = %v", err)
	}
	if _, err := store.Batches(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Batches err = %v", err)
	}
	if err := store.RecordRun(ctx, Run{ID: "r1", ProjectID: "p", State: "INITIALIZED"}); err != nil {
		t.Fatal(err)
	}
	got, err := store.Batches(ctx, "r1")
	if err != nil || len(got) != 0 {
		t.Fatalf("empty run: %v %v", got, err)
	}
}

func TestRejectsUnknownState(t *testing.T) {
	store, ctx := newStore(t)
	if err := store.RecordRun(ctx, Run{ID: "r1", ProjectID: "p", State: "BOGUS"}); err == nil {
		t.Fatalf("expected check constraint failure")
	}
}

func TestBatchesRequireRun(t *testing.T) {
	store, ctx := newStore(t)
	err := store.RecordBatches(ctx, "ghost", []runner.Entry{{Index: 0, ID: "b1"}})
	if err == nil {
		t.Fatalf("expected foreign key failure")
	}
}
