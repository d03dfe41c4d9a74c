// Package ledger records runs and the batches they created in a local SQLite
// database, so ids survive the process that submitted them.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"adam-batch/internal/runner"
)

var ErrNotFound = errors.New("not found")

// Run is one recorded invocation of the runner.
type Run struct {
	ID         string    `json:"run_id"`
	ProjectID  string    `json:"project_id"`
	JobPath    string    `json:"job_path,omitempty"`
	State      string    `json:"state"`
	BatchCount int       `json:"batch_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Batch is the last known state of one batch of a run.
type Batch struct {
	RunID     string    `json:"run_id"`
	Position  int       `json:"position"`
	BatchID   string    `json:"batch_id"`
	ObjectID  string    `json:"object_id,omitempty"`
	CalcState string    `json:"calc_state"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// RecordRun inserts r or refreshes its state and batch count.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	now := s.now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs(run_id, project_id, job_path, state, batch_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
	state=excluded.state,
	batch_count=excluded.batch_count,
	updated_at=excluded.updated_at
`, r.ID, r.ProjectID, r.JobPath, r.State, r.BatchCount, ts(r.CreatedAt), ts(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// UpdateStatus sets the lifecycle state of a recorded run.
func (s *Store) UpdateStatus(ctx context.Context, runID, state string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET state = ?, updated_at = ? WHERE run_id = ?`,
		state, ts(s.now()), runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// RecordBatches upserts the entries of a run in one transaction.
func (s *Store) RecordBatches(ctx context.Context, runID string, entries []runner.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record batches: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO batches(run_id, position, batch_id, object_id, calc_state, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id, position) DO UPDATE SET
	batch_id=excluded.batch_id,
	calc_state=excluded.calc_state,
	updated_at=excluded.updated_at
`)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("prepare record batches: %w", err)
	}
	defer stmt.Close() //nolint:errcheck
	now := ts(s.now())
	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, runID, e.Index, e.ID, e.ObjectID, string(e.CalcState), now); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record batch %d: %w", e.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record batches: %w", err)
	}
	return nil
}

// RecordSnapshot stores the run state and every batch of snap.
func (s *Store) RecordSnapshot(ctx context.Context, snap runner.Snapshot) error {
	if err := s.UpdateStatus(ctx, snap.RunID, snap.State); err != nil {
		return err
	}
	return s.RecordBatches(ctx, snap.RunID, snap.Batches)
}

// Runs lists recorded runs, newest first. limit <= 0 returns all of them.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, project_id, job_path, state, batch_count, created_at, updated_at
FROM runs ORDER BY created_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Run
	for rows.Next() {
		var r Run
		var created, updated string
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.JobPath, &r.State, &r.BatchCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.CreatedAt, err = parseTS(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		if r.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Batches returns the batches of runID in submission order.
func (s *Store) Batches(ctx context.Context, runID string) ([]Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, position, batch_id, object_id, calc_state, updated_at
FROM batches WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []Batch
	for rows.Next() {
		var b Batch
		var updated string
		if err := rows.Scan(&b.RunID, &b.Position, &b.BatchID, &b.ObjectID, &b.CalcState, &updated); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if b.UpdatedAt, err = parseTS(updated); err != nil {
			return nil, fmt.Errorf("parse updated_at: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, runID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("check run: %w", err)
		}
	}
	return out, nil
}

// tsLayout is fixed width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func ts(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(tsLayout, s)
}
