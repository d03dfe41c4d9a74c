// Package sink writes batch statuses and end states to stdout, JSONL files and
// GreptimeDB.
package sink

import (
	"sync"
	"time"

	"adam-batch/internal/batch"
	"adam-batch/internal/runner"
)

// StatusRow is one observation of a batch's calc state.
type StatusRow struct {
	RunID     string    `json:"run_id"`
	BatchID   string    `json:"batch_id"`
	ObjectID  string    `json:"object_id"`
	CalcState string    `json:"calc_state"`
	Timestamp time.Time `json:"ts"`
}

// EndStateRow is the final state vector of one completed batch, in km and km/s.
type EndStateRow struct {
	RunID     string    `json:"run_id"`
	BatchID   string    `json:"batch_id"`
	ObjectID  string    `json:"object_id"`
	Epoch     string    `json:"epoch"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
	XDot      float64   `json:"x_dot"`
	YDot      float64   `json:"y_dot"`
	ZDot      float64   `json:"z_dot"`
	Timestamp time.Time `json:"ts"`
}

// StatusWriter receives status observations.
type StatusWriter interface {
	WriteStatus(StatusRow) error
}

// EndStateWriter receives end states.
type EndStateWriter interface {
	WriteEndState(EndStateRow) error
}

// Optional: writers may accept rows in bulk.
type batchStatusWriter interface {
	WriteStatuses([]StatusRow) error
}

type batchEndStateWriter interface {
	WriteEndStates([]EndStateRow) error
}

type flusher interface {
	Flush() error
}

// StatusRows flattens a runner snapshot. Batches without an id are skipped.
func StatusRows(s runner.Snapshot) []StatusRow {
	rows := make([]StatusRow, 0, len(s.Batches))
	for _, e := range s.Batches {
		if e.ID == "" {
			continue
		}
		rows = append(rows, StatusRow{
			RunID:     s.RunID,
			BatchID:   e.ID,
			ObjectID:  e.ObjectID,
			CalcState: string(e.CalcState),
			Timestamp: s.Time,
		})
	}
	return rows
}

// StatusTracker reduces successive snapshots to the rows of batches whose
// calc state changed.
type StatusTracker struct {
	mu   sync.Mutex
	last map[string]string
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{last: make(map[string]string)}
}

// Changed returns the rows of s that differ from the previous call.
func (t *StatusTracker) Changed(s runner.Snapshot) []StatusRow {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []StatusRow
	for _, r := range StatusRows(s) {
		if t.last[r.BatchID] == r.CalcState {
			continue
		}
		t.last[r.BatchID] = r.CalcState
		out = append(out, r)
	}
	return out
}

// Skipped names a batch that produced no end state row. Err is set when the
// batch finished but its result could not be read.
type Skipped struct {
	BatchID string
	Err     error
}

// EndStateRows extracts the end state of every batch that has one. The other
// batches are returned in skipped.
func EndStateRows(runID string, batches []*batch.Batch, ts time.Time) (rows []EndStateRow, skipped []Skipped) {
	for _, b := range batches {
		res := b.Result()
		if res == nil {
			skipped = append(skipped, Skipped{BatchID: b.ID()})
			continue
		}
		sv, ok, err := res.EndStateVector()
		if err != nil || !ok {
			skipped = append(skipped, Skipped{BatchID: b.ID(), Err: err})
			continue
		}
		rows = append(rows, EndStateRow{
			RunID:     runID,
			BatchID:   b.ID(),
			ObjectID:  b.InitialState().ObjectID,
			Epoch:     b.PropagationParams().EndTime,
			X:         sv[0],
			Y:         sv[1],
			Z:         sv[2],
			XDot:      sv[3],
			YDot:      sv[4],
			ZDot:      sv[5],
			Timestamp: ts,
		})
	}
	return rows, skipped
}
