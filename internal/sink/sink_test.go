package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"

	"adam-batch/internal/batch"
	"adam-batch/internal/logging"
	"adam-batch/internal/params"
	"adam-batch/internal/runner"
)

type mockGreptimeClient struct {
	table *table.Table
	err   error
}

func (m *mockGreptimeClient) Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	if len(tables) > 0 {
		m.table = tables[0]
	}
	return &gpb.GreptimeResponse{}, m.err
}

var ts = time.Unix(1507075200, 0).UTC()

func endRow(id string) EndStateRow {
	return EndStateRow{RunID: "r1", BatchID: id, ObjectID: "o-" + id, Epoch: "2017-10-11T00:00:00Z",
		X: 1, Y: 2, Z: 3, XDot: 0.001, YDot: 0.002, ZDot: 0.003, Timestamp: ts}
}

func TestGreptimeWriterEndStates(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, endTable: "batch_end_states", log: logging.Discard()}

	if err := w.WriteEndStates([]EndStateRow{endRow("b1"), endRow("b2")}); err != nil {
		t.Fatalf("WriteEndStates: %v", err)
	}
	if m.table == nil {
		t.Fatalf("expected table to be captured")
	}
	rows := m.table.GetRows()
	if len(rows.Schema) != 11 {
		t.Fatalf("unexpected schema length: %d", len(rows.Schema))
	}
	if rows.Schema[0].Datatype != gpb.ColumnDataType_STRING || rows.Schema[4].Datatype != gpb.ColumnDataType_FLOAT64 {
		t.Fatalf("unexpected column types: %v %v", rows.Schema[0].Datatype, rows.Schema[4].Datatype)
	}
	if len(rows.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows.Rows))
	}
	if got := rows.Rows[1].Values[1].GetStringValue(); got != "b2" {
		t.Fatalf("batch_id = %s", got)
	}
	if got := rows.Rows[0].Values[9].GetF64Value(); got != 0.003 {
		t.Fatalf("z_dot = %v", got)
	}
}

func TestGreptimeWriterStatuses(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, statusTable: defaultStatusTable, log: logging.Discard()}
	if err := w.WriteStatus(StatusRow{RunID: "r1", BatchID: "b1", CalcState: "RUNNING", Timestamp: ts}); err != nil {
		t.Fatalf("WriteStatus: %v", err)
	}
	if got := m.table.GetRows().Rows[0].Values[3].GetStringValue(); got != "RUNNING" {
		t.Fatalf("calc_state = %s", got)
	}
}

func TestGreptimeWriterError(t *testing.T) {
	m := &mockGreptimeClient{err: errors.New("unavailable")}
	w := &GreptimeDBWriter{client: m, endTable: "t", log: logging.Discard()}
	if err := w.WriteEndState(endRow("b1")); err == nil {
		t.Fatalf("expected write error")
	}
	if err := w.WriteEndStates(nil); err != nil {
		t.Fatalf("empty write should be a no-op: %v", err)
	}
}

func TestSplitEndpoint(t *testing.T) {
	cases := []struct {
		in   string
		host string
		port int
		err  bool
	}{
		{"localhost:4001", "localhost", 4001, false},
		{"greptime", "greptime", defaultGreptimePort, false},
		{"greptime:abc", "", 0, true},
	}
	for _, tc := range cases {
		host, port, err := splitEndpoint(tc.in)
		if (err != nil) != tc.err || host != tc.host || port != tc.port {
			t.Errorf("splitEndpoint(%q) = %q, %d, %v", tc.in, host, port, err)
		}
	}
}

func TestFileWriter(t *testing.T) {
	dir := t.TempDir()
	endPath := filepath.Join(dir, "end.jsonl")
	statusPath := filepath.Join(dir, "status.jsonl")
	fw, err := NewFileWriter(endPath, statusPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := fw.WriteEndStates([]EndStateRow{endRow("b1"), endRow("b2")}); err != nil {
		t.Fatal(err)
	}
	if err := fw.WriteStatus(StatusRow{BatchID: "b1", CalcState: "COMPLETED", Timestamp: ts}); err != nil {
		t.Fatal(err)
	}
	if err := fw.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(endPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	var got []EndStateRow
	for sc.Scan() {
		var r EndStateRow
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 || got[1].BatchID != "b2" || got[1].ZDot != 0.003 || !got[1].Timestamp.Equal(ts) {
		t.Fatalf("unexpected end states: %+v", got)
	}
	b, _ := os.ReadFile(statusPath)
	if !strings.Contains(string(b), `"calc_state":"COMPLETED"`) {
		t.Fatalf("unexpected status log: %s", b)
	}
}

func TestFileWriterWithoutStatusLog(t *testing.T) {
	fw, err := NewFileWriter(filepath.Join(t.TempDir(), "end.jsonl"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer fw.Close()
	if err := fw.WriteStatus(StatusRow{BatchID: "b1"}); err != nil {
		t.Fatalf("disabled status log should be a no-op: %v", err)
	}
}

type collectWriter struct {
	statuses []StatusRow
	ends     []EndStateRow
	batches  int
}

func (c *collectWriter) WriteStatus(r StatusRow) error {
	c.statuses = append(c.statuses, r)
	return nil
}

func (c *collectWriter) WriteEndState(r EndStateRow) error {
	c.ends = append(c.ends, r)
	return nil
}

type bulkWriter struct{ collectWriter }

func (b *bulkWriter) WriteEndStates(rows []EndStateRow) error {
	b.batches++
	b.ends = append(b.ends, rows...)
	return nil
}

func TestMultiWriterFanOut(t *testing.T) {
	plain, bulk := &collectWriter{}, &bulkWriter{}
	mw := NewMultiWriter([]StatusWriter{plain}, []EndStateWriter{plain, bulk})
	if err := mw.WriteEndStates([]EndStateRow{endRow("b1"), endRow("b2")}); err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteStatuses([]StatusRow{{BatchID: "b1"}}); err != nil {
		t.Fatal(err)
	}
	if len(plain.ends) != 2 || len(bulk.ends) != 2 || bulk.batches != 1 {
		t.Fatalf("fan out: plain=%d bulk=%d (%d calls)", len(plain.ends), len(bulk.ends), bulk.batches)
	}
	if len(plain.statuses) != 1 || len(bulk.statuses) != 0 {
		t.Fatalf("statuses should only reach status writers")
	}
}

func TestReplayLog(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, id := range []string{"b1", "b2", "b3"} {
		if err := enc.Encode(endRow(id)); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	cw := &collectWriter{}
	n, err := ReplayLog(&buf, cw, 0)
	if err != nil {
		t.Fatalf("ReplayLog: %v", err)
	}
	if n != 3 || len(cw.ends) != 3 || cw.ends[2].BatchID != "b3" {
		t.Fatalf("replayed %d rows: %+v", n, cw.ends)
	}
	if _, err := ReplayLog(strings.NewReader("{not json"), cw, 0); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	_ = w.WriteStatus(StatusRow{BatchID: "b1", CalcState: "PENDING"})
	_ = w.WriteEndState(endRow("b1"))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"x_dot":0.001`) {
		t.Fatalf("unexpected output: %q", lines)
	}
}

func TestRowsFromRun(t *testing.T) {
	p, _ := params.NewPropagationParams(params.PropagationParams{StartTime: "a", EndTime: "2017-10-11T00:00:00Z", ProjectID: "p"})
	s, _ := params.NewInitialState(params.InitialState{Epoch: "e", ObjectID: "obj"})
	done := batch.New(p, s)
	done.SetStatus(batch.Status{ID: "b1", CalcState: batch.StateCompleted})
	res, _ := batch.NewResult([]*batch.Part{{Index: 1, CalcState: batch.StateCompleted, Ephemeris: "0 1000 2000 3000 1 2 3"}})
	done.SetResult(res)
	failed := batch.New(p, s)
	failed.SetStatus(batch.Status{ID: "b2", CalcState: batch.StateFailed})
	headerOnly := batch.New(p, s)
	headerOnly.SetStatus(batch.Status{ID: "b3", CalcState: batch.StateCompleted})
	empty, _ := batch.NewResult([]*batch.Part{{Index: 1, CalcState: batch.StateCompleted, Ephemeris: "BEGIN Ephemeris\nEND Ephemeris"}})
	headerOnly.SetResult(empty)
	pending := batch.New(p, s)

	rows, skipped := EndStateRows("r1", []*batch.Batch{done, failed, headerOnly}, ts)
	if len(rows) != 1 || rows[0].BatchID != "b1" || rows[0].Epoch != "2017-10-11T00:00:00Z" || rows[0].ObjectID != "obj" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if len(skipped) != 2 || skipped[0].BatchID != "b2" || skipped[0].Err != nil {
		t.Fatalf("skipped = %+v", skipped)
	}
	if skipped[1].BatchID != "b3" || !errors.Is(skipped[1].Err, batch.ErrNoStateRecords) {
		t.Fatalf("unreadable result should carry its error, got %+v", skipped[1])
	}

	snap := runner.Snapshot{RunID: "r1", Time: ts, Batches: []runner.Entry{
		{Index: 0, ID: "b1", ObjectID: "obj", CalcState: batch.StateCompleted},
		{Index: 1, ID: pending.ID()},
	}}
	st := StatusRows(snap)
	if len(st) != 1 || st[0].CalcState != "COMPLETED" || !st[0].Timestamp.Equal(ts) {
		t.Fatalf("unexpected status rows %+v", st)
	}
}

func TestStatusTracker(t *testing.T) {
	tr := NewStatusTracker()
	snap := runner.Snapshot{RunID: "r1", Time: ts, Batches: []runner.Entry{
		{Index: 0, ID: "b1", CalcState: batch.StatePending},
		{Index: 1, ID: "b2", CalcState: batch.StatePending},
		{Index: 2},
	}}
	if got := tr.Changed(snap); len(got) != 2 {
		t.Fatalf("first snapshot: %+v", got)
	}
	if got := tr.Changed(snap); len(got) != 0 {
		t.Fatalf("unchanged snapshot produced rows: %+v", got)
	}
	snap.Batches[1].CalcState = batch.StateRunning
	got := tr.Changed(snap)
	if len(got) != 1 || got[0].BatchID != "b2" || got[0].CalcState != "RUNNING" {
		t.Fatalf("unexpected change rows: %+v", got)
	}
}

func TestColorWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewColorWriter(&buf)
	mw := NewMultiWriter([]StatusWriter{w}, []EndStateWriter{w})
	if err := mw.WriteStatus(StatusRow{BatchID: "b1", ObjectID: "obj", CalcState: "FAILED", Timestamp: ts}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), colorRed+"FAILED") {
		t.Fatalf("status line not colored: %q", buf.String())
	}
	if err := mw.WriteEndStates([]EndStateRow{endRow("b1"), endRow("b2")}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "End states") {
		t.Fatalf("end states should be buffered until Flush")
	}
	if err := mw.Flush(); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if strings.Count(out, "o-b") != 2 || !strings.Contains(out, "0.003000") {
		t.Fatalf("unexpected table:\n%s", out)
	}
	buf.Reset()
	if err := Flush(w); err != nil || buf.Len() != 0 {
		t.Fatalf("second flush should print nothing: %q %v", buf.String(), err)
	}
}
