package admin

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"adam-batch/internal/batch"
	"adam-batch/internal/logging"
	"adam-batch/internal/runner"
)

type staticSource struct{ snap runner.Snapshot }

func (s staticSource) Snapshot() runner.Snapshot { return s.snap }

func testServer() *Server {
	snap := runner.Snapshot{
		RunID:     "r1",
		ProjectID: "p1",
		State:     "SUBMITTED",
		Time:      time.Unix(1507075200, 0).UTC(),
		ByState: map[batch.CalcState][]string{
			batch.StateRunning:   {"b1"},
			batch.StateCompleted: {"b2"},
		},
		Batches: []runner.Entry{
			{Index: 0, ID: "b1", ObjectID: "o1", CalcState: batch.StateRunning},
			{Index: 1, ID: "b2", ObjectID: "o2", CalcState: batch.StateCompleted},
		},
	}
	return NewServer(staticSource{snap}, logging.Discard())
}

func TestHandleStatuses(t *testing.T) {
	h := testServer().Handler()

	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"all", "", []string{"b1", "b2"}},
		{"filtered", "?calc_state=COMPLETED", []string{"b2"}},
		{"no match", "?calc_state=FAILED", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/statuses"+tc.query, nil))
			if w.Code != http.StatusOK {
				t.Fatalf("status %d", w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("content type %q", ct)
			}
			var snap runner.Snapshot
			if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if snap.RunID != "r1" || len(snap.Batches) != len(tc.want) {
				t.Fatalf("unexpected snapshot %+v", snap)
			}
			for i, id := range tc.want {
				if snap.Batches[i].ID != id {
					t.Fatalf("batch %d = %s, want %s", i, snap.Batches[i].ID, id)
				}
			}
		})
	}
}

func TestHandleHealthAndIndex(t *testing.T) {
	h := testServer().Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["batches"] != float64(2) {
		t.Fatalf("unexpected health %v", body)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	page := w.Body.String()
	for _, want := range []string{"Run r1", "COMPLETED 1", "RUNNING 1", "<td>o2</td>"} {
		if !strings.Contains(page, want) {
			t.Fatalf("index missing %q:\n%s", want, page)
		}
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/statuses", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /statuses = %d", w.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	w := httptest.NewRecorder()
	testServer().Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Fatalf("metrics not served: %d", w.Code)
	}
}

func TestStartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan net.Addr, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- testServer().Start(ctx, "127.0.0.1:0", func(a net.Addr) { addrCh <- a })
	}()
	addr := <-addrCh

	resp, err := http.Get("http://" + addr.String() + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
