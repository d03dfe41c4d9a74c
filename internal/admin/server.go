// Package admin serves the progress of a running job over HTTP.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"adam-batch/internal/batch"
	"adam-batch/internal/metrics"
	"adam-batch/internal/runner"
)

// SnapshotSource is satisfied by *runner.Runner.
type SnapshotSource interface {
	Snapshot() runner.Snapshot
}

type Server struct {
	src     SnapshotSource
	tpl     *template.Template
	log     *slog.Logger
	started time.Time
	now     func() time.Time
}

//go:embed templates/index.html
var content embed.FS

const refreshSeconds = 5

func NewServer(src SnapshotSource, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{src: src, tpl: tpl, log: log, started: time.Now(), now: time.Now}
}

// Handler returns the routes of the admin server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /statuses", s.handleStatuses)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Start listens on addr until ctx is done. ready, if set, is called once the
// listener is bound.
func (s *Server) Start(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if ready != nil {
		ready(ln.Addr())
	}
	s.log.Info("admin server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type stateCount struct {
	Name  batch.CalcState
	Count int
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.src.Snapshot()
	counts := snap.Counts()
	data := struct {
		Snapshot runner.Snapshot
		States   []stateCount
		Uptime   string
		Refresh  int
	}{
		Snapshot: snap,
		Uptime:   strings.TrimSpace(humanize.RelTime(s.started, s.now(), "", "")),
		Refresh:  refreshSeconds,
	}
	for _, st := range []batch.CalcState{batch.StatePending, batch.StateRunning, batch.StateCompleted, batch.StateFailed} {
		data.States = append(data.States, stateCount{Name: st, Count: counts[string(st)]})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Error("render index", "err", err)
	}
}

func (s *Server) handleStatuses(w http.ResponseWriter, r *http.Request) {
	snap := s.src.Snapshot()
	if state := r.URL.Query().Get("calc_state"); state != "" {
		filtered := snap.Batches[:0:0]
		for _, e := range snap.Batches {
			if string(e.CalcState) == state {
				filtered = append(filtered, e)
			}
		}
		snap.Batches = filtered
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.src.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"run_id":  snap.RunID,
		"state":   snap.State,
		"batches": len(snap.Batches),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
