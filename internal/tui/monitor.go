// Package tui shows the progress of a run in a bubbletea program.
package tui

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"adam-batch/internal/batch"
	"adam-batch/internal/runner"
	"adam-batch/internal/sink"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// logMsg carries a log line for the viewport.
type logMsg struct{ line string }

// snapshotMsg carries the latest runner snapshot.
type snapshotMsg struct{ runner.Snapshot }

// adminMsg reports admin server status.
type adminMsg struct{ active bool }

// Monitor receives runner snapshots and end states and forwards them to the
// program.
type Monitor struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool

	mu   sync.Mutex
	seen map[int]batch.CalcState
	buf  []byte
}

// New starts a full screen program for the run of project.
func New(project string) *Monitor {
	w := &Monitor{done: make(chan struct{}), seen: make(map[int]batch.CalcState)}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newModel(project), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		// quitting the program stops the run like ctrl+c would
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// Observe is a runner observer. Besides the snapshot it logs one line per
// batch whose state changed.
func (w *Monitor) Observe(s runner.Snapshot) {
	w.mu.Lock()
	var lines []string
	for _, e := range s.Batches {
		if e.ID == "" {
			continue
		}
		prev, ok := w.seen[e.Index]
		if ok && prev == e.CalcState {
			continue
		}
		w.seen[e.Index] = e.CalcState
		if !ok {
			lines = append(lines, fmt.Sprintf("%s submitted %s object=%s %s",
				stamp(s.Time), e.ID, e.ObjectID, stateStyle(e.CalcState).Render(string(e.CalcState))))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s %s -> %s",
			stamp(s.Time), e.ID, prev, stateStyle(e.CalcState).Render(string(e.CalcState))))
	}
	w.mu.Unlock()

	w.program.Send(snapshotMsg{s})
	for _, l := range lines {
		w.program.Send(logMsg{line: l})
	}
}

// WriteEndState implements sink.EndStateWriter.
func (w *Monitor) WriteEndState(r sink.EndStateRow) error {
	w.program.Send(logMsg{line: fmt.Sprintf("%s END %s r=(%.3f, %.3f, %.3f) km v=(%.6f, %.6f, %.6f) km/s",
		stamp(r.Timestamp), r.BatchID, r.X, r.Y, r.Z, r.XDot, r.YDot, r.ZDot)})
	return nil
}

// WriteEndStates outputs multiple end states.
func (w *Monitor) WriteEndStates(rows []sink.EndStateRow) error {
	for _, r := range rows {
		_ = w.WriteEndState(r)
	}
	return nil
}

// Write implements io.Writer so a logger can print into the viewport while the
// program owns the terminal. Partial lines are held until completed.
func (w *Monitor) Write(p []byte) (int, error) {
	w.mu.Lock()
	w.buf = append(w.buf, p...)
	var lines []string
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	w.mu.Unlock()
	for _, l := range lines {
		w.program.Send(logMsg{line: l})
	}
	return len(p), nil
}

var _ io.Writer = (*Monitor)(nil)

// SetAdminStatus updates the admin server indicator.
func (w *Monitor) SetAdminStatus(active bool) {
	w.program.Send(adminMsg{active: active})
}

// Close shuts down the program and waits for the terminal to be restored.
func (w *Monitor) Close() error {
	w.sendSignal.Store(false)
	if w.program != nil {
		w.program.Send(tea.Quit())
	}
	if w.done != nil {
		<-w.done
	}
	return nil
}

func stamp(t time.Time) string {
	return grayStyle.Render("[" + t.UTC().Format(time.RFC3339) + "]")
}
