package sink

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"
)

const (
	colorReset  = "\x1b[0m"
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
	colorCyan   = "\x1b[36m"
	colorGray   = "\x1b[90m"
)

var stateColors = map[string]string{
	"PENDING":   colorYellow,
	"RUNNING":   colorBlue,
	"COMPLETED": colorGreen,
	"FAILED":    colorRed,
}

// ColorStdoutWriter prints human-friendly, colorized rows. End states are
// buffered into a table printed by Flush.
type ColorStdoutWriter struct {
	out  io.Writer
	mu   sync.Mutex
	ends []EndStateRow
}

// NewColorStdoutWriter creates a ColorStdoutWriter writing to os.Stdout.
func NewColorStdoutWriter() *ColorStdoutWriter {
	return &ColorStdoutWriter{out: os.Stdout}
}

// NewColorWriter creates a ColorStdoutWriter writing to w.
func NewColorWriter(w io.Writer) *ColorStdoutWriter {
	return &ColorStdoutWriter{out: w}
}

// WriteStatus prints one status line.
func (w *ColorStdoutWriter) WriteStatus(r StatusRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := stateColors[r.CalcState]
	if !ok {
		c = colorGray
	}
	_, err := fmt.Fprintf(w.out, "%s[%s]%s %sbatch=%s%s object=%s %s%s%s\n",
		colorGray, r.Timestamp.Format(time.RFC3339), colorReset,
		colorCyan, r.BatchID, colorReset,
		r.ObjectID,
		c, r.CalcState, colorReset)
	return err
}

// WriteEndState buffers an end state until Flush.
func (w *ColorStdoutWriter) WriteEndState(r EndStateRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.ends = append(w.ends, r)
	return nil
}

// Flush prints the buffered end states as a table.
func (w *ColorStdoutWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.ends) == 0 {
		return nil
	}
	fmt.Fprintln(w.out, "\nEnd states (km, km/s):")
	tw := tabwriter.NewWriter(w.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OBJECT\tBATCH\tEPOCH\tX\tY\tZ\tX_DOT\tY_DOT\tZ_DOT")
	for _, r := range w.ends {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%.3f\t%.3f\t%.6f\t%.6f\t%.6f\n",
			r.ObjectID, r.BatchID, r.Epoch, r.X, r.Y, r.Z, r.XDot, r.YDot, r.ZDot)
	}
	w.ends = nil
	return tw.Flush()
}
