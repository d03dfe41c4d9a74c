package sink

// MultiWriter fans status and end state rows out to multiple writers.
type MultiWriter struct {
	statusWriters []StatusWriter
	endWriters    []EndStateWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(sws []StatusWriter, ews []EndStateWriter) *MultiWriter {
	return &MultiWriter{statusWriters: sws, endWriters: ews}
}

// WriteStatus sends a status row to all status writers.
func (mw *MultiWriter) WriteStatus(r StatusRow) error {
	for _, w := range mw.statusWriters {
		if err := w.WriteStatus(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteStatuses sends multiple status rows to all status writers, using batch if supported.
func (mw *MultiWriter) WriteStatuses(rows []StatusRow) error {
	for _, w := range mw.statusWriters {
		if bw, ok := w.(batchStatusWriter); ok {
			if err := bw.WriteStatuses(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteStatus(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteEndState sends an end state row to all end state writers.
func (mw *MultiWriter) WriteEndState(r EndStateRow) error {
	for _, w := range mw.endWriters {
		if err := w.WriteEndState(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteEndStates sends multiple end states to all end state writers, using batch if supported.
func (mw *MultiWriter) WriteEndStates(rows []EndStateRow) error {
	for _, w := range mw.endWriters {
		if bw, ok := w.(batchEndStateWriter); ok {
			if err := bw.WriteEndStates(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteEndState(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush flushes every writer that buffers its output.
func (mw *MultiWriter) Flush() error {
	seen := make(map[flusher]bool)
	for _, w := range mw.endWriters {
		if err := flushOnce(w, seen); err != nil {
			return err
		}
	}
	for _, w := range mw.statusWriters {
		if err := flushOnce(w, seen); err != nil {
			return err
		}
	}
	return nil
}

func flushOnce(w any, seen map[flusher]bool) error {
	f, ok := w.(flusher)
	if !ok || seen[f] {
		return nil
	}
	seen[f] = true
	return f.Flush()
}

// Flush flushes w if it buffers its output.
func Flush(w any) error {
	if f, ok := w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
