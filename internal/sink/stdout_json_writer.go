package sink

import (
	"encoding/json"
	"io"
	"os"
)

// JSONStdoutWriter prints rows as JSON lines.
type JSONStdoutWriter struct {
	enc *json.Encoder
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return NewJSONWriter(os.Stdout)
}

// NewJSONWriter creates a JSONStdoutWriter writing to w.
func NewJSONWriter(w io.Writer) *JSONStdoutWriter {
	return &JSONStdoutWriter{enc: json.NewEncoder(w)}
}

// WriteStatus outputs a status row.
func (w *JSONStdoutWriter) WriteStatus(r StatusRow) error {
	return w.enc.Encode(r)
}

// WriteEndState outputs an end state row.
func (w *JSONStdoutWriter) WriteEndState(r EndStateRow) error {
	return w.enc.Encode(r)
}
