package sink

import (
	"encoding/json"
	"os"
)

// FileWriter writes end states and statuses to JSONL files.
type FileWriter struct {
	endFile    *os.File
	statusFile *os.File
	endEnc     *json.Encoder
	statusEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. statusPath may be empty to skip the status log.
func NewFileWriter(endStatePath, statusPath string) (*FileWriter, error) {
	ef, err := os.Create(endStatePath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{endFile: ef, endEnc: json.NewEncoder(ef)}
	if statusPath != "" {
		sf, err := os.Create(statusPath)
		if err != nil {
			ef.Close()
			return nil, err
		}
		fw.statusFile = sf
		fw.statusEnc = json.NewEncoder(sf)
	}
	return fw, nil
}

// WriteEndState logs a single end state row.
func (f *FileWriter) WriteEndState(r EndStateRow) error {
	return f.endEnc.Encode(r)
}

// WriteEndStates logs multiple end state rows.
func (f *FileWriter) WriteEndStates(rows []EndStateRow) error {
	for _, r := range rows {
		if err := f.WriteEndState(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteStatus logs a status row, if enabled.
func (f *FileWriter) WriteStatus(r StatusRow) error {
	if f.statusEnc == nil {
		return nil
	}
	return f.statusEnc.Encode(r)
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.endFile != nil {
		err = f.endFile.Close()
	}
	if f.statusFile != nil {
		if e := f.statusFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
