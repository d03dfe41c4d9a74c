package sink

import (
	"encoding/json"
	"io"
	"os"
	"time"
)

// ReplayLog replays end state rows from r to writer. A speed >0 reproduces the
// original spacing between rows, accelerated by speed. If speed <= 0, no
// artificial delay is inserted.
func ReplayLog(r io.Reader, writer EndStateWriter, speed float64) (int, error) {
	dec := json.NewDecoder(r)
	var prev time.Time
	n := 0
	for {
		var row EndStateRow
		if err := dec.Decode(&row); err != nil {
			if err == io.EOF {
				return n, nil
			}
			return n, err
		}
		if !prev.IsZero() && speed > 0 {
			diff := row.Timestamp.Sub(prev)
			if speed != 1 {
				diff = time.Duration(float64(diff) / speed)
			}
			if diff > 0 {
				time.Sleep(diff)
			}
		}
		if err := writer.WriteEndState(row); err != nil {
			return n, err
		}
		n++
		prev = row.Timestamp
	}
}

// ReplayLogFile opens a file and replays its end state rows.
func ReplayLogFile(path string, writer EndStateWriter, speed float64) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return ReplayLog(f, writer, speed)
}
