package batch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"adam-batch/internal/apierr"
	"adam-batch/internal/params"
)

// MetersToKilometers converts ephemeris positions (m) and velocities (m/s) to
// km and km/s.
const MetersToKilometers = 1e-3

// minStateTokens is the token count of a time-tagged state record.
const minStateTokens = 7

// ErrNoStateRecords is returned when a completed part carries no state records.
var ErrNoStateRecords = errors.New("ephemeris contains no state records")

// Part is one segment of a batch's propagation output.
type Part struct {
	Index     int       `json:"part_index"`
	CalcState CalcState `json:"calc_state"`
	Ephemeris string    `json:"stk_ephemeris,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (p Part) String() string { return fmt.Sprintf("PropagationPart [%s]", p.CalcState) }

// ParsePart reads a part object as returned by /batch/{id}/{n}.
func ParsePart(m map[string]any) (*Part, error) {
	if m == nil {
		return nil, apierr.Invalid("part", "empty response")
	}
	if v, ok := m["part_index"]; !ok || v == nil {
		return nil, apierr.Invalid("part", "part_index is required")
	}
	idx, err := optInt(m, "part_index")
	if err != nil {
		return nil, apierr.Invalid("part", "%v", err)
	}
	state, _ := m["calc_state"].(string)
	if state == "" {
		return nil, apierr.Invalid("part", "calc_state is required for part %d", idx)
	}
	p := &Part{Index: idx, CalcState: CalcState(state)}
	p.Ephemeris, _ = m["stk_ephemeris"].(string)
	p.Error, _ = m["error"].(string)
	return p, nil
}

// Result is the ordered set of part slots of one batch. A nil slot is a part
// the service has not produced (or reported as not found).
type Result struct {
	parts []*Part
}

// NewResult wraps parts. At least one slot is required, even if it is empty.
func NewResult(parts []*Part) (*Result, error) {
	if len(parts) < 1 {
		return nil, apierr.Invalid("result", "must provide at least one part")
	}
	cp := make([]*Part, len(parts))
	copy(cp, parts)
	return &Result{parts: cp}, nil
}

// Parts returns the slots in order.
func (r *Result) Parts() []*Part {
	out := make([]*Part, len(r.parts))
	copy(out, r.parts)
	return out
}

// Len returns the number of slots.
func (r *Result) Len() int { return len(r.parts) }

// Part returns slot i, zero-based.
func (r *Result) Part(i int) (*Part, bool) {
	if i < 0 || i >= len(r.parts) || r.parts[i] == nil {
		return nil, false
	}
	return r.parts[i], true
}

// Missing returns the zero-based indexes of absent slots.
func (r *Result) Missing() []int {
	var idx []int
	for i, p := range r.parts {
		if p == nil {
			idx = append(idx, i)
		}
	}
	return idx
}

func (r *Result) String() string {
	return fmt.Sprintf("Propagation results with %d parts", len(r.parts))
}

// EndStateVector returns the last state record of the final part in km and
// km/s. ok is false while the final part is absent or not COMPLETED.
func (r *Result) EndStateVector() (sv params.StateVector, ok bool, err error) {
	if r == nil || len(r.parts) == 0 {
		return params.StateVector{}, false, nil
	}
	last := r.parts[len(r.parts)-1]
	if last == nil || last.CalcState != StateCompleted {
		return params.StateVector{}, false, nil
	}
	records, err := parseRecords(last.Ephemeris)
	if err != nil {
		return params.StateVector{}, false, fmt.Errorf("part %d: %w", last.Index, err)
	}
	if len(records) == 0 {
		return params.StateVector{}, false, fmt.Errorf("part %d: %w", last.Index, ErrNoStateRecords)
	}
	return records[len(records)-1].State, true, nil
}

// Record is one time-tagged state of an ephemeris, already scaled to km.
type Record struct {
	Time  string
	State params.StateVector
}

// EphemerisRecords returns the state records of every completed part, in slot
// order. Absent or unfinished parts are skipped.
func (r *Result) EphemerisRecords() ([]Record, error) {
	var out []Record
	for _, p := range r.parts {
		if p == nil || p.CalcState != StateCompleted {
			continue
		}
		recs, err := parseRecords(p.Ephemeris)
		if err != nil {
			return nil, fmt.Errorf("part %d: %w", p.Index, err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

// parseRecords scans an STK ephemeris blob. Lines with at least seven tokens are
// state records: a time token followed by six components; extra tokens are
// ignored.
func parseRecords(ephem string) ([]Record, error) {
	var out []Record
	for n, line := range strings.Split(ephem, "\n") {
		tokens := strings.Fields(line)
		if len(tokens) < minStateTokens {
			continue
		}
		rec := Record{Time: tokens[0]}
		for i := 0; i < len(rec.State); i++ {
			f, err := strconv.ParseFloat(tokens[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("ephemeris line %d: %w", n+1, err)
			}
			rec.State[i] = f * MetersToKilometers
		}
		out = append(out, rec)
	}
	return out, nil
}
