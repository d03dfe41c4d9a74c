package batch

import (
	"fmt"
	"math"
	"strconv"

	"adam-batch/internal/apierr"
)

// CalcState is the server-reported lifecycle tag of a batch or part. The set is
// open: unknown tags are carried through unchanged.
type CalcState string

const (
	StatePending   CalcState = "PENDING"
	StateRunning   CalcState = "RUNNING"
	StateCompleted CalcState = "COMPLETED"
	StateFailed    CalcState = "FAILED"
)

// Terminal reports whether no further transitions are expected.
func (s CalcState) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s CalcState) String() string { return string(s) }

// Status is the state summary the service reports for one batch.
type Status struct {
	ID           string    `json:"uuid"`
	CalcState    CalcState `json:"calc_state"`
	StepSize     int       `json:"step_duration_sec,omitempty"`
	CreateTime   string    `json:"create_time,omitempty"`
	ExecuteTime  string    `json:"execute_time,omitempty"`
	CompleteTime string    `json:"complete_time,omitempty"`
	ProjectID    string    `json:"project,omitempty"`
	PartsCount   int       `json:"parts_count,omitempty"`
}

func (s Status) String() string {
	return fmt.Sprintf("State summary for %s: %s", s.ID, s.CalcState)
}

// ParseStatus reads a status object as returned by /batch/{id} or the project
// listing. uuid (or id) and calc_state are required.
func ParseStatus(m map[string]any) (Status, error) {
	if m == nil {
		return Status{}, apierr.Invalid("status", "empty response")
	}
	var st Status
	var err error
	id, _ := m["uuid"].(string)
	if id == "" {
		id, _ = m["id"].(string)
	}
	if id == "" {
		return Status{}, apierr.Invalid("status", "uuid is required")
	}
	st.ID = id
	state, _ := m["calc_state"].(string)
	if state == "" {
		return Status{}, apierr.Invalid("status", "calc_state is required for %s", id)
	}
	st.CalcState = CalcState(state)

	st.CreateTime, _ = m["create_time"].(string)
	st.ExecuteTime, _ = m["execute_time"].(string)
	st.CompleteTime, _ = m["complete_time"].(string)
	st.ProjectID, _ = m["project"].(string)
	if st.StepSize, err = optInt(m, "step_duration_sec"); err != nil {
		return Status{}, apierr.Invalid("status", "%v", err)
	}
	if st.PartsCount, err = optInt(m, "parts_count"); err != nil {
		return Status{}, apierr.Invalid("status", "%v", err)
	}
	return st, nil
}

func optInt(m map[string]any, key string) (int, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%s: expected an integer, got %v", key, n)
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		// The service encodes int64 fields as strings in some responses.
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%s: expected an integer, got %q", key, n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%s: expected an integer, got %T", key, v)
	}
}
