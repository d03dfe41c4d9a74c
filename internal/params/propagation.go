// Package params holds the caller-side description of a propagation job: the
// propagation window and the initial object state.
package params

import (
	"fmt"

	"adam-batch/internal/apierr"
)

const (
	// DefaultStepSize is one day in seconds.
	DefaultStepSize = 86400
	// DefaultPropagatorID selects the Sun, all planets and the Moon as point
	// masses (no asteroids).
	DefaultPropagatorID = "00000000-0000-0000-0000-000000000001"
)

var propagationKeys = map[string]struct{}{
	"start_time":    {},
	"end_time":      {},
	"step_size":     {},
	"propagator_id": {},
	"project_id":    {},
	"description":   {},
}

// PropagationParams describes the time window and propagator configuration of a
// job. Timestamps are opaque tokens; no calendar validation happens here.
type PropagationParams struct {
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	StepSize     int    `json:"step_size"`
	PropagatorID string `json:"propagator_id"`
	ProjectID    string `json:"project_id,omitempty"`
	Description  string `json:"description,omitempty"`
}

// NewPropagationParams validates p and fills in defaults.
func NewPropagationParams(p PropagationParams) (PropagationParams, error) {
	if p.StartTime == "" {
		return PropagationParams{}, apierr.Invalid("propagation", "start_time is required")
	}
	if p.EndTime == "" {
		return PropagationParams{}, apierr.Invalid("propagation", "end_time is required")
	}
	if p.StepSize < 0 {
		return PropagationParams{}, apierr.Invalid("propagation", "step_size must be positive, got %d", p.StepSize)
	}
	if p.StepSize == 0 {
		p.StepSize = DefaultStepSize
	}
	if p.PropagatorID == "" {
		p.PropagatorID = DefaultPropagatorID
	}
	return p, nil
}

// PropagationParamsFromMap builds PropagationParams from an untyped document,
// rejecting keys outside the recognized set.
func PropagationParamsFromMap(m map[string]any) (PropagationParams, error) {
	if err := apierr.UnknownKeys("propagation", m, propagationKeys); err != nil {
		return PropagationParams{}, err
	}
	var p PropagationParams
	var err error
	fields := []struct {
		key string
		dst *string
	}{
		{"start_time", &p.StartTime},
		{"end_time", &p.EndTime},
		{"propagator_id", &p.PropagatorID},
		{"project_id", &p.ProjectID},
		{"description", &p.Description},
	}
	for _, f := range fields {
		if *f.dst, err = optString(m, f.key); err != nil {
			return PropagationParams{}, apierr.Invalid("propagation", "%v", err)
		}
	}
	if v, ok := m["step_size"]; ok && v != nil {
		if p.StepSize, err = asInt(v); err != nil {
			return PropagationParams{}, apierr.Invalid("propagation", "step_size: %v", err)
		}
	}
	return NewPropagationParams(p)
}

func (p PropagationParams) String() string {
	return fmt.Sprintf("Batch params [%s, %s, %d, %s, %s, %s]",
		p.StartTime, p.EndTime, p.StepSize, p.PropagatorID, p.ProjectID, p.Description)
}
