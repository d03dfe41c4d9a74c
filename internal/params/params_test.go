package params

import (
	"errors"
	"strings"
	"testing"

	"adam-batch/internal/apierr"
)

func TestPropagationParamsDefaults(t *testing.T) {
	p, err := NewPropagationParams(PropagationParams{StartTime: "AAA", EndTime: "BBB"})
	if err != nil {
		t.Fatalf("NewPropagationParams: %v", err)
	}
	if p.StepSize != DefaultStepSize {
		t.Errorf("step size = %d, want %d", p.StepSize, DefaultStepSize)
	}
	if p.PropagatorID != DefaultPropagatorID {
		t.Errorf("propagator = %q, want default", p.PropagatorID)
	}
	if p.ProjectID != "" || p.Description != "" {
		t.Errorf("optional fields should stay empty: %+v", p)
	}
}

func TestPropagationParamsFromMap(t *testing.T) {
	p, err := PropagationParamsFromMap(map[string]any{
		"start_time":    "AAA",
		"end_time":      "BBB",
		"step_size":     3600,
		"propagator_id": "prop",
		"project_id":    "proj",
		"description":   "desc",
	})
	if err != nil {
		t.Fatalf("PropagationParamsFromMap: %v", err)
	}
	want := PropagationParams{StartTime: "AAA", EndTime: "BBB", StepSize: 3600, PropagatorID: "prop", ProjectID: "proj", Description: "desc"}
	if p != want {
		t.Fatalf("got %+v, want %+v", p, want)
	}
}

func TestPropagationParamsValidation(t *testing.T) {
	cases := []struct {
		name string
		in   map[string]any
		msg  string
	}{
		{"unknown key", map[string]any{"start_time": "a", "end_time": "b", "unsupported": 1}, "unsupported"},
		{"unknown key only", map[string]any{"propagator_uuid": "x"}, "propagator_uuid"},
		{"missing start", map[string]any{"end_time": "b"}, "start_time"},
		{"missing end", map[string]any{"start_time": "a"}, "end_time"},
		{"negative step", map[string]any{"start_time": "a", "end_time": "b", "step_size": -1}, "step_size"},
		{"fractional step", map[string]any{"start_time": "a", "end_time": "b", "step_size": 1.5}, "step_size"},
		{"wrong type", map[string]any{"start_time": 5, "end_time": "b"}, "start_time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := PropagationParamsFromMap(tc.in)
			if !errors.Is(err, apierr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.msg)
			}
		})
	}
}

func validStateMap() map[string]any {
	return map[string]any{
		"epoch":        "2017-10-04T00:00:00Z",
		"state_vector": []any{130347560.13690618, -74407287.6018632, -35247598.541470632, 23.935241263310683, 27.146279819258538, 10.346605942591514},
	}
}

func TestInitialStateDefaults(t *testing.T) {
	s, err := InitialStateFromMap(validStateMap())
	if err != nil {
		t.Fatalf("InitialStateFromMap: %v", err)
	}
	if s.Originator != DefaultOriginator || s.ObjectName != DefaultObjectName || s.ObjectID != DefaultObjectID {
		t.Errorf("unexpected text defaults: %+v", s)
	}
	if s.Mass != 1000 || s.SolarRadArea != 20 || s.SolarRadCoeff != 1 || s.DragArea != 20 || s.DragCoeff != 2.2 {
		t.Errorf("unexpected physical defaults: %+v", s)
	}
	if s.Covariance != nil {
		t.Errorf("covariance should be absent")
	}
	if s.StateVector[0] != 130347560.13690618 || s.StateVector[5] != 10.346605942591514 {
		t.Errorf("state vector not copied: %v", s.StateVector)
	}
}

func TestInitialStateCovarianceTriple(t *testing.T) {
	cov := make([]any, CovarianceSize)
	for i := range cov {
		cov[i] = float64(i + 1)
	}
	m := validStateMap()
	m["covariance"] = cov
	m["perturbation"] = 3
	m["hypercube"] = "FACES"
	s, err := InitialStateFromMap(m)
	if err != nil {
		t.Fatalf("InitialStateFromMap: %v", err)
	}
	if s.Covariance == nil || s.Covariance.Matrix[20] != 21 || s.Covariance.Perturbation != 3 || s.Covariance.Hypercube != "FACES" {
		t.Fatalf("unexpected covariance: %+v", s.Covariance)
	}
}

func TestInitialStateValidation(t *testing.T) {
	cov := make([]any, CovarianceSize)
	for i := range cov {
		cov[i] = 0.0
	}
	with := func(kv map[string]any) map[string]any {
		m := validStateMap()
		for k, v := range kv {
			m[k] = v
		}
		return m
	}
	cases := []struct {
		name string
		in   map[string]any
	}{
		{"unknown key", with(map[string]any{"unsupported_param": 1})},
		{"missing epoch", map[string]any{"state_vector": []any{1, 2, 3, 4, 5, 6}}},
		{"missing state", map[string]any{"epoch": "x"}},
		{"short state", with(map[string]any{"state_vector": []any{1, 2, 3}})},
		{"non numeric state", with(map[string]any{"state_vector": []any{1, 2, 3, 4, 5, "x"}})},
		{"negative mass", with(map[string]any{"mass": -3})},
		{"covariance alone", with(map[string]any{"covariance": cov})},
		{"perturbation alone", with(map[string]any{"perturbation": 3})},
		{"missing hypercube", with(map[string]any{"covariance": cov, "perturbation": 3})},
		{"short covariance", with(map[string]any{"covariance": []any{1.0}, "perturbation": 3, "hypercube": "FACES"})},
		{"zero perturbation", with(map[string]any{"covariance": cov, "perturbation": 0, "hypercube": "FACES"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := InitialStateFromMap(tc.in); !errors.Is(err, apierr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestNewInitialStateCovarianceNeedsAllParts(t *testing.T) {
	base := InitialState{Epoch: "e", StateVector: StateVector{1, 2, 3, 4, 5, 6}}
	cases := []struct {
		name string
		cov  Covariance
	}{
		{"no hypercube", Covariance{Perturbation: 3}},
		{"no perturbation", Covariance{Hypercube: "FACES"}},
		{"negative perturbation", Covariance{Perturbation: -1, Hypercube: "FACES"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			s.Covariance = &tc.cov
			if _, err := NewInitialState(s); !errors.Is(err, apierr.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
	s := base
	s.Covariance = &Covariance{Perturbation: 3, Hypercube: "FACES"}
	if _, err := NewInitialState(s); err != nil {
		t.Fatalf("complete covariance rejected: %v", err)
	}
}

func TestWithStateVectorLeavesOriginal(t *testing.T) {
	s, err := NewInitialState(InitialState{Epoch: "e", StateVector: StateVector{1, 2, 3, 4, 5, 6}})
	if err != nil {
		t.Fatalf("NewInitialState: %v", err)
	}
	moved := s.WithStateVector(StateVector{6, 5, 4, 3, 2, 1})
	if s.StateVector[0] != 1 || moved.StateVector[0] != 6 {
		t.Fatalf("copy semantics broken: %v %v", s.StateVector, moved.StateVector)
	}
}
