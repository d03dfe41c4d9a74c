package params

import (
	"fmt"

	"adam-batch/internal/apierr"
)

// Physical defaults applied when a field is left at zero.
const (
	DefaultOriginator    = "ADAM_User"
	DefaultObjectName    = "dummy"
	DefaultObjectID      = "001"
	DefaultMass          = 1000.0 // kg
	DefaultSolarRadArea  = 20.0   // m^2
	DefaultSolarRadCoeff = 1.0
	DefaultDragArea      = 20.0 // m^2
	DefaultDragCoeff     = 2.2
)

// CovarianceSize is the number of entries in a 6x6 lower triangle.
const CovarianceSize = 21

var stateKeys = map[string]struct{}{
	"epoch":           {},
	"state_vector":    {},
	"originator":      {},
	"object_name":     {},
	"object_id":       {},
	"mass":            {},
	"solar_rad_area":  {},
	"solar_rad_coeff": {},
	"drag_area":       {},
	"drag_coeff":      {},
	"covariance":      {},
	"perturbation":    {},
	"hypercube":       {},
}

// StateVector is [rx, ry, rz, vx, vy, vz] in the caller's units.
type StateVector [6]float64

// Covariance bundles the lower-triangular covariance with the sigma
// perturbation and hypercube propagation type that go with it.
type Covariance struct {
	Matrix       [CovarianceSize]float64 `json:"matrix"`
	Perturbation int                     `json:"perturbation"`
	Hypercube    string                  `json:"hypercube"`
}

// InitialState is the object state and physical parameters at epoch.
type InitialState struct {
	Epoch         string      `json:"epoch"`
	StateVector   StateVector `json:"state_vector"`
	Originator    string      `json:"originator"`
	ObjectName    string      `json:"object_name"`
	ObjectID      string      `json:"object_id"`
	Mass          float64     `json:"mass"`
	SolarRadArea  float64     `json:"solar_rad_area"`
	SolarRadCoeff float64     `json:"solar_rad_coeff"`
	DragArea      float64     `json:"drag_area"`
	DragCoeff     float64     `json:"drag_coeff"`
	Covariance    *Covariance `json:"covariance,omitempty"`
}

// NewInitialState validates s and fills in defaults.
func NewInitialState(s InitialState) (InitialState, error) {
	if s.Epoch == "" {
		return InitialState{}, apierr.Invalid("initial state", "epoch is required")
	}
	if s.Originator == "" {
		s.Originator = DefaultOriginator
	}
	if s.ObjectName == "" {
		s.ObjectName = DefaultObjectName
	}
	if s.ObjectID == "" {
		s.ObjectID = DefaultObjectID
	}
	scalars := []struct {
		name string
		v    *float64
		def  float64
	}{
		{"mass", &s.Mass, DefaultMass},
		{"solar_rad_area", &s.SolarRadArea, DefaultSolarRadArea},
		{"solar_rad_coeff", &s.SolarRadCoeff, DefaultSolarRadCoeff},
		{"drag_area", &s.DragArea, DefaultDragArea},
		{"drag_coeff", &s.DragCoeff, DefaultDragCoeff},
	}
	for _, f := range scalars {
		if *f.v < 0 {
			return InitialState{}, apierr.Invalid("initial state", "%s must be positive, got %v", f.name, *f.v)
		}
		if *f.v == 0 {
			*f.v = f.def
		}
	}
	if s.Covariance != nil {
		if s.Covariance.Hypercube == "" {
			return InitialState{}, apierr.Invalid("initial state", "hypercube is required with covariance")
		}
		if s.Covariance.Perturbation <= 0 {
			return InitialState{}, apierr.Invalid("initial state", "perturbation must be a positive sigma count with covariance, got %d", s.Covariance.Perturbation)
		}
		c := *s.Covariance
		s.Covariance = &c
	}
	return s, nil
}

// InitialStateFromMap builds an InitialState from an untyped document,
// rejecting keys outside the recognized set. covariance, perturbation and
// hypercube must be given together or not at all.
func InitialStateFromMap(m map[string]any) (InitialState, error) {
	if err := apierr.UnknownKeys("initial state", m, stateKeys); err != nil {
		return InitialState{}, err
	}
	var s InitialState
	var err error

	raw, ok := m["state_vector"]
	if !ok || raw == nil {
		return InitialState{}, apierr.Invalid("initial state", "state_vector is required")
	}
	vec, err := asFloats(raw)
	if err != nil {
		return InitialState{}, apierr.Invalid("initial state", "state_vector: %v", err)
	}
	if len(vec) != len(s.StateVector) {
		return InitialState{}, apierr.Invalid("initial state", "state_vector must have 6 elements, got %d", len(vec))
	}
	copy(s.StateVector[:], vec)

	strs := []struct {
		key string
		dst *string
	}{
		{"epoch", &s.Epoch},
		{"originator", &s.Originator},
		{"object_name", &s.ObjectName},
		{"object_id", &s.ObjectID},
	}
	for _, f := range strs {
		if *f.dst, err = optString(m, f.key); err != nil {
			return InitialState{}, apierr.Invalid("initial state", "%v", err)
		}
	}
	nums := []struct {
		key string
		dst *float64
	}{
		{"mass", &s.Mass},
		{"solar_rad_area", &s.SolarRadArea},
		{"solar_rad_coeff", &s.SolarRadCoeff},
		{"drag_area", &s.DragArea},
		{"drag_coeff", &s.DragCoeff},
	}
	for _, f := range nums {
		if *f.dst, err = optFloat(m, f.key); err != nil {
			return InitialState{}, apierr.Invalid("initial state", "%v", err)
		}
	}

	if s.Covariance, err = covarianceFromMap(m); err != nil {
		return InitialState{}, err
	}
	return NewInitialState(s)
}

func covarianceFromMap(m map[string]any) (*Covariance, error) {
	present := 0
	for _, k := range []string{"covariance", "perturbation", "hypercube"} {
		if v, ok := m[k]; ok && v != nil {
			present++
		}
	}
	switch present {
	case 0:
		return nil, nil
	case 3:
	default:
		return nil, apierr.Invalid("initial state", "covariance, perturbation and hypercube must be given together")
	}

	vals, err := asFloats(m["covariance"])
	if err != nil {
		return nil, apierr.Invalid("initial state", "covariance: %v", err)
	}
	if len(vals) != CovarianceSize {
		return nil, apierr.Invalid("initial state", "covariance must have %d elements, got %d", CovarianceSize, len(vals))
	}
	c := &Covariance{}
	copy(c.Matrix[:], vals)
	if c.Perturbation, err = asInt(m["perturbation"]); err != nil {
		return nil, apierr.Invalid("initial state", "perturbation: %v", err)
	}
	if c.Hypercube, err = optString(m, "hypercube"); err != nil {
		return nil, apierr.Invalid("initial state", "%v", err)
	}
	return c, nil
}

// WithStateVector returns a copy of s with v as its state vector.
func (s InitialState) WithStateVector(v StateVector) InitialState {
	s.StateVector = v
	return s
}

func (s InitialState) String() string {
	return fmt.Sprintf("InitialState %s/%s at %s %v", s.ObjectName, s.ObjectID, s.Epoch, s.StateVector)
}
