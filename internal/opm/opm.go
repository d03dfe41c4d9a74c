// Package opm renders an initial state as a CCSDS Orbit Parameter Message in
// the KEY = value form the propagation service consumes, and reads such a
// message back.
package opm

import (
	"strconv"
	"strings"
	"time"

	"adam-batch/internal/params"
)

// Fixed header values.
const (
	Version    = "2.0"
	CenterName = "SUN"
	RefFrame   = "ITRF-97"
	TimeSystem = "UTC"

	creationLayout = "2006-01-02T15:04:05.000000"
)

// StateKeys are the state vector keys in emission order.
var StateKeys = [6]string{"X", "Y", "Z", "X_DOT", "Y_DOT", "Z_DOT"}

// CovarianceKeys are the lower-triangular covariance keys in emission order.
var CovarianceKeys = [params.CovarianceSize]string{
	"CX_X",
	"CY_X", "CY_Y",
	"CZ_X", "CZ_Y", "CZ_Z",
	"CX_DOT_X", "CX_DOT_Y", "CX_DOT_Z", "CX_DOT_X_DOT",
	"CY_DOT_X", "CY_DOT_Y", "CY_DOT_Z", "CY_DOT_X_DOT", "CY_DOT_Y_DOT",
	"CZ_DOT_X", "CZ_DOT_Y", "CZ_DOT_Z", "CZ_DOT_X_DOT", "CZ_DOT_Y_DOT", "CZ_DOT_Z_DOT",
}

// Keys for the ADAM-specific covariance companions.
const (
	PerturbationKey = "USER_DEFINED_ADAM_INITIAL_PERTURBATION"
	HypercubeKey    = "USER_DEFINED_ADAM_HYPERCUBE"
)

// Encode renders s. The creation date comes from now, so two calls differ only
// in that line.
func Encode(s params.InitialState, now func() time.Time) string {
	if now == nil {
		now = time.Now
	}
	lines := make([]string, 0, 44)
	kv := func(k, v string) { lines = append(lines, k+" = "+v) }

	kv("CCSDS_OPM_VERS", Version)
	kv("CREATION_DATE", now().UTC().Format(creationLayout))
	kv("ORIGINATOR", s.Originator)
	lines = append(lines, "COMMENT Cartesian coordinate system")
	kv("OBJECT_NAME", s.ObjectName)
	kv("OBJECT_ID", s.ObjectID)
	kv("CENTER_NAME", CenterName)
	kv("REF_FRAME", RefFrame)
	kv("TIME_SYSTEM", TimeSystem)
	kv("EPOCH", s.Epoch)
	for i, k := range StateKeys {
		kv(k, formatFloat(s.StateVector[i]))
	}
	kv("MASS", formatFloat(s.Mass))
	kv("SOLAR_RAD_AREA", formatFloat(s.SolarRadArea))
	kv("SOLAR_RAD_COEFF", formatFloat(s.SolarRadCoeff))
	kv("DRAG_AREA", formatFloat(s.DragArea))
	kv("DRAG_COEFF", formatFloat(s.DragCoeff))

	if c := s.Covariance; c != nil {
		for i, k := range CovarianceKeys {
			kv(k, formatFloat(c.Matrix[i]))
		}
		kv(PerturbationKey, strconv.Itoa(c.Perturbation)+" [sigma]")
		kv(HypercubeKey, c.Hypercube)
	}
	return strings.Join(lines, "\n")
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
