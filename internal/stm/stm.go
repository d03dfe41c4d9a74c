// Package stm estimates the state transition matrix of a propagation by
// central differencing around the nominal initial state.
package stm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"adam-batch/internal/batch"
	"adam-batch/internal/logging"
	"adam-batch/internal/params"
	"adam-batch/internal/runner"
)

const (
	// Epsilon is the step size relative to each state component.
	Epsilon = 1.0e-6
	// MinAbsX floors the magnitude used for near-zero components.
	MinAbsX = 1.0e-3
)

// ErrEndStateUnavailable is returned when a propagation finished without a
// usable end state.
var ErrEndStateUnavailable = errors.New("end state vector not available")

// Matrix is dy/dx, with Matrix[i][j] the derivative of output i by input j.
type Matrix [6][6]float64

// PropagateFunc maps initial states to end states, preserving order.
type PropagateFunc func(ctx context.Context, states []params.StateVector) ([]params.StateVector, error)

// Steps returns the perturbation applied to each component of x.
func Steps(x params.StateVector) [6]float64 {
	var h [6]float64
	for i, xi := range x {
		h[i] = math.Max(math.Abs(xi), MinAbsX) * Epsilon
	}
	return h
}

// Inputs lays out the states to propagate: the nominal state, then x+h_i and
// x-h_i for each component i.
func Inputs(x params.StateVector) []params.StateVector {
	h := Steps(x)
	xs := make([]params.StateVector, 0, 1+2*len(x))
	xs = append(xs, x)
	for i := range x {
		plus, minus := x, x
		plus[i] += h[i]
		minus[i] -= h[i]
		xs = append(xs, plus, minus)
	}
	return xs
}

// CentralDifference evaluates f at x and around it and returns f(x) with the
// derivative matrix.
func CentralDifference(ctx context.Context, x params.StateVector, f PropagateFunc) (params.StateVector, Matrix, error) {
	xs := Inputs(x)
	ys, err := f(ctx, xs)
	if err != nil {
		return params.StateVector{}, Matrix{}, err
	}
	if len(ys) != len(xs) {
		return params.StateVector{}, Matrix{}, fmt.Errorf("expected %d end states, got %d", len(xs), len(ys))
	}
	h := Steps(x)
	var m Matrix
	for j := range x {
		plus, minus := ys[1+2*j], ys[2+2*j]
		for i := range plus {
			m[i][j] = (plus[i] - minus[i]) / (2 * h[j])
		}
	}
	return ys[0], m, nil
}

// Module propagates the perturbed states as one batch run.
type Module struct {
	svc  runner.Service
	opts runner.Options
}

func NewModule(svc runner.Service, opts runner.Options) *Module {
	return &Module{svc: svc, opts: opts}
}

func (m *Module) String() string { return "StmPropagationModule" }

// Run returns the nominal end state and the state transition matrix for the
// propagation of s under p.
func (m *Module) Run(ctx context.Context, p params.PropagationParams, s params.InitialState) (params.StateVector, Matrix, error) {
	return CentralDifference(ctx, s.StateVector, func(ctx context.Context, states []params.StateVector) ([]params.StateVector, error) {
		return m.propagate(ctx, p, s, states)
	})
}

func (m *Module) propagate(ctx context.Context, p params.PropagationParams, tmpl params.InitialState, states []params.StateVector) ([]params.StateVector, error) {
	batches := make([]*batch.Batch, len(states))
	for i, sv := range states {
		batches[i] = batch.New(p, tmpl.WithStateVector(sv))
	}
	r, err := runner.New(m.svc, batches, m.opts)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).Info("propagating perturbed states", "run_id", r.ID(), "count", len(states))
	if err := r.Run(ctx); err != nil {
		return nil, err
	}
	out := make([]params.StateVector, len(batches))
	for i, b := range batches {
		res := b.Result()
		if res == nil {
			return nil, fmt.Errorf("batch %s: %w", b.ID(), ErrEndStateUnavailable)
		}
		sv, ok, err := res.EndStateVector()
		if err != nil {
			return nil, fmt.Errorf("batch %s: %w", b.ID(), err)
		}
		if !ok {
			return nil, fmt.Errorf("batch %s (%s): %w", b.ID(), b.CalcState(), ErrEndStateUnavailable)
		}
		out[i] = sv
	}
	return out, nil
}
