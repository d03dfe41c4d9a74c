package batch

import (
	"fmt"

	"adam-batch/internal/params"
)

// Batch pairs the parameters of one submission with the latest status and
// result retrieved for it.
type Batch struct {
	propagation params.PropagationParams
	state       params.InitialState
	status      *Status
	result      *Result
}

// New creates a batch that has not been submitted yet.
func New(p params.PropagationParams, s params.InitialState) *Batch {
	return &Batch{propagation: p, state: s}
}

func (b *Batch) PropagationParams() params.PropagationParams { return b.propagation }
func (b *Batch) InitialState() params.InitialState           { return b.state }

// Status returns the latest status, or nil before submission.
func (b *Batch) Status() *Status { return b.status }

// SetStatus replaces the held status.
func (b *Batch) SetStatus(st Status) { b.status = &st }

// Result returns the retrieved result, or nil.
func (b *Batch) Result() *Result { return b.result }

// SetResult replaces the held result.
func (b *Batch) SetResult(r *Result) { b.result = r }

// ID is the service identifier, empty before submission.
func (b *Batch) ID() string {
	if b.status == nil {
		return ""
	}
	return b.status.ID
}

// CalcState is the latest known state, empty before submission.
func (b *Batch) CalcState() CalcState {
	if b.status == nil {
		return ""
	}
	return b.status.CalcState
}

func (b *Batch) String() string {
	return fmt.Sprintf("Batch %s, %s", b.ID(), b.CalcState())
}
