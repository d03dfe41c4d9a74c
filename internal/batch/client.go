// Package batch submits propagation jobs to the service, tracks their state and
// assembles their multi-part results.
package batch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"adam-batch/internal/apierr"
	"adam-batch/internal/logging"
	"adam-batch/internal/opm"
	"adam-batch/internal/params"
)

// DefaultPartWorkers bounds concurrent part fetches per result.
const DefaultPartWorkers = 8

// Pair is one entry of a bulk submission.
type Pair struct {
	Propagation params.PropagationParams
	State       params.InitialState
}

// Client talks to the propagation service through a Transport.
type Client struct {
	transport   Transport
	partWorkers int
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithPartWorkers sets the number of parts fetched concurrently.
func WithPartWorkers(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.partWorkers = n
		}
	}
}

// WithClock sets the clock used for OPM creation dates.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient returns a Client using t for every request.
func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{transport: t, partWorkers: DefaultPartWorkers, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Payload builds the creation request body for one job.
func (c *Client) Payload(p params.PropagationParams, s params.InitialState) map[string]any {
	body := map[string]any{
		"start_time":        p.StartTime,
		"end_time":          p.EndTime,
		"step_duration_sec": p.StepSize,
		"propagator_uuid":   p.PropagatorID,
		"project":           nil,
		"opm_string":        opm.Encode(s, c.now),
	}
	if p.ProjectID != "" {
		body["project"] = p.ProjectID
	}
	if p.Description != "" {
		body["description"] = p.Description
	}
	return body
}

// Submit creates a single job.
func (c *Client) Submit(ctx context.Context, p params.PropagationParams, s params.InitialState) (Status, error) {
	const op = "submit batch"
	code, body, err := c.transport.Post(ctx, "/batch", c.Payload(p, s))
	if err != nil {
		return Status{}, fmt.Errorf("%s: %w", op, err)
	}
	if code != http.StatusOK {
		return Status{}, &apierr.RemoteError{Op: op, StatusCode: code, Body: body}
	}
	st, err := ParseStatus(body)
	if err != nil {
		return Status{}, fmt.Errorf("%s: %w", op, err)
	}
	logging.FromContext(ctx).Debug("batch submitted", "batch_id", st.ID, "calc_state", st.CalcState)
	return st, nil
}

// SubmitMany creates all jobs in one bulk request. The returned statuses are in
// input order; the service is trusted to echo them positionally.
func (c *Client) SubmitMany(ctx context.Context, pairs []Pair) ([]Status, error) {
	const op = "submit batches"
	if len(pairs) == 0 {
		return nil, nil
	}
	requests := make([]any, len(pairs))
	for i, pr := range pairs {
		requests[i] = c.Payload(pr.Propagation, pr.State)
	}
	code, body, err := c.transport.Post(ctx, "/batches", map[string]any{"requests": requests})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if code != http.StatusOK {
		return nil, &apierr.RemoteError{Op: op, StatusCode: code, Body: body}
	}
	echoed, _ := body["requests"].([]any)
	if len(echoed) != len(pairs) {
		return nil, &apierr.RemoteError{
			Op: op, StatusCode: code, Body: body,
			Reason: fmt.Sprintf("expected %d results, got %d", len(pairs), len(echoed)),
		}
	}
	out := make([]Status, len(echoed))
	for i, e := range echoed {
		m, _ := e.(map[string]any)
		st, err := ParseStatus(m)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", op, i, err)
		}
		out[i] = st
	}
	logging.FromContext(ctx).Debug("batches submitted", "count", len(out))
	return out, nil
}

// Delete removes a job.
func (c *Client) Delete(ctx context.Context, id string) error {
	const op = "delete batch"
	code, err := c.transport.Delete(ctx, "/batch/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if code != http.StatusNoContent {
		return &apierr.RemoteError{Op: op + " " + id, StatusCode: code}
	}
	return nil
}

// Status fetches the state summary of a job. ok is false when the service does
// not know the id.
func (c *Client) Status(ctx context.Context, id string) (Status, bool, error) {
	const op = "get batch status"
	code, body, err := c.transport.Get(ctx, "/batch/"+url.PathEscape(id))
	if err != nil {
		return Status{}, false, fmt.Errorf("%s %s: %w", op, id, err)
	}
	switch code {
	case http.StatusOK:
	case http.StatusNotFound:
		return Status{}, false, nil
	default:
		return Status{}, false, &apierr.RemoteError{Op: op + " " + id, StatusCode: code, Body: body}
	}
	st, err := ParseStatus(body)
	if err != nil {
		return Status{}, false, fmt.Errorf("%s %s: %w", op, id, err)
	}
	return st, true, nil
}

// Statuses lists the state summaries of every job in a project, keyed by id.
func (c *Client) Statuses(ctx context.Context, projectID string) (map[string]Status, error) {
	const op = "list batch statuses"
	code, body, err := c.transport.Get(ctx, "/batch?project_uuid="+url.QueryEscape(projectID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if code != http.StatusOK {
		return nil, &apierr.RemoteError{Op: op, StatusCode: code, Body: body}
	}
	items, _ := body["items"].([]any)
	out := make(map[string]Status, len(items))
	for i, it := range items {
		m, _ := it.(map[string]any)
		st, err := ParseStatus(m)
		if err != nil {
			return nil, fmt.Errorf("%s: item %d: %w", op, i, err)
		}
		out[st.ID] = st
	}
	return out, nil
}

// Part fetches slot index (zero-based) of a job's output. ok is false when the
// service reports the part as not found.
func (c *Client) Part(ctx context.Context, st Status, index int) (*Part, bool, error) {
	const op = "get batch part"
	path := fmt.Sprintf("/batch/%s/%d", url.PathEscape(st.ID), index+1)
	code, body, err := c.transport.Get(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("%s %s/%d: %w", op, st.ID, index, err)
	}
	switch code {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, &apierr.RemoteError{Op: fmt.Sprintf("%s %s/%d", op, st.ID, index), StatusCode: code, Body: body}
	}
	p, err := ParsePart(body)
	if err != nil {
		return nil, false, fmt.Errorf("%s %s/%d: %w", op, st.ID, index, err)
	}
	return p, true, nil
}

// Results fetches every part slot of a job. ok is false when the job declares
// no parts. Missing parts leave nil slots.
func (c *Client) Results(ctx context.Context, st Status) (*Result, bool, error) {
	log := logging.FromContext(ctx)
	if st.PartsCount < 1 {
		log.Info("no results available", "batch_id", st.ID, "calc_state", st.CalcState)
		return nil, false, nil
	}
	parts := make([]*Part, st.PartsCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.partWorkers)
	for i := range parts {
		g.Go(func() error {
			p, ok, err := c.Part(gctx, st, i)
			if err != nil {
				return err
			}
			if ok {
				parts[i] = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}
	r, err := NewResult(parts)
	if err != nil {
		return nil, false, err
	}
	if missing := r.Missing(); len(missing) > 0 {
		log.Debug("result has missing parts", "batch_id", st.ID, "missing", missing)
	}
	return r, true, nil
}
