package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"

	"adam-batch/internal/apierr"
	"adam-batch/internal/batch"
	"adam-batch/internal/logging"
	"adam-batch/internal/metrics"
)

// Authorizing adds the service token to every request: as a query parameter for
// GET and DELETE, and as a body field for POST.
type Authorizing struct {
	next  batch.Transport
	token string
}

func NewAuthorizing(next batch.Transport, token string) *Authorizing {
	return &Authorizing{next: next, token: token}
}

func (a *Authorizing) Get(ctx context.Context, path string) (int, map[string]any, error) {
	return a.next.Get(ctx, a.withToken(path))
}

func (a *Authorizing) Post(ctx context.Context, path string, body map[string]any) (int, map[string]any, error) {
	cp := make(map[string]any, len(body)+1)
	for k, v := range body {
		cp[k] = v
	}
	cp["token"] = a.token
	return a.next.Post(ctx, path, cp)
}

func (a *Authorizing) Delete(ctx context.Context, path string) (int, error) {
	return a.next.Delete(ctx, a.withToken(path))
}

func (a *Authorizing) withToken(path string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	q.Set("token", a.token)
	u.RawQuery = q.Encode()
	return u.String()
}

// DefaultRetryCodes are the status codes the service returns transiently:
// expired sessions surface as 403 or 503, and 502 happens periodically.
var DefaultRetryCodes = []int{http.StatusForbidden, http.StatusBadGateway, http.StatusServiceUnavailable}

// Retrying repeats a request while it returns one of the retry codes, up to
// Tries attempts. The last response is returned as is.
type Retrying struct {
	next    batch.Transport
	tries   int
	backoff time.Duration
	codes   map[int]struct{}
}

// NewRetrying wraps next. tries < 1 means 3; backoff doubles after each attempt.
func NewRetrying(next batch.Transport, tries int, backoff time.Duration, codes ...int) *Retrying {
	if tries < 1 {
		tries = 3
	}
	if len(codes) == 0 {
		codes = DefaultRetryCodes
	}
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return &Retrying{next: next, tries: tries, backoff: backoff, codes: set}
}

func (r *Retrying) Get(ctx context.Context, path string) (int, map[string]any, error) {
	var body map[string]any
	code, err := r.retry(ctx, http.MethodGet, path, func() (int, error) {
		var c int
		var err error
		c, body, err = r.next.Get(ctx, path)
		return c, err
	})
	return code, body, err
}

func (r *Retrying) Post(ctx context.Context, path string, in map[string]any) (int, map[string]any, error) {
	var body map[string]any
	code, err := r.retry(ctx, http.MethodPost, path, func() (int, error) {
		var c int
		var err error
		c, body, err = r.next.Post(ctx, path, in)
		return c, err
	})
	return code, body, err
}

func (r *Retrying) Delete(ctx context.Context, path string) (int, error) {
	return r.retry(ctx, http.MethodDelete, path, func() (int, error) {
		return r.next.Delete(ctx, path)
	})
}

func (r *Retrying) retry(ctx context.Context, method, path string, call func() (int, error)) (int, error) {
	wait := r.backoff
	for attempt := 1; ; attempt++ {
		code, err := call()
		if err != nil {
			return code, err
		}
		if _, retry := r.codes[code]; !retry || attempt == r.tries {
			return code, nil
		}
		logging.FromContext(ctx).Warn("retrying request",
			"method", method, "path", path, "code", code, "attempt", attempt+1)
		metrics.IncRetries()
		if err := sleepWithContext(ctx, wait); err != nil {
			return code, err
		}
		wait *= 2
	}
}

func sleepWithContext(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Instrumented logs every request with its duration and payload sizes and
// records request metrics.
type Instrumented struct {
	next batch.Transport
	now  func() time.Time
}

func NewInstrumented(next batch.Transport) *Instrumented {
	return &Instrumented{next: next, now: time.Now}
}

func (i *Instrumented) Get(ctx context.Context, path string) (int, map[string]any, error) {
	start := i.now()
	code, body, err := i.next.Get(ctx, path)
	i.observe(ctx, http.MethodGet, path, code, start, nil, body, err)
	return code, body, err
}

func (i *Instrumented) Post(ctx context.Context, path string, in map[string]any) (int, map[string]any, error) {
	start := i.now()
	code, body, err := i.next.Post(ctx, path, in)
	i.observe(ctx, http.MethodPost, path, code, start, in, body, err)
	return code, body, err
}

func (i *Instrumented) Delete(ctx context.Context, path string) (int, error) {
	start := i.now()
	code, err := i.next.Delete(ctx, path)
	i.observe(ctx, http.MethodDelete, path, code, start, nil, nil, err)
	return code, err
}

func (i *Instrumented) observe(ctx context.Context, method, path string, code int, start time.Time, req, resp map[string]any, err error) {
	d := i.now().Sub(start)
	metrics.ObserveRequest(method, code, d)
	attrs := []any{"method", method, "path", redactToken(path), "code", code, "duration", d}
	if req != nil {
		attrs = append(attrs, "request_size", humanize.Bytes(jsonSize(req)))
	}
	if resp != nil {
		attrs = append(attrs, "response_size", humanize.Bytes(jsonSize(resp)))
	}
	log := logging.FromContext(ctx)
	if err != nil {
		log.Warn("request failed", append(attrs, "error_class", apierr.Classify(err), "err", err)...)
		return
	}
	log.Debug("request", attrs...)
}

func jsonSize(m map[string]any) uint64 {
	b, err := json.Marshal(m)
	if err != nil {
		return 0
	}
	return uint64(len(b))
}

func redactToken(path string) string {
	u, err := url.Parse(path)
	if err != nil {
		return path
	}
	q := u.Query()
	if !q.Has("token") {
		return path
	}
	q.Set("token", "REDACTED")
	u.RawQuery = q.Encode()
	return u.String()
}
