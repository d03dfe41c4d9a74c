package rest

import (
	"net/http"
	"time"

	"adam-batch/internal/batch"
)

// Options configures the transport chain built by New.
type Options struct {
	BaseURL      string
	Token        string
	Retries      int
	RetryBackoff time.Duration
	Timeout      time.Duration
	Client       *http.Client
}

// New builds the transport used against the live service: instrumentation
// around retries around token injection around plain HTTP. An empty token
// skips the Authorizing layer.
func New(opts Options) batch.Transport {
	base := NewHTTPTransport(opts.BaseURL, opts.Client)
	if opts.Timeout > 0 {
		base = base.WithTimeout(opts.Timeout)
	}
	var t batch.Transport = base
	if opts.Token != "" {
		t = NewAuthorizing(t, opts.Token)
	}
	t = NewRetrying(t, opts.Retries, opts.RetryBackoff)
	return NewInstrumented(t)
}
