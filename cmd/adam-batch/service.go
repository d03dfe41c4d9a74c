package main

import (
	"encoding/json"
	"io"
	"time"

	"adam-batch/internal/batch"
	"adam-batch/internal/config"
	"adam-batch/internal/rest"
	"adam-batch/internal/runner"
)

var _ runner.Service = (*batch.Client)(nil)

// serviceSettings merges the root flags into the job's service section, or
// into the defaults when job is nil.
func serviceSettings(job *config.Job) config.Service {
	svc := config.Defaults().Service
	if job != nil {
		svc = job.Service
	}
	if rootURL != "" {
		svc.URL = rootURL
	}
	if rootTokenEnv != "" {
		svc.TokenEnv = rootTokenEnv
	}
	return svc
}

func newClient(svc config.Service) *batch.Client {
	t := rest.New(rest.Options{
		BaseURL:      svc.URL,
		Token:        svc.Token(),
		Retries:      svc.Retries,
		RetryBackoff: time.Duration(svc.RetryBackoff),
		Timeout:      time.Duration(svc.Timeout),
	})
	return batch.NewClient(t)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
