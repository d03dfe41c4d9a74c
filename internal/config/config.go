// YAML job loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"adam-batch/internal/params"
	"adam-batch/internal/runner"
)

// DefaultServiceURL is the public ADAM REST endpoint.
const DefaultServiceURL = "https://pro-equinox-162418.appspot.com/_ah/api/adam/v1"

// Environment variables overriding file settings.
const (
	EnvServiceURL       = "ADAM_URL"
	EnvToken            = "ADAM_TOKEN"
	EnvGreptimeEndpoint = "GREPTIMEDB_ENDPOINT"
)

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = Duration(v)
	return nil
}

// Service describes how to reach the propagation service.
type Service struct {
	URL          string   `yaml:"url"`
	TokenEnv     string   `yaml:"token_env"`
	Retries      int      `yaml:"retries"`
	RetryBackoff Duration `yaml:"retry_backoff"`
	Timeout      Duration `yaml:"timeout"`
}

// Runner tunes submission chunking, concurrency and polling.
type Runner struct {
	ChunkSize     int      `yaml:"chunk_size"`
	SubmitWorkers int      `yaml:"submit_workers"`
	ResultWorkers int      `yaml:"result_workers"`
	PollInterval  Duration `yaml:"poll_interval"`
}

// Greptime locates the GreptimeDB result sink.
type Greptime struct {
	Endpoint    string `yaml:"endpoint"`
	Database    string `yaml:"database"`
	Table       string `yaml:"table"`
	StatusTable string `yaml:"status_table"`
}

// Sinks selects where statuses and end states are written.
type Sinks struct {
	JSONL    string   `yaml:"jsonl"`
	Ledger   string   `yaml:"ledger"`
	Greptime Greptime `yaml:"greptime"`
}

// Job is the root of a job file. Propagation and initial states stay untyped
// until the params constructors check them.
type Job struct {
	Service       Service          `yaml:"service"`
	Runner        Runner           `yaml:"runner"`
	Sinks         Sinks            `yaml:"sinks"`
	Propagation   map[string]any   `yaml:"propagation"`
	InitialStates []map[string]any `yaml:"initial_states"`
}

// Load validates the YAML file at path against the CUE schema (embedded when
// schemaPath is empty), decodes it, applies defaults and environment overrides.
func Load(path, schemaPath string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, schemaPath)
}

// Parse is Load for in-memory data.
func Parse(data []byte, schemaPath string) (*Job, error) {
	if err := ValidateWithCue(data, schemaPath); err != nil {
		return nil, err
	}
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	job.applyDefaults()
	job.applyEnv()
	return &job, nil
}

// Defaults returns the settings used by commands that run without a job
// file: defaults plus environment overrides, with no propagation or states.
func Defaults() *Job {
	var j Job
	j.applyDefaults()
	j.applyEnv()
	return &j
}

func (j *Job) applyDefaults() {
	if j.Service.URL == "" {
		j.Service.URL = DefaultServiceURL
	}
	if j.Service.TokenEnv == "" {
		j.Service.TokenEnv = EnvToken
	}
	if j.Service.Retries == 0 {
		j.Service.Retries = 3
	}
	if j.Service.RetryBackoff == 0 {
		j.Service.RetryBackoff = Duration(500 * time.Millisecond)
	}
	if j.Service.Timeout == 0 {
		j.Service.Timeout = Duration(60 * time.Second)
	}
	if j.Sinks.Greptime.Database == "" {
		j.Sinks.Greptime.Database = "public"
	}
	if j.Sinks.Greptime.Table == "" {
		j.Sinks.Greptime.Table = "batch_end_states"
	}
	if j.Sinks.Greptime.StatusTable == "" {
		j.Sinks.Greptime.StatusTable = "batch_statuses"
	}
}

func (j *Job) applyEnv() {
	if v := os.Getenv(EnvServiceURL); v != "" {
		j.Service.URL = v
	}
	if v := os.Getenv(EnvGreptimeEndpoint); v != "" {
		j.Sinks.Greptime.Endpoint = v
	}
}

// Token reads the service token from the configured environment variable.
func (j *Job) Token() string {
	return j.Service.Token()
}

// Token reads the token from the environment variable named by TokenEnv.
func (s Service) Token() string {
	if s.TokenEnv == "" {
		return ""
	}
	return os.Getenv(s.TokenEnv)
}

// PropagationParams builds the propagation window of the job.
func (j *Job) PropagationParams() (params.PropagationParams, error) {
	return params.PropagationParamsFromMap(j.Propagation)
}

// States builds every initial state of the job, in file order.
func (j *Job) States() ([]params.InitialState, error) {
	out := make([]params.InitialState, len(j.InitialStates))
	for i, m := range j.InitialStates {
		s, err := params.InitialStateFromMap(m)
		if err != nil {
			return nil, fmt.Errorf("initial_states[%d]: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}

// RunnerOptions converts the runner section.
func (j *Job) RunnerOptions() runner.Options {
	return runner.Options{
		ChunkSize:     j.Runner.ChunkSize,
		SubmitWorkers: j.Runner.SubmitWorkers,
		ResultWorkers: j.Runner.ResultWorkers,
		PollInterval:  time.Duration(j.Runner.PollInterval),
	}
}
