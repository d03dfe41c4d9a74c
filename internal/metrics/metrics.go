// Package metrics exposes Prometheus collectors for service requests and batch
// runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adam_batch_requests_total",
			Help: "Total number of requests sent to the propagation service.",
		},
		[]string{"method", "code"},
	)

	requestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adam_batch_request_duration_seconds",
			Help:    "Propagation service request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adam_batch_request_retries_total",
			Help: "Requests retried after a retryable status code.",
		},
	)

	batchesSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "adam_batch_batches_submitted_total",
			Help: "Batches accepted by the propagation service.",
		},
	)

	batchesByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "adam_batch_batches",
			Help: "Batches of the current run by calculation state.",
		},
		[]string{"calc_state"},
	)

	phaseDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adam_batch_phase_duration_seconds",
			Help:    "Duration of run phases (submit, wait, results).",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"phase"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDurationSeconds)
	prometheus.MustRegister(retriesTotal)
	prometheus.MustRegister(batchesSubmittedTotal)
	prometheus.MustRegister(batchesByState)
	prometheus.MustRegister(phaseDurationSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one completed request. code 0 marks a transport failure.
func ObserveRequest(method string, code int, d time.Duration) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	requestDurationSeconds.WithLabelValues(method).Observe(d.Seconds())
}

// IncRetries counts a retried request.
func IncRetries() { retriesTotal.Inc() }

// AddSubmitted counts accepted batches.
func AddSubmitted(n int) { batchesSubmittedTotal.Add(float64(n)) }

// SetStateCounts replaces the per-state gauge values.
func SetStateCounts(counts map[string]int) {
	batchesByState.Reset()
	for state, n := range counts {
		batchesByState.WithLabelValues(state).Set(float64(n))
	}
}

// ObservePhase records the duration of a run phase.
func ObservePhase(phase string, d time.Duration) {
	phaseDurationSeconds.WithLabelValues(phase).Observe(d.Seconds())
}
