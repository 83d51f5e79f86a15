// Package metrics exposes Prometheus counters for fetcher runs and the
// HTTP router that serves them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// recordsTotal counts canonical records by upsert outcome
	// (written, skipped_window, failed, dead_lettered).
	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epibridge_records_total",
			Help: "Canonical records handled per source, entity and outcome",
		},
		[]string{"source", "entity", "outcome"},
	)

	// runsTotal counts fetcher runs by final status.
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epibridge_runs_total",
			Help: "Fetcher runs per source and status",
		},
		[]string{"source", "status"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "epibridge_run_duration_seconds",
			Help:    "Wall time of a fetcher run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"source"},
	)

	// untranslatedTotal counts administrative areas stored under their raw name.
	untranslatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "epibridge_untranslated_areas_total",
			Help: "Administrative areas that fell back to the source's original name",
		},
		[]string{"source"},
	)

	// dlqEntries mirrors the size of the dead letter queue file per source.
	dlqEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "epibridge_dlq_entries",
			Help: "Records waiting in the dead letter queue",
		},
		[]string{"source"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "epibridge_circuit_breaker_state",
			Help: "Circuit breaker state per upstream host (0 closed, 1 half-open, 2 open)",
		},
		[]string{"host"},
	)
)

// ObserveRecord counts one record outcome.
func ObserveRecord(source, entity, outcome string) {
	recordsTotal.WithLabelValues(source, entity, outcome).Inc()
}

// ObserveRun counts a finished run and its duration.
func ObserveRun(source, status string, d time.Duration) {
	runsTotal.WithLabelValues(source, status).Inc()
	runDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveUntranslated adds n untranslated areas for the source.
func ObserveUntranslated(source string, n int64) {
	if n > 0 {
		untranslatedTotal.WithLabelValues(source).Add(float64(n))
	}
}

// SetDLQEntries replaces the per-source dead letter queue sizes.
func SetDLQEntries(bySource map[string]int) {
	dlqEntries.Reset()
	for source, n := range bySource {
		dlqEntries.WithLabelValues(source).Set(float64(n))
	}
}

// SetBreakerState records the circuit breaker state of a host.
func SetBreakerState(host string, state int) {
	breakerState.WithLabelValues(host).Set(float64(state))
}
