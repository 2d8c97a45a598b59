// Package metrics exposes the prover's operational counters over
// Prometheus, grounded on the teacher's use of
// github.com/prometheus/client_golang (metrics/prometheus/prometheus.go)
// but wired directly against prometheus.NewRegistry rather than through
// an adapter, since this module's counters originate here rather than in
// an upstream metrics.Registry this process doesn't otherwise carry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the fixed set of collectors every cmd/uniprover process
// registers once at start-up and passes down to internal/prove,
// internal/attestloop, and internal/httpapi call sites.
type Metrics struct {
	Registry *prometheus.Registry

	ProofsGenerated   *prometheus.CounterVec
	ProofDuration     *prometheus.HistogramVec
	BlocksExecuted    prometheus.Counter
	ExecutionErrors   *prometheus.CounterVec
	AttestRotations   *prometheus.CounterVec
	AttestValidUntil  prometheus.Gauge
	RegistryCallErrors *prometheus.CounterVec
}

// New constructs and registers every collector against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		ProofsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uniprover",
			Name:      "proofs_generated_total",
			Help:      "Number of signed proofs produced, labeled by outcome.",
		}, []string{"outcome"}),
		ProofDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "uniprover",
			Name:      "proof_duration_seconds",
			Help:      "Wall-clock time to execute and sign one proof request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		BlocksExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uniprover",
			Name:      "blocks_executed_total",
			Help:      "Number of blocks the executor has replayed, across all requests.",
		}),
		ExecutionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uniprover",
			Name:      "execution_errors_total",
			Help:      "Executor failures, labeled by the sentinel error matched.",
		}, []string{"reason"}),
		AttestRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uniprover",
			Name:      "attest_rotations_total",
			Help:      "Identity rotation attempts, labeled by outcome.",
		}, []string{"outcome"}),
		AttestValidUntil: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "uniprover",
			Name:      "attest_valid_until_unix",
			Help:      "Unix timestamp the current committed registration expires at.",
		}),
		RegistryCallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uniprover",
			Name:      "registry_call_errors_total",
			Help:      "On-chain registry call failures, labeled by method.",
		}, []string{"method"}),
	}

	reg.MustRegister(
		m.ProofsGenerated,
		m.ProofDuration,
		m.BlocksExecuted,
		m.ExecutionErrors,
		m.AttestRotations,
		m.AttestValidUntil,
		m.RegistryCallErrors,
	)
	return m
}

// Handler returns the /metrics HTTP handler serving this registry's
// collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
