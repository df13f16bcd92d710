// Package metrics exposes Prometheus instrumentation for the assignment
// engine. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name
const Namespace = "vm_sentinel"

// Suggestion outcomes
const (
	OutcomeOK                = "ok"
	OutcomeContractViolation = "contract_violation"
	OutcomeUnavailable       = "oracle_unavailable"
	OutcomeInvalid           = "invalid_request"
)

// Metrics holds the collectors, registered on a private registry
type Metrics struct {
	registry      *prometheus.Registry
	suggestions   *prometheus.CounterVec
	oracleSeconds prometheus.Histogram
	batchCommits  prometheus.Counter
	batchApplied  prometheus.Counter
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		suggestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "matcher",
			Name:      "suggestions_total",
			Help:      "Bot suggestions requested, by outcome.",
		}, []string{"outcome"}),
		oracleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "matcher",
			Name:      "oracle_seconds",
			Help:      "Latency of scoring oracle calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		batchCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "batch",
			Name:      "commits_total",
			Help:      "Committed process batches.",
		}),
		batchApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "batch",
			Name:      "applied_vms_total",
			Help:      "VMs written by batch commits.",
		}),
	}
	m.registry.MustRegister(m.suggestions, m.oracleSeconds, m.batchCommits, m.batchApplied)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Suggestion records the outcome of one suggestion request
func (m *Metrics) Suggestion(outcome string) {
	if m == nil {
		return
	}
	m.suggestions.WithLabelValues(outcome).Inc()
}

// OracleCall records how long an oracle call took
func (m *Metrics) OracleCall(d time.Duration) {
	if m == nil {
		return
	}
	m.oracleSeconds.Observe(d.Seconds())
}

// BatchCommit records a commit and how many VMs it wrote
func (m *Metrics) BatchCommit(applied int) {
	if m == nil {
		return
	}
	m.batchCommits.Inc()
	m.batchApplied.Add(float64(applied))
}
