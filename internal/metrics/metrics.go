// Package metrics registers the gateway's prometheus collectors: queue
// depth gauges, dispatch latency, and batch job counters. Distinct from the
// teacher's use of client_golang's query-side API (it only scrapes a remote
// Prometheus); this gateway is itself an instrumented process, so it uses
// the promauto/promhttp instrumentation side of the same module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors bundles every metric this gateway exposes on /metrics, along
// with the private registry they're bound to.
type Collectors struct {
	Registry *prometheus.Registry

	QueueDepth      *prometheus.GaugeVec
	DispatchLatency *prometheus.HistogramVec
	BatchJobsTotal  *prometheus.CounterVec
	BatchLinesTotal *prometheus.CounterVec
}

// New builds a fresh, private prometheus.Registry and registers all
// collectors against it. A private registry (rather than the package-level
// DefaultRegisterer) means a second New() call in the same process — as
// happens in tests that each stand up their own scheduler/batch manager —
// never panics with a duplicate-collector registration.
func New() *Collectors {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collectors{
		Registry: registry,

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_queue_depth",
			Help: "Current number of slots waiting in a scheduler queue.",
		}, []string{"class"}),

		DispatchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_dispatch_latency_seconds",
			Help:    "Time from micro-batch dispatch to all slots in it resolving.",
			Buckets: prometheus.DefBuckets,
		}, []string{"class"}),

		BatchJobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_batch_jobs_total",
			Help: "Batch jobs reaching each terminal status.",
		}, []string{"status"}),

		BatchLinesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_batch_lines_total",
			Help: "Batch input lines processed, by outcome.",
		}, []string{"outcome"}),
	}
}
