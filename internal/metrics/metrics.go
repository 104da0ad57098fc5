// Package metrics exposes Prometheus collectors for the engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's metrics on its own registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	evaluationsTotal   *prometheus.CounterVec
	failuresTotal      *prometheus.CounterVec
	evaluationDuration *prometheus.HistogramVec
	rulesTriggered     *prometheus.CounterVec
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_evaluations_total",
				Help: "Total number of stored evaluations",
			},
			[]string{"scope", "severity"},
		),

		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_evaluation_failures_total",
				Help: "Total number of evaluations that did not store a score",
			},
			[]string{"scope", "reason"}, // reason: rules/facts/store
		),

		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kestrel_evaluation_duration_seconds",
				Help:    "Evaluation duration in seconds, from rule load to stored snapshot",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"scope"},
		),

		rulesTriggered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kestrel_rules_triggered_total",
				Help: "Total number of triggered rules by code",
			},
			[]string{"scope", "code"},
		),
	}

	c.registry.MustRegister(
		c.evaluationsTotal,
		c.failuresTotal,
		c.evaluationDuration,
		c.rulesTriggered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RecordEvaluation records a stored evaluation.
func (c *Collector) RecordEvaluation(scope, severity string, triggered []string, d time.Duration) {
	if c == nil {
		return
	}
	c.evaluationsTotal.WithLabelValues(scope, severity).Inc()
	c.evaluationDuration.WithLabelValues(scope).Observe(d.Seconds())
	for _, code := range triggered {
		c.rulesTriggered.WithLabelValues(scope, code).Inc()
	}
}

// RecordFailure records an evaluation that stopped before storing a score.
func (c *Collector) RecordFailure(scope, reason string) {
	if c == nil {
		return
	}
	c.failuresTotal.WithLabelValues(scope, reason).Inc()
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
