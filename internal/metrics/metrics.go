// Package metrics exposes the Prometheus collectors the backend
// reports: HTTP traffic, node operations, and feature executions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics bundles every collector registered by the process.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	NodeOperations *prometheus.CounterVec

	FeatureExecutions *prometheus.CounterVec
	FeatureDuration   *prometheus.HistogramVec
}

// New creates and registers every collector on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antbox",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "antbox",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		NodeOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antbox",
			Subsystem: "nodes",
			Name:      "operations_total",
			Help:      "Node service operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		FeatureExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "antbox",
			Subsystem: "features",
			Name:      "executions_total",
			Help:      "Feature invocations by channel and outcome.",
		}, []string{"channel", "outcome"}),
		FeatureDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "antbox",
			Subsystem: "features",
			Name:      "execution_duration_seconds",
			Help:      "Feature execution time by channel.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}

	registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.NodeOperations,
		m.FeatureExecutions,
		m.FeatureDuration,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveNodeOperation records one node service call.
func (m *Metrics) ObserveNodeOperation(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.NodeOperations.WithLabelValues(operation, outcome).Inc()
}

// ObserveFeatureExecution records one feature invocation.
func (m *Metrics) ObserveFeatureExecution(channel string, seconds float64, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.FeatureExecutions.WithLabelValues(channel, outcome).Inc()
	m.FeatureDuration.WithLabelValues(channel).Observe(seconds)
}
