// Package metrics holds the Prometheus instrumentation for the orchestrator.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application. Record methods
// are nil-safe so components can run uninstrumented in tests.
type Metrics struct {
	registry *prometheus.Registry

	// Routing metrics
	RouterFallbacksTotal    prometheus.Counter
	RouterUnresolvedTotal   *prometheus.CounterVec
	ClassifierFailuresTotal prometheus.Counter

	// Agent metrics
	AgentExecutionsTotal   *prometheus.CounterVec
	AgentExecutionDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitOpenedTotal  *prometheus.CounterVec
	CircuitRejectsTotal *prometheus.CounterVec

	// Session metrics
	SessionsClearedTotal prometheus.Counter

	// Gateway metrics
	WSClientsActive prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RouterFallbacksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "router_fallbacks_total",
				Help: "Total number of classifier outputs that resolved to no known agent",
			},
		),
		RouterUnresolvedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "router_unresolved_total",
				Help: "Unresolved classifier outputs by normalized raw text",
			},
			[]string{"raw"},
		),
		ClassifierFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "classifier_failures_total",
				Help: "Total number of classifier calls that failed after retries",
			},
		),

		AgentExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_executions_total",
				Help: "Total number of agent executions",
			},
			[]string{"agent", "status"},
		),
		AgentExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_execution_duration_seconds",
				Help:    "Duration of agent executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),

		CircuitOpenedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_opened_total",
				Help: "Total number of circuit-open transitions",
			},
			[]string{"agent"},
		),
		CircuitRejectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_rejects_total",
				Help: "Total number of invocations rejected by an open circuit",
			},
			[]string{"agent"},
		),

		SessionsClearedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_cleared_total",
				Help: "Total number of sessions cleared via the admin endpoint",
			},
		),

		WSClientsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ws_clients_active",
				Help: "Number of connected websocket event clients",
			},
		),
	}

	registry.MustRegister(
		m.RouterFallbacksTotal,
		m.RouterUnresolvedTotal,
		m.ClassifierFailuresTotal,
		m.AgentExecutionsTotal,
		m.AgentExecutionDuration,
		m.CircuitOpenedTotal,
		m.CircuitRejectsTotal,
		m.SessionsClearedTotal,
		m.WSClientsActive,
	)

	return m
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRouterFallback counts a classifier output that resolved to "unknown".
func (m *Metrics) RecordRouterFallback(raw string) {
	if m == nil {
		return
	}
	m.RouterFallbacksTotal.Inc()
	m.RouterUnresolvedTotal.WithLabelValues(raw).Inc()
}

// RecordClassifierFailure counts a classifier call that exhausted retries.
func (m *Metrics) RecordClassifierFailure() {
	if m == nil {
		return
	}
	m.ClassifierFailuresTotal.Inc()
}

// RecordAgentExecution counts one agent invocation and its latency.
func (m *Metrics) RecordAgentExecution(agent, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.AgentExecutionsTotal.WithLabelValues(agent, status).Inc()
	m.AgentExecutionDuration.WithLabelValues(agent).Observe(elapsed.Seconds())
}

// RecordCircuitOpened counts a breaker trip for agent.
func (m *Metrics) RecordCircuitOpened(agent string) {
	if m == nil {
		return
	}
	m.CircuitOpenedTotal.WithLabelValues(agent).Inc()
}

// RecordCircuitReject counts an invocation short-circuited by an open breaker.
func (m *Metrics) RecordCircuitReject(agent string) {
	if m == nil {
		return
	}
	m.CircuitRejectsTotal.WithLabelValues(agent).Inc()
}

// RecordSessionCleared counts an explicit session deletion.
func (m *Metrics) RecordSessionCleared() {
	if m == nil {
		return
	}
	m.SessionsClearedTotal.Inc()
}

// SetWSClients tracks the number of connected event-stream clients.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.WSClientsActive.Set(float64(n))
}
