// Package metrics exposes tool call and engine telemetry in Prometheus
// format. The Collector owns a private registry so several servers (or
// tests) in one process never collide.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/njchilds90/axiom-mcp/engine"
)

// DefaultNamespace prefixes every metric when NewCollector gets "".
const DefaultNamespace = "axiom"

// Collector records tool calls and engine state.
type Collector struct {
	registry *prometheus.Registry

	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	engineState  *prometheus.GaugeVec

	engineStatus func() engine.Status
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.toolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "calls_total",
			Help:      "Total number of tool calls by tool and result",
		},
		[]string{"tool", "result"},
	)

	c.toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tool",
			Name:      "call_duration_seconds",
			Help:      "Time taken to answer a tool call",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16), // 0.5ms to ~16s
		},
		[]string{"tool"},
	)

	c.engineState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "state",
			Help:      "Symbolic engine lifecycle state (1 for the current state, 0 otherwise)",
		},
		[]string{"backend", "state"},
	)

	c.registry.MustRegister(
		c.toolCalls,
		c.toolDuration,
		c.engineState,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// TrackEngine makes every scrape refresh the engine gauge from status. Call it
// before serving Handler.
func (c *Collector) TrackEngine(status func() engine.Status) { c.engineStatus = status }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	h := promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.engineStatus != nil {
			c.SetEngineStatus(c.engineStatus())
		}
		h.ServeHTTP(w, r)
	})
}

// ObserveToolCall records one completed call.
func (c *Collector) ObserveToolCall(tool string, isError bool, elapsed time.Duration) {
	result := "success"
	if isError {
		result = "error"
	}
	c.toolCalls.WithLabelValues(tool, result).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

var engineStates = []string{
	engine.StateUninitialized.String(),
	engine.StateInitializing.String(),
	engine.StateReady.String(),
	engine.StateFailed.String(),
}

// SetEngineStatus publishes st as a one-hot gauge over the known states.
func (c *Collector) SetEngineStatus(st engine.Status) {
	backend := st.Backend
	if backend == "" {
		backend = "none"
	}
	c.engineState.Reset()
	for _, s := range engineStates {
		v := 0.0
		if s == st.State {
			v = 1
		}
		c.engineState.WithLabelValues(backend, s).Set(v)
	}
}
