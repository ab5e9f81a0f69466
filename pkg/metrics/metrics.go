// Package metrics provides Prometheus instrumentation for mtlink connector
// calls. The resilient call wrapper records every contract operation here so
// operators can tell transient terminal drops from persistent ones.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectorCalls counts contract operations by outcome.
	// Labels: platform (mt5/mt4), operation, result (success/failure)
	ConnectorCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtlink_connector_calls_total",
			Help: "Total contract operations invoked against platform connectors",
		},
		[]string{"platform", "operation", "result"},
	)

	// Reconnects counts reconnect attempts made by the resilient wrapper.
	// Labels: platform, outcome (success/failure)
	Reconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtlink_reconnects_total",
			Help: "Reconnect attempts performed by the resilient call wrapper",
		},
		[]string{"platform", "outcome"},
	)

	// Retries counts operations retried after a successful reconnect.
	// Labels: platform, operation
	Retries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mtlink_retries_total",
			Help: "Operations retried once after a successful reconnect",
		},
		[]string{"platform", "operation"},
	)

	// CallLatency tracks contract operation latency in seconds.
	// Labels: platform, operation
	CallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "mtlink_call_latency_seconds",
			Help: "Contract operation latency in seconds",
			Buckets: []float64{
				0.001, // local gateway round trip
				0.005,
				0.01,
				0.05,
				0.1,
				0.5,
				1,
				5,  // slow terminal queries
				30, // connect with terminal launch
			},
		},
		[]string{"platform", "operation"},
	)
)

// Collector records connector metrics for one platform. Each connector
// wrapper owns its own collector.
type Collector struct {
	platform string
}

// NewCollector creates a metrics collector labeled with the platform name.
func NewCollector(platform string) *Collector {
	return &Collector{platform: platform}
}

// RecordCall records one contract operation and its latency.
func (c *Collector) RecordCall(operation string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	ConnectorCalls.WithLabelValues(c.platform, operation, result).Inc()
	CallLatency.WithLabelValues(c.platform, operation).Observe(elapsed.Seconds())
}

// RecordReconnect records a reconnect attempt outcome.
func (c *Collector) RecordReconnect(success bool) {
	if c == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	Reconnects.WithLabelValues(c.platform, outcome).Inc()
}

// RecordRetry records an operation retried after a successful reconnect.
func (c *Collector) RecordRetry(operation string) {
	if c == nil {
		return
	}
	Retries.WithLabelValues(c.platform, operation).Inc()
}
