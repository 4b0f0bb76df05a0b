// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	// Feed metrics
	TicksProcessed prometheus.Counter
	TicksDropped   prometheus.Counter
	FeedReconnects prometheus.Counter

	// Signal metrics
	SignalsEvaluated prometheus.Counter
	SignalsEmitted   *prometheus.CounterVec
	SignalsBlocked   *prometheus.CounterVec

	// Order metrics
	OrdersDispatched *prometheus.CounterVec
	DispatchLatency  prometheus.Histogram

	// Engine state gauges
	ConsecutiveErrors prometheus.Gauge
	DailyPnl          prometheus.Gauge
	PositionSize      prometheus.Gauge
	WindowFill        prometheus.Gauge

	// Audit metrics
	AuditWriteErrors *prometheus.CounterVec

	// Health metrics
	LastTickTimestamp prometheus.Gauge
	UptimeSeconds     prometheus.Counter
}

// NewMetrics creates a Metrics instance registered on the given registerer.
// A nil registerer uses the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "meanrev_engine"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Feed metrics
		TicksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ticks_processed_total",
			Help:      "Total number of price ticks processed",
		}),
		TicksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "ticks_dropped_total",
			Help:      "Total number of invalid or unparseable ticks dropped",
		}),
		FeedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Total number of feed reconnect attempts",
		}),

		// Signal metrics
		SignalsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "evaluated_total",
			Help:      "Total number of signal evaluations",
		}),
		SignalsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "emitted_total",
			Help:      "Total number of actionable signals by action",
		}, []string{"action"}),
		SignalsBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "blocked_total",
			Help:      "Total number of evaluations suppressed by gate",
		}, []string{"gate"}),

		// Order metrics
		OrdersDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "dispatched_total",
			Help:      "Total number of order dispatches by status",
		}, []string{"status"}),
		DispatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "dispatch_latency_seconds",
			Help:      "Order dispatch latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Engine state gauges
		ConsecutiveErrors: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "consecutive_errors",
			Help:      "Current count of consecutive processing errors",
		}),
		DailyPnl: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "daily_pnl",
			Help:      "Realized profit and loss for the current UTC day",
		}),
		PositionSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "position_size",
			Help:      "Current position size, negative for short",
		}),
		WindowFill: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "window_fill",
			Help:      "Number of samples in the rolling price window",
		}),

		// Audit metrics
		AuditWriteErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "write_errors_total",
			Help:      "Total number of audit sink write errors by record kind",
		}, []string{"kind"}),

		// Health metrics
		LastTickTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_tick_timestamp",
			Help:      "Unix timestamp of the last processed tick",
		}),
		UptimeSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
