// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Signal metrics
	SignalsReceived  prometheus.Counter
	SignalsDiscarded prometheus.Counter
	FanOutUsers      prometheus.Histogram

	// Trade metrics
	TradesExecuted       *prometheus.CounterVec
	PipelineStageFailure *prometheus.CounterVec
	PipelineDuration     *prometheus.HistogramVec
	ConfirmationLatency  prometheus.Histogram

	// Conversation metrics
	MessagesHandled  *prometheus.CounterVec
	CallbacksHandled prometheus.Counter

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec
	QuoteLatency   prometheus.Histogram

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "solana_trade_bot"
	}

	return &Metrics{
		SignalsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "received_total",
			Help:      "Total number of feed messages carrying a token address",
		}),
		SignalsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "discarded_total",
			Help:      "Total number of feed messages without a token address",
		}),
		FanOutUsers: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "signal",
			Name:      "fan_out_users",
			Help:      "Number of eligible users per signal fan-out",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "executed_total",
			Help:      "Total number of terminal pipeline runs",
		}, []string{"direction", "outcome"}),
		PipelineStageFailure: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "stage_failures_total",
			Help:      "Total number of pipeline failures by stage",
		}, []string{"stage"}),
		PipelineDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end pipeline duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
		ConfirmationLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trade",
			Name:      "confirmation_latency_seconds",
			Help:      "Time from submission to confirmation",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 15, 30},
		}),
		MessagesHandled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "messages_handled_total",
			Help:      "Total number of chat messages handled",
		}, []string{"kind"}),
		CallbacksHandled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "callbacks_handled_total",
			Help:      "Total number of inline button callbacks handled",
		}),
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "RPC call latency by method",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		QuoteLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "duration_seconds",
			Help:      "Quote resolution latency",
			Buckets:   prometheus.DefBuckets,
		}),
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSignal counts one feed message, carrying or not carrying a
// token address.
func RecordSignal(hasToken bool) {
	if hasToken {
		DefaultMetrics.SignalsReceived.Inc()
	} else {
		DefaultMetrics.SignalsDiscarded.Inc()
	}
}

// RecordFanOut records the number of users targeted by one signal.
func RecordFanOut(users int) {
	DefaultMetrics.FanOutUsers.Observe(float64(users))
}

// RecordTrade records a terminal pipeline run.
func RecordTrade(direction, outcome string, durationSeconds float64) {
	DefaultMetrics.TradesExecuted.WithLabelValues(direction, outcome).Inc()
	DefaultMetrics.PipelineDuration.WithLabelValues(direction).Observe(durationSeconds)
}

// RecordStageFailure records a pipeline failure at a named stage.
func RecordStageFailure(stage string) {
	DefaultMetrics.PipelineStageFailure.WithLabelValues(stage).Inc()
}

// RecordConfirmation records time from submission to confirmation.
func RecordConfirmation(seconds float64) {
	DefaultMetrics.ConfirmationLatency.Observe(seconds)
}

// RecordMessage counts one handled chat message by kind.
func RecordMessage(kind string) {
	DefaultMetrics.MessagesHandled.WithLabelValues(kind).Inc()
}

// RecordCallback counts one handled inline button callback.
func RecordCallback() {
	DefaultMetrics.CallbacksHandled.Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordQuoteLatency records quote resolution latency.
func RecordQuoteLatency(seconds float64) {
	DefaultMetrics.QuoteLatency.Observe(seconds)
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
