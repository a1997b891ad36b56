// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Merge sources.
const (
	SourceHistory = "history"
	SourcePush    = "push"
	SourceSend    = "send"
	SourceLocal   = "local"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MergesTotal counts merge decisions by resolver action and input source.
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_merges_total",
			Help: "Messages merged into conversation logs",
		},
		[]string{"source", "action"},
	)

	// PushDeliveriesTotal counts push-delivered records, including those
	// dropped after the inbox was closed.
	PushDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_push_deliveries_total",
			Help: "Push-delivered message records",
		},
		[]string{"status"},
	)

	// SendFailuresTotal counts failed sends that rolled back a placeholder.
	SendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_send_failures_total",
			Help: "Sends that failed and rolled back their placeholder",
		},
	)

	// HistoryFetchDuration tracks history fetch latency.
	HistoryFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_history_fetch_duration_seconds",
			Help:    "History fetch duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"status"},
	)

	// ConversationsTracked is the number of conversations held by the inbox.
	ConversationsTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_conversations",
			Help: "Conversations held by the inbox",
		},
	)

	// PushActive is 1 while the push subscription is established.
	PushActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_push_active",
			Help: "Whether push delivery is active (1) or the inbox runs history-only (0)",
		},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// RefreshRunsTotal counts scheduled refresh runs.
	RefreshRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_refresh_runs_total",
			Help: "Scheduled history refresh runs",
		},
		[]string{"status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordMerge records a merge decision.
func RecordMerge(source, action string) {
	MergesTotal.WithLabelValues(source, action).Inc()
}

// RecordHistoryFetch records a history fetch.
func RecordHistoryFetch(status string, duration float64) {
	HistoryFetchDuration.WithLabelValues(status).Observe(duration)
}

// SetPushActive records whether push delivery is established.
func SetPushActive(active bool) {
	if active {
		PushActive.Set(1)
		return
	}
	PushActive.Set(0)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
