package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// ModelCallsTotal counts completions by outcome: "ok" or a failure reason.
	ModelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_model_calls_total",
			Help: "Total number of model gateway calls by result.",
		},
		[]string{"result"},
	)

	ModelCallDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_model_call_duration_seconds",
			Help:    "Latency of model gateway calls.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
		},
	)

	TokenOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_token_operations_total",
			Help: "Token lifecycle operations by kind and result.",
		},
		[]string{"op", "result"},
	)

	HistoryWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_history_write_failures_total",
			Help: "Transcript appends that failed and were tolerated.",
		},
	)
)

var registerOnce sync.Once

// MustRegister adds every collector to the default registry. Safe to call more
// than once.
func MustRegister() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDurationSeconds,
			ModelCallsTotal,
			ModelCallDurationSeconds,
			TokenOpsTotal,
			HistoryWriteFailuresTotal,
		)
	})
}

// Result maps an error to the "ok"/"error" label used by TokenOpsTotal.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
