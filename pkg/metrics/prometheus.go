package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus
// metrics registered on the default registry.
type PrometheusRecorder struct {
	llmCallsTotal    *prometheus.CounterVec
	llmCallDuration  *prometheus.HistogramVec
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	httpCallsTotal   *prometheus.CounterVec
	httpCallDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new Prometheus-based metrics recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		llmCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_calls_total",
				Help: "Total number of logical LLM calls by provider, model, operation, status, and error type",
			},
			[]string{"provider", "model", "operation", "status", "error_type"},
		),
		llmCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_call_duration_seconds",
				Help:    "Duration of logical LLM calls in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "model", "operation"},
		),
		dispatchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_dispatch_total",
				Help: "Total number of agent dispatches by path and outcome",
			},
			[]string{"path", "outcome"},
		),
		dispatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_dispatch_duration_seconds",
				Help:    "Duration of agent dispatches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		httpCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbound_http_calls_total",
				Help: "Total number of tracked outbound HTTP calls by method and status code",
			},
			[]string{"method", "status_code"},
		),
		httpCallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outbound_http_call_duration_seconds",
				Help:    "Duration of tracked outbound HTTP calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}
}

// ObserveLLMCall records metrics for a completed logical LLM call.
func (p *PrometheusRecorder) ObserveLLMCall(provider, model, operation string, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.llmCallsTotal.WithLabelValues(provider, model, operation, status, errorType).Inc()
	p.llmCallDuration.WithLabelValues(provider, model, operation).Observe(duration.Seconds())
}

// ObserveDispatch records metrics for a completed agent dispatch.
func (p *PrometheusRecorder) ObserveDispatch(path, outcome string, duration time.Duration) {
	p.dispatchTotal.WithLabelValues(path, outcome).Inc()
	p.dispatchDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// ObserveHTTPCall records metrics for a completed tracked outbound HTTP call.
func (p *PrometheusRecorder) ObserveHTTPCall(method string, statusCode int, duration time.Duration) {
	p.httpCallsTotal.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	p.httpCallDuration.WithLabelValues(method).Observe(duration.Seconds())
}
