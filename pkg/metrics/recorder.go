// Package metrics provides metrics recording for LLM and dispatch operations.
package metrics

import (
	"time"
)

// Recorder defines the interface for recording runtime metrics.
type Recorder interface {
	// ObserveLLMCall records metrics for a completed logical LLM call
	// (one observation per call regardless of retry attempts underneath).
	ObserveLLMCall(provider, model, operation string, success bool, errorType string, duration time.Duration)

	// ObserveDispatch records metrics for a completed agent dispatch.
	ObserveDispatch(path, outcome string, duration time.Duration)

	// ObserveHTTPCall records metrics for a completed tracked outbound
	// HTTP call.
	ObserveHTTPCall(method string, statusCode int, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are
// disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveLLMCall does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveLLMCall(_, _, _ string, _ bool, _ string, _ time.Duration) {
}

// ObserveDispatch does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveDispatch(_, _ string, _ time.Duration) {
}

// ObserveHTTPCall does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveHTTPCall(_ string, _ int, _ time.Duration) {
}
