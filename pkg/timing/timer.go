// Package timing measures wall-clock duration of outbound calls for event
// recording and metrics.
package timing

import (
	"context"
	"time"
)

// Result captures the outcome of a timed operation.
type Result[T any] struct {
	Value    T
	Duration time.Duration
	Err      error
}

// Succeeded reports whether the timed operation completed without error.
func (r Result[T]) Succeeded() bool {
	return r.Err == nil
}

// Measure runs op and reports its outcome together with elapsed wall-clock
// time. Duration is measured across the whole invocation, including any
// retries op performs internally.
func Measure[T any](ctx context.Context, op func(context.Context) (T, error)) Result[T] {
	start := time.Now()
	value, err := op(ctx)
	return Result[T]{
		Value:    value,
		Duration: time.Since(start),
		Err:      err,
	}
}
