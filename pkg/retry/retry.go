// Package retry provides exponential-backoff retry for provider calls, with
// terminal-vs-retryable error classification.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"agentd/pkg/llmerrors"
	"agentd/pkg/logx"
)

// Classifier determines whether an error should be retried.
type Classifier func(error) bool

// Policy defines retry behavior. Attempts are numbered from 0; a policy with
// MaxRetries retries allows MaxRetries+1 physical attempts in the worst case.
type Policy struct {
	MaxRetries int           // Retries after the initial attempt
	BaseDelay  time.Duration // Backoff base; delay for attempt i is BaseDelay * 2^i plus jitter
	MaxJitter  time.Duration // Upper bound of the additive uniform jitter, independent per attempt
}

// DefaultPolicy provides the standard retry budget for provider calls.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultPolicy = Policy{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxJitter:  500 * time.Millisecond,
}

// Delay computes the backoff delay after failed attempt i. Growth is
// strictly exponential by attempt index, not cumulative.
func (p Policy) Delay(attempt int) time.Duration {
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	if p.MaxJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}
	return delay
}

// DelayBounds returns the half-open interval the delay for attempt i falls in.
func (p Policy) DelayBounds(attempt int) (minDelay, maxDelay time.Duration) {
	base := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	return base, base + p.MaxJitter
}

// Do runs op, retrying on failures the classifier marks retryable, up to the
// policy's budget. The sleep between attempts honors ctx cancellation. When
// classify is nil the default llmerrors classification applies. The last
// error is propagated unchanged once the budget is exhausted or the failure
// is terminal.
func Do[T any](ctx context.Context, policy Policy, logger *logx.Logger, classify Classifier, op func(context.Context) (T, error)) (T, error) {
	if classify == nil {
		classify = llmerrors.IsRetryable
	}

	var zero T
	var lastErr error

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt >= policy.MaxRetries || !classify(err) {
			return zero, lastErr
		}

		delay := policy.Delay(attempt)
		if logger != nil {
			logger.Warn("attempt %d failed, retrying in %v: %v", attempt, delay, err)
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
}
