package resilience

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel"
)

// defaultMaxDelay caps backoff for callers that pass maxDelay<=0, suiting a
// slow external dependency where waiting up to a minute between attempts is
// still cheaper than failing outright.
const defaultMaxDelay = 60 * time.Second

// Retry executes fn with exponential backoff (base delay) + full jitter.
// delay acts as initial backoff; grows exponentially (x2) until attempts
// exhausted or maxDelay is reached. maxDelay<=0 falls back to
// defaultMaxDelay; a caller on a hard real-time budget (the packet
// injection path, which must not stall the capture loop behind a single
// slow write) passes a small maxDelay so backoff growth never outgrows the
// time it can actually afford to spend retrying. Jitter: random duration in
// [0, currentDelay].
func Retry[T any](ctx context.Context, attempts int, delay, maxDelay time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		return zero, nil
	}
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay
	}
	cur := delay
	var lastErr error
	meter := otel.Meter("dpi-sniffer")
	attemptCounter, _ := meter.Int64Counter("dpi_resilience_retry_attempts_total")
	successCounter, _ := meter.Int64Counter("dpi_resilience_retry_success_total")
	failCounter, _ := meter.Int64Counter("dpi_resilience_retry_fail_total")
	for i := 0; i < attempts; i++ {
		v, err := fn()
		attemptCounter.Add(ctx, 1)
		if err == nil {
			successCounter.Add(ctx, 1)
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if cur > maxDelay {
			cur = maxDelay
		}
		// full jitter
		sleep := time.Duration(rand.Int63n(int64(cur) + 1))
		select {
		case <-ctx.Done():
			failCounter.Add(ctx, 1)
			return zero, ctx.Err()
		case <-time.After(sleep):
		}
		cur *= 2
	}
	failCounter.Add(ctx, 1)
	return zero, lastErr
}
