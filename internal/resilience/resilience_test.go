package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiterBasic(t *testing.T) {
	rl := NewRateLimiter(5, 5, time.Second, 10)
	for i := 0; i < 5; i++ {
		if !rl.Allow() {
			t.Fatalf("expected allow %d", i)
		}
	}
	if rl.Allow() {
		t.Fatalf("expected deny after capacity")
	}
	time.Sleep(1100 * time.Millisecond)
	if !rl.Allow() {
		t.Fatalf("expected allow after refill")
	}
}

func TestCircuitBreakerAdaptive(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(2*time.Second, 4, 4, 0.5, 500*time.Millisecond, 2)
	for i := 0; i < 4; i++ {
		if !cb.Allow() {
			t.Fatalf("should allow while closed")
		}
		cb.RecordResult(false)
	}
	if cb.Allow() {
		t.Fatalf("should be open and deny")
	}
	time.Sleep(600 * time.Millisecond)
	if !cb.Allow() {
		t.Fatalf("half-open probe should allow")
	}
	cb.RecordResult(true)
	if !cb.Allow() {
		t.Fatalf("second probe should allow")
	}
	cb.RecordResult(true)
	if !cb.Allow() {
		t.Fatalf("breaker should be closed after successful probes")
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	attempts := 0
	v, err := Retry(context.Background(), 3, time.Millisecond, 0, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errors.New("transient")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	_, err := Retry(context.Background(), 2, time.Millisecond, 0, func() (int, error) {
		return 0, errors.New("always fails")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
}

func TestRetryRespectsMaxDelay(t *testing.T) {
	start := time.Now()
	_, err := Retry(context.Background(), 4, 5*time.Millisecond, 5*time.Millisecond, func() (int, error) {
		return 0, errors.New("always fails")
	})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	// 3 waits capped at maxDelay=5ms each; without the cap the third wait
	// alone could grow to 20ms, so this bounds total elapsed well under
	// what uncapped exponential growth would take.
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("expected backoff capped near maxDelay, took %v", elapsed)
	}
}

func TestCircuitBreakerTracksDroppedPackets(t *testing.T) {
	cb := NewCircuitBreakerAdaptive(2*time.Second, 4, 2, 0.5, time.Hour, 2)
	for i := 0; i < 2; i++ {
		cb.Allow()
		cb.RecordResult(false)
	}
	if cb.Allow() {
		t.Fatalf("expected breaker to be open")
	}
	if cb.Allow() {
		t.Fatalf("expected breaker to still be open")
	}
	if got := cb.DroppedPackets(); got != 2 {
		t.Fatalf("expected 2 dropped packets, got %d", got)
	}
}

func TestRateLimiterReset(t *testing.T) {
	rl := NewRateLimiter(2, 0, time.Hour, 2)
	if !rl.Allow() || !rl.Allow() {
		t.Fatalf("expected first two allowed")
	}
	if rl.Allow() {
		t.Fatalf("expected capacity exhausted")
	}
	rl.Reset()
	if !rl.Allow() {
		t.Fatalf("expected allow immediately after reset")
	}
}
