package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestSimpleRateLimiterSpacesActions(t *testing.T) {
	limiter := NewSimpleRateLimiter(50*time.Millisecond, 50*time.Millisecond)
	ctx := context.Background()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("second wait failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected at least ~50ms between actions, got %v", elapsed)
	}
}

func TestSimpleRateLimiterRespectsContext(t *testing.T) {
	limiter := NewSimpleRateLimiter(time.Hour, time.Hour)
	ctx := context.Background()

	if err := limiter.Wait(ctx); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}

	cancelled, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(cancelled); err == nil {
		t.Error("expected context error from interrupted wait")
	}
}

func TestAdaptiveRateLimiterBacksOff(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(time.Second, 2*time.Second)

	for i := 0; i < 3; i++ {
		limiter.RecordError()
	}

	if limiter.minDelay <= time.Second {
		t.Errorf("expected min delay to grow after errors, got %v", limiter.minDelay)
	}
}

func TestAdaptiveRateLimiterRecovers(t *testing.T) {
	limiter := NewAdaptiveRateLimiter(10*time.Second, 20*time.Second)

	for i := 0; i < 6; i++ {
		limiter.RecordSuccess()
	}

	if limiter.minDelay >= 10*time.Second {
		t.Errorf("expected min delay to shrink after successes, got %v", limiter.minDelay)
	}
}
