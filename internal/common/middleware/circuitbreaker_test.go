package middleware

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerTripsAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 10*time.Millisecond)
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		if err := cb.Call(ctx, func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open after %d failures, got %v", 2, cb.GetState())
	}

	if err := cb.Call(ctx, func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	time.Sleep(15 * time.Millisecond)

	// half-open probe succeeds, breaker closes
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("expected probe success, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after probe, got %v", cb.GetState())
	}
}

func TestTokenBucketExhausts(t *testing.T) {
	tb := NewTokenBucket(3, 1)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !tb.Allow(ctx) {
			t.Fatalf("expected token %d to be available", i)
		}
	}
	if tb.Allow(ctx) {
		t.Fatalf("expected bucket to be empty")
	}
}

func TestSlidingWindowLimits(t *testing.T) {
	sw := NewSlidingWindow(time.Hour, 2)
	ctx := context.Background()

	if !sw.Allow(ctx) || !sw.Allow(ctx) {
		t.Fatalf("expected first two requests allowed")
	}
	if sw.Allow(ctx) {
		t.Fatalf("expected third request rejected")
	}
}
