package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWaitBlocksUntilTokenAvailable(t *testing.T) {
	r := NewRegistry()
	r.Configure("web_search", 1000, 1) // fast enough for a test but still bucketed

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := r.Wait(ctx, "web_search"); err != nil {
		t.Fatalf("first wait should succeed immediately: %v", err)
	}
	if err := r.Wait(ctx, "web_search"); err != nil {
		t.Fatalf("second wait should succeed within timeout: %v", err)
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	r := NewRegistry()
	r.Configure("slow", 0.001, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	// Drain the single burst token first.
	_ = r.Wait(context.Background(), "slow")

	if err := r.Wait(ctx, "slow"); err == nil {
		t.Fatal("expected context deadline to cancel the wait")
	}
}

func TestUnconfiguredEndpointDefaultsToOnePerSecond(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Wait(ctx, "unconfigured"); err != nil {
		t.Fatalf("unexpected error on default-limited endpoint: %v", err)
	}
}
