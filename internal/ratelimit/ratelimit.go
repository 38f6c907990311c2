// Package ratelimit provides process-wide, per-endpoint rate limiting for
// outbound tool calls (e.g. web_search capped at 1/s) built on
// golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Registry holds one token-bucket limiter per named endpoint, created
// lazily on first use with the limits set by Configure (1/s, burst 1 for
// an endpoint that was never configured).
type Registry struct {
	mu     sync.Mutex
	limits map[string]rateSpec
	limiters map[string]*rate.Limiter
}

type rateSpec struct {
	rps   rate.Limit
	burst int
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		limits:   make(map[string]rateSpec),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Configure sets (or replaces) the limit for a named endpoint. ratePerSec
// of 0 means unlimited.
func (r *Registry) Configure(endpoint string, ratePerSec float64, burst int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit := rate.Limit(ratePerSec)
	if ratePerSec == 0 {
		limit = rate.Inf
	}
	r.limits[endpoint] = rateSpec{rps: limit, burst: burst}
	delete(r.limiters, endpoint) // force recreation with the new spec
}

func (r *Registry) limiterFor(endpoint string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[endpoint]; ok {
		return l
	}
	spec, ok := r.limits[endpoint]
	if !ok {
		spec = rateSpec{rps: 1, burst: 1}
	}
	l := rate.NewLimiter(spec.rps, maxInt(spec.burst, 1))
	r.limiters[endpoint] = l
	return l
}

// Wait blocks until a token is available for endpoint or ctx is cancelled.
func (r *Registry) Wait(ctx context.Context, endpoint string) error {
	return r.limiterFor(endpoint).Wait(ctx)
}

// ResetForTest drops every limiter so the next Wait call re-derives fresh
// buckets from the configured limits. Intended for test setup only.
func (r *Registry) ResetForTest() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters = make(map[string]*rate.Limiter)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
