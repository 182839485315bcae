// Package ratelimit limits unauthenticated protocol calls per client.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Limiter decides whether one more request for key is allowed right now
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// WindowLimit converts a sustained rate into a per-window request budget.
// The budget is never smaller than burst.
func WindowLimit(rps float64, burst int, window time.Duration) int64 {
	n := int64(math.Ceil(rps * window.Seconds()))
	if n < int64(burst) {
		n = int64(burst)
	}
	if n < 1 {
		n = 1
	}
	return n
}
