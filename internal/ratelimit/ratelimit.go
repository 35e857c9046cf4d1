// internal/ratelimit/ratelimit.go
//
// Fixed-window write limiter.
//
// Context
// -------
// Each caller gets a counter created on their first write in a window with
// a fixed time-to-live; later writes increment it WITHOUT touching the
// expiry.  Once the counter reaches the configured maximum, further writes
// are denied until the counter expires naturally.  This is a fixed-window
// counter, not a leaky bucket: bursts straddling a window boundary are
// accepted, a simplicity-over-precision trade-off.
//
// The counter store is pluggable: Memory for a single node, Redis when
// several instances must share quota.  Store errors fail OPEN with a warn
// log; a broken Redis must not take writes down with it.

package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/siteforge/siteforge/internal/metrics"
)

// Store increments a caller's window counter, creating it with ttl on
// first write, and returns the new count.  The increment must be atomic.
type Store interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Limiter applies the max-per-window policy over a Store.
type Limiter struct {
	store  Store
	max    int
	window time.Duration
	logger *zap.Logger
}

// New constructs a Limiter.  max and window come from config
// (rate_limit.max_writes, rate_limit.window_seconds).
func New(store Store, max int, window time.Duration, logger *zap.Logger) *Limiter {
	return &Limiter{store: store, max: max, window: window, logger: logger}
}

// Allow records one write attempt for callerID and reports whether it may
// proceed, along with the remaining quota in the current window.
func (l *Limiter) Allow(ctx context.Context, callerID string) (bool, int) {
	n, err := l.store.Incr(ctx, callerID, l.window)
	if err != nil {
		// Fail open: availability beats strictness for a write cap.
		l.logger.Warn("rate-limit store unavailable, allowing write",
			zap.String("caller", callerID),
			zap.Error(err))
		return true, 0
	}

	if n > int64(l.max) {
		metrics.RateLimitDeniedTotal.Inc()
		return false, 0
	}
	return true, l.max - int(n)
}
