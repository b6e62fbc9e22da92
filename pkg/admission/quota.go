package admission

import (
	"sync"
	"time"

	"warden-hq/warden/pkg/clock"
)

// QuotaWindow implements a fixed-window counter for one identity.
//
// Usage accumulates inside a window of fixed length. When the window
// elapses, the counter resets entirely and a new window begins at the
// current instant. Within one window, used is non-decreasing and never
// exceeds the limit.
//
// A fixed window admits up to twice the limit across a window boundary (the
// tail of one window plus the head of the next). That is inherent to the
// algorithm and is the accepted tradeoff for O(1) state; use the sliding
// window when boundary bursts matter.
//
// # Thread Safety
//
// QuotaWindow is thread-safe. The reset-then-evaluate sequence runs under a
// single mutex, so the transient used > limit state during reset is never
// observable.
type QuotaWindow struct {
	cfg   Config
	clock clock.Clock

	mu          sync.Mutex
	used        int64
	windowStart time.Time
}

// NewQuotaWindow creates a quota counter for a single identity with an
// untouched budget and a window starting now.
func NewQuotaWindow(cfg Config, clk clock.Clock) *QuotaWindow {
	return &QuotaWindow{
		cfg:         cfg,
		clock:       clk,
		windowStart: clk.Now(),
	}
}

// Check attempts to spend cost units of the window's budget.
func (q *QuotaWindow) Check(cost int64) Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	if now.After(q.windowStart.Add(q.cfg.Window)) {
		q.used = 0
		q.windowStart = now
	}

	resetAt := q.windowStart.Add(q.cfg.Window)

	if q.used+cost <= q.cfg.MaxRequests {
		q.used += cost
		return Result{
			Allowed:   true,
			Remaining: q.cfg.MaxRequests - q.used,
			ResetAt:   resetAt,
		}
	}

	return Result{
		Allowed:    false,
		Remaining:  q.cfg.MaxRequests - q.used,
		ResetAt:    resetAt,
		RetryAfter: ceilSeconds(resetAt.Sub(now)),
	}
}

// Refill zeroes the used counter and restarts the window at now.
func (q *QuotaWindow) Refill() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.used = 0
	q.windowStart = q.clock.Now()
}

// Used returns the budget consumed in the current window.
func (q *QuotaWindow) Used() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.used
}
