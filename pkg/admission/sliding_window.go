package admission

import (
	"sync"
	"time"

	"warden-hq/warden/pkg/clock"
)

// SlidingWindow implements a sliding-window log for one identity.
//
// Each admitted request is recorded with its timestamp and cost. A check
// prunes records older than the window, then admits the request only if the
// summed cost of the retained records plus the pending cost stays within the
// limit. The window slides continuously with the clock; there are no fixed
// reset boundaries.
//
// Memory is O(k) where k is the number of records currently inside the
// window; pruning on every check keeps k self-limiting.
//
// # Thread Safety
//
// SlidingWindow is thread-safe. Prune, evaluate, and commit run as a single
// critical section.
type SlidingWindow struct {
	cfg   Config
	clock clock.Clock

	mu      sync.Mutex
	records []requestRecord // ordered by timestamp ascending
}

// requestRecord is one admitted request inside the window.
type requestRecord struct {
	at   time.Time
	cost int64
}

// NewSlidingWindow creates an empty window for a single identity.
func NewSlidingWindow(cfg Config, clk clock.Clock) *SlidingWindow {
	return &SlidingWindow{cfg: cfg, clock: clk}
}

// Check attempts to admit a request of the given cost.
func (sw *SlidingWindow) Check(cost int64) Result {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.clock.Now()
	sw.pruneLocked(now)

	var used int64
	for _, r := range sw.records {
		used += r.cost
	}

	resetAt := now
	if len(sw.records) > 0 {
		resetAt = sw.records[0].at.Add(sw.cfg.Window)
	}

	total := used + cost
	if total <= sw.cfg.MaxRequests {
		sw.records = append(sw.records, requestRecord{at: now, cost: cost})
		return Result{
			Allowed:   true,
			Remaining: sw.cfg.MaxRequests - total,
			ResetAt:   resetAt,
		}
	}

	remaining := sw.cfg.MaxRequests - used
	if remaining < 0 {
		remaining = 0
	}

	var retryAfter time.Duration
	if len(sw.records) > 0 {
		retryAfter = ceilSeconds(sw.cfg.Window - now.Sub(sw.records[0].at))
	}

	return Result{
		Allowed:    false,
		Remaining:  remaining,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}

// Refill clears the window, forgetting all admitted requests.
func (sw *SlidingWindow) Refill() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.records = nil
}

// Count returns the number of records currently retained in the window.
func (sw *SlidingWindow) Count() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.pruneLocked(sw.clock.Now())
	return len(sw.records)
}

// pruneLocked drops records whose timestamp is at or before now - window.
// Caller must hold the lock.
func (sw *SlidingWindow) pruneLocked(now time.Time) {
	cutoff := now.Add(-sw.cfg.Window)

	i := 0
	for i < len(sw.records) && !sw.records[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		sw.records = append(sw.records[:0], sw.records[i:]...)
	}
}
