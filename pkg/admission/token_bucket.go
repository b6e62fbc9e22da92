package admission

import (
	"math"
	"sync"
	"time"

	"warden-hq/warden/pkg/clock"
)

// TokenBucket implements the token bucket algorithm for one identity.
//
// The bucket holds fractional tokens up to a capacity and refills at a
// constant rate. Each check refills based on elapsed time, then consumes the
// request's cost if enough tokens are available. Bursts up to the full
// capacity are allowed after an idle period.
//
// # Invariant
//
// 0 <= tokens <= capacity holds after every operation.
//
// # Thread Safety
//
// TokenBucket is thread-safe. The whole refill-then-consume sequence runs
// under a single mutex so concurrent checks on the same identity cannot
// jointly overspend the budget.
type TokenBucket struct {
	cfg   Config
	clock clock.Clock

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a bucket for a single identity. The bucket starts
// full (cold start full bucket).
//
// A zero RefillRate is accepted here: with an empty bucket it blocks the
// identity permanently until reconfigured. Limiter.Configure rejects such a
// config; constructing one directly is how that state is exercised in tests.
func NewTokenBucket(cfg Config, clk clock.Clock) *TokenBucket {
	return &TokenBucket{
		cfg:        cfg,
		clock:      clk,
		tokens:     cfg.Capacity,
		lastRefill: clk.Now(),
	}
}

// Check attempts to consume cost tokens.
func (tb *TokenBucket) Check(cost int64) Result {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.clock.Now()
	tb.refillLocked(now)

	resetAt := now
	if tb.cfg.RefillRate > 0 {
		full := tb.cfg.Capacity / tb.cfg.RefillRate
		resetAt = now.Add(time.Duration(full * float64(time.Second)))
	}

	if tb.tokens >= float64(cost) {
		tb.tokens -= float64(cost)
		return Result{
			Allowed:   true,
			Remaining: int64(math.Floor(tb.tokens)),
			ResetAt:   resetAt,
		}
	}

	var retryAfter time.Duration
	if tb.cfg.RefillRate > 0 {
		deficit := float64(cost) - tb.tokens
		retryAfter = time.Duration(math.Ceil(deficit/tb.cfg.RefillRate)) * time.Second
	}

	return Result{
		Allowed:    false,
		Remaining:  int64(math.Floor(tb.tokens)),
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}

// Refill forces the bucket back to full capacity.
func (tb *TokenBucket) Refill() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.cfg.Capacity
	tb.lastRefill = tb.clock.Now()
}

// Remaining returns the whole tokens currently available, after refilling
// for elapsed time.
func (tb *TokenBucket) Remaining() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(tb.clock.Now())
	return int64(math.Floor(tb.tokens))
}

// refillLocked adds tokens for the time elapsed since the last refill,
// capped at capacity. Caller must hold the lock.
func (tb *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed <= 0 {
		tb.lastRefill = now
		return
	}

	tb.tokens += elapsed * tb.cfg.RefillRate
	if tb.tokens > tb.cfg.Capacity {
		tb.tokens = tb.cfg.Capacity
	}
	tb.lastRefill = now
}
