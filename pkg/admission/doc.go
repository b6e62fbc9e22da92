// Package admission decides, per caller identity, whether a unit of work may
// proceed right now under one of three interchangeable throttling strategies.
//
// # Overview
//
// The package implements three admission algorithms:
//
//   - Token Bucket: continuous refill, bursts up to capacity
//   - Sliding Window: timestamped cost log over a trailing window
//   - Quota: fixed-window counter with atomic reset
//
// The Limiter routes each check to the selected algorithm's per-identity
// state, which is created lazily on first use and kept in a sharded
// concurrent store:
//
//	limiter, err := admission.New(admission.Options{
//	    Defaults: admission.Defaults{
//	        TokenBucket:   admission.Config{Capacity: 100, RefillRate: 10},
//	        SlidingWindow: admission.Config{Window: time.Minute, MaxRequests: 500},
//	        Quota:         admission.Config{Window: 24 * time.Hour, MaxRequests: 10000},
//	    },
//	})
//
//	res, err := limiter.Check("user:123", 1, admission.AlgorithmTokenBucket)
//	if err != nil {
//	    // caller error: invalid cost or unknown algorithm
//	}
//	if !res.Allowed {
//	    // blocked; res.RetryAfter suggests when to come back
//	}
//
// # Time
//
// Algorithms never read the wall clock directly. They use an injected
// clock.Clock, so all refill and window math is deterministically testable
// with clock.Manual.
//
// # Thread Safety
//
// Identity state lives in a striped map (64 shards); get-or-insert is atomic
// per shard, and every check runs its full read-modify-write sequence under
// the state's own mutex. Concurrent checks against one identity can never
// jointly overspend its budget.
package admission
