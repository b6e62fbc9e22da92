package admission

import (
	"errors"
	"math"
	"time"
)

// Algorithm selects the throttling strategy used for a check.
type Algorithm string

const (
	// AlgorithmTokenBucket is a continuously refilling bucket that permits
	// bursts up to its capacity.
	AlgorithmTokenBucket Algorithm = "token_bucket"

	// AlgorithmSlidingWindow admits requests while the summed cost inside a
	// trailing window stays under a cap.
	AlgorithmSlidingWindow Algorithm = "sliding_window"

	// AlgorithmQuota is a fixed-window counter that resets entirely when the
	// window elapses.
	AlgorithmQuota Algorithm = "quota"
)

// Valid reports whether a is one of the implemented algorithm kinds.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmTokenBucket, AlgorithmSlidingWindow, AlgorithmQuota:
		return true
	}
	return false
}

// Config contains the tunable limits for a single algorithm kind.
// One Config applies per algorithm kind, globally by default and
// overridable per identity via Limiter.Configure.
type Config struct {
	// Capacity is the maximum number of tokens in a token bucket.
	Capacity float64 `yaml:"capacity"`

	// RefillRate is the number of tokens added per second to a token bucket.
	RefillRate float64 `yaml:"refill_rate"`

	// Window is the evaluation window for sliding-window and quota limits.
	Window time.Duration `yaml:"window"`

	// MaxRequests is the summed cost admitted per window for sliding-window
	// and quota limits.
	MaxRequests int64 `yaml:"max_requests"`
}

// Result is the outcome of an admission check.
//
// A blocked result (Allowed=false) is a normal, successful outcome of Check,
// not an error.
type Result struct {
	// Allowed indicates whether the unit of work may proceed.
	Allowed bool `json:"allowed"`

	// Remaining is the budget left after this decision, floored to a whole
	// unit.
	Remaining int64 `json:"remaining"`

	// ResetAt is when the budget is fully restored. For token buckets this
	// is a reporting convenience (time to reach full capacity from now);
	// the bucket refills continuously.
	ResetAt time.Time `json:"reset_at"`

	// RetryAfter suggests how long to wait before retrying. It is set only
	// when Allowed is false, and stays zero for a blocked identity whose
	// bucket can never refill (refill rate zero).
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// RetryAfterSeconds returns RetryAfter in whole seconds, rounded up.
// Suitable for a Retry-After response header.
func (r Result) RetryAfterSeconds() int64 {
	if r.RetryAfter <= 0 {
		return 0
	}
	return int64(math.Ceil(r.RetryAfter.Seconds()))
}

// DecisionEvent describes one admission decision for observational consumers
// (analytics, history archive, logging). It never influences the decision
// itself.
type DecisionEvent struct {
	Identity  string
	Algorithm Algorithm
	Cost      int64
	Allowed   bool
	Remaining int64
	Timestamp time.Time
}

// Recorder consumes decision events on a side channel. Implementations must
// not block; a slow recorder drops events rather than delaying admission.
type Recorder interface {
	RecordDecision(DecisionEvent)
}

// Error types for caller mistakes. All are returned synchronously and never
// retried internally; the core has no I/O and cannot partially fail.
var (
	// ErrInvalidConfiguration is returned by Configure for non-positive
	// capacity, refill rate, window, or request limits. Rejected before any
	// state mutation.
	ErrInvalidConfiguration = errors.New("invalid rate limit configuration")

	// ErrInvalidCost is returned when a check names a non-positive cost.
	// Rejected before touching state.
	ErrInvalidCost = errors.New("cost must be a positive integer")

	// ErrUnknownAlgorithm is returned when an operation names an algorithm
	// kind the core does not implement.
	ErrUnknownAlgorithm = errors.New("unknown rate limiting algorithm")
)

// ceilSeconds rounds d up to a whole number of seconds, clamping at zero.
func ceilSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	secs := math.Ceil(d.Seconds())
	return time.Duration(secs) * time.Second
}
