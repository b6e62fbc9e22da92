package admission

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"warden-hq/warden/pkg/admission/analytics"
	"warden-hq/warden/pkg/clock"
)

// Defaults holds the global default config for each algorithm kind.
type Defaults struct {
	TokenBucket   Config
	SlidingWindow Config
	Quota         Config
}

// Options configures a Limiter.
type Options struct {
	// Defaults are the global per-algorithm configs. All three must be
	// valid; New rejects the options otherwise.
	Defaults Defaults

	// Clock is the time source for all algorithms. Defaults to the system
	// clock.
	Clock clock.Clock

	// Logger receives one structured event per blocked decision. Nil
	// disables blocked-decision logging.
	Logger *slog.Logger

	// Metrics receives admission counters and timings. Nil disables them.
	Metrics *Metrics

	// Recorder receives every decision on a side channel (e.g. a history
	// archive). Nil disables forwarding.
	Recorder Recorder

	// Analytics configures the built-in aggregator.
	Analytics analytics.Options

	// MaxIdle is how long an identity may sit untouched before SweepIdle
	// evicts its state. Default: 24h.
	MaxIdle time.Duration

	// MaxEntries caps the number of tracked identity states. When a store
	// shard is full, its least recently touched entry is evicted, which is
	// equivalent to a Reset of that identity. Default: 100000.
	MaxEntries int
}

// Limiter is the admission-control core. It routes each check to the
// selected algorithm's per-identity state and exposes refill, reset, and
// reconfigure operations plus an observational analytics view.
//
// All operations are total functions over valid input: no internal retries,
// no blocking, no I/O. A blocked decision is a normal outcome of Check, not
// an error.
type Limiter struct {
	clk      clock.Clock
	logger   *slog.Logger
	metrics  *Metrics
	recorder Recorder

	store      *store
	aggregator *analytics.Aggregator
	maxIdle    time.Duration

	mu        sync.RWMutex
	defaults  map[Algorithm]Config
	overrides map[Algorithm]map[string]Config
}

// New creates a Limiter. It fails if any of the default configs is invalid.
func New(opts Options) (*Limiter, error) {
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 24 * time.Hour
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 100000
	}

	defaults := map[Algorithm]Config{
		AlgorithmTokenBucket:   opts.Defaults.TokenBucket,
		AlgorithmSlidingWindow: opts.Defaults.SlidingWindow,
		AlgorithmQuota:         opts.Defaults.Quota,
	}
	for algo, cfg := range defaults {
		if err := validateConfig(algo, cfg); err != nil {
			return nil, fmt.Errorf("default %s config: %w", algo, err)
		}
	}

	overrides := make(map[Algorithm]map[string]Config, len(defaults))
	for algo := range defaults {
		overrides[algo] = make(map[string]Config)
	}

	return &Limiter{
		clk:        opts.Clock,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		recorder:   opts.Recorder,
		store:      newStore(opts.Clock, opts.MaxEntries),
		aggregator: analytics.NewAggregator(opts.Analytics),
		maxIdle:    opts.MaxIdle,
		defaults:   defaults,
		overrides:  overrides,
	}, nil
}

// Check decides whether a unit of work costing cost units may proceed right
// now for the given identity under the selected algorithm. State for the
// identity is created lazily on first check.
func (l *Limiter) Check(identity string, cost int64, algo Algorithm) (Result, error) {
	if !algo.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	if cost <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidCost, cost)
	}

	// Wall clock, not the injected one: the histogram measures real check
	// latency, not decision time.
	start := time.Now()

	cfg := l.configFor(algo, identity)
	state := l.store.getOrCreate(algo, identity, func() identityLimiter {
		// Re-resolve under the shard lock. Configure installs the override
		// before deleting state, so any creation that survives the delete
		// must see the new config, never the snapshot taken above.
		cfg = l.configFor(algo, identity)
		return newLimiterState(algo, cfg, l.clk)
	})

	res := state.Check(cost)
	l.observe(identity, algo, cost, cfg, res)
	l.metrics.ObserveCheckDuration(string(algo), time.Since(start).Seconds())
	return res, nil
}

// Refill restores the identity's budget for one algorithm: the bucket back
// to full, the window cleared, the quota counter zeroed. A no-op for
// identities with no state, since fresh state starts with a full budget.
func (l *Limiter) Refill(identity string, algo Algorithm) error {
	if !algo.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	if state, ok := l.store.get(algo, identity); ok {
		state.Refill()
	}
	return nil
}

// Reset deletes the identity's state for one algorithm entirely; the next
// check re-creates it fresh. Resetting twice in a row is the same as once.
func (l *Limiter) Reset(identity string, algo Algorithm) error {
	if !algo.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	l.store.delete(algo, identity)
	return nil
}

// Configure installs a per-identity config override for one algorithm and
// resets that identity's state: a fresh bucket, window, or quota begins
// immediately and any in-flight admission counts are lost.
//
// Invalid configs are rejected before any state mutation, leaving prior
// state for the identity unchanged.
func (l *Limiter) Configure(identity string, algo Algorithm, cfg Config) error {
	if !algo.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	if err := validateConfig(algo, cfg); err != nil {
		return err
	}

	l.mu.Lock()
	l.overrides[algo][identity] = cfg
	l.mu.Unlock()

	l.store.delete(algo, identity)
	return nil
}

// SetDefaults replaces the global default config for one algorithm kind.
// Existing per-identity state keeps the config it was created with until it
// is reset or evicted; per-identity overrides are unaffected.
func (l *Limiter) SetDefaults(algo Algorithm, cfg Config) error {
	if !algo.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	if err := validateConfig(algo, cfg); err != nil {
		return err
	}

	l.mu.Lock()
	l.defaults[algo] = cfg
	l.mu.Unlock()
	return nil
}

// Analytics builds the aggregated statistics view as of now.
func (l *Limiter) Analytics() analytics.Snapshot {
	return l.aggregator.Snapshot(l.clk.Now())
}

// SweepIdle evicts state for identities untouched longer than the
// configured idle bound and returns how many were evicted. Eviction of an
// idle identity is equivalent to Reset.
func (l *Limiter) SweepIdle() int {
	evicted := l.store.sweep(l.clk.Now().Add(-l.maxIdle))
	l.metrics.AddEvictions(evicted)
	l.metrics.SetTrackedIdentities(l.store.size())
	return evicted
}

// Size returns the number of tracked identity states across all algorithms.
func (l *Limiter) Size() int {
	return l.store.size()
}

// configFor resolves the effective config for an identity: its override if
// one is installed, the algorithm default otherwise.
func (l *Limiter) configFor(algo Algorithm, identity string) Config {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if cfg, ok := l.overrides[algo][identity]; ok {
		return cfg
	}
	return l.defaults[algo]
}

// observe fans the decision out to metrics, analytics, the optional
// recorder, and the blocked-decision log. None of these can change or delay
// the decision.
func (l *Limiter) observe(identity string, algo Algorithm, cost int64, cfg Config, res Result) {
	now := l.clk.Now()

	l.metrics.RecordCheck(string(algo), res.Allowed)

	quotaRatio := -1.0
	if algo == AlgorithmQuota && cfg.MaxRequests > 0 {
		quotaRatio = float64(cfg.MaxRequests-res.Remaining) / float64(cfg.MaxRequests)
	}

	l.aggregator.Record(analytics.Decision{
		Identity:   identity,
		Algorithm:  string(algo),
		Cost:       cost,
		Allowed:    res.Allowed,
		Timestamp:  now,
		QuotaRatio: quotaRatio,
	})

	if l.recorder != nil {
		l.recorder.RecordDecision(DecisionEvent{
			Identity:  identity,
			Algorithm: algo,
			Cost:      cost,
			Allowed:   res.Allowed,
			Remaining: res.Remaining,
			Timestamp: now,
		})
	}

	if !res.Allowed && l.logger != nil {
		l.logger.Warn("admission blocked",
			"identity", identity,
			"algorithm", string(algo),
			"cost", cost,
			"remaining", res.Remaining,
			"retry_after", res.RetryAfter,
		)
	}
}

// newLimiterState creates fresh per-identity state for an algorithm kind.
func newLimiterState(algo Algorithm, cfg Config, clk clock.Clock) identityLimiter {
	switch algo {
	case AlgorithmTokenBucket:
		return NewTokenBucket(cfg, clk)
	case AlgorithmSlidingWindow:
		return NewSlidingWindow(cfg, clk)
	case AlgorithmQuota:
		return NewQuotaWindow(cfg, clk)
	default:
		// Unreachable: callers validate the algorithm first.
		panic(fmt.Sprintf("admission: no state constructor for algorithm %q", algo))
	}
}

// validateConfig checks the fields an algorithm kind actually uses.
// Failures are caller errors, never silently clamped.
func validateConfig(algo Algorithm, cfg Config) error {
	switch algo {
	case AlgorithmTokenBucket:
		if cfg.Capacity <= 0 {
			return fmt.Errorf("%w: capacity must be positive, got %v", ErrInvalidConfiguration, cfg.Capacity)
		}
		if cfg.RefillRate <= 0 {
			return fmt.Errorf("%w: refill rate must be positive, got %v", ErrInvalidConfiguration, cfg.RefillRate)
		}
	case AlgorithmSlidingWindow, AlgorithmQuota:
		if cfg.Window <= 0 {
			return fmt.Errorf("%w: window must be positive, got %v", ErrInvalidConfiguration, cfg.Window)
		}
		if cfg.MaxRequests <= 0 {
			return fmt.Errorf("%w: max requests must be positive, got %v", ErrInvalidConfiguration, cfg.MaxRequests)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	return nil
}
