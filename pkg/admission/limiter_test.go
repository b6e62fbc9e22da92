package admission

import (
	"errors"
	"sync"
	"testing"
	"time"

	"warden-hq/warden/pkg/clock"
)

func testDefaults() Defaults {
	return Defaults{
		TokenBucket:   Config{Capacity: 10, RefillRate: 1},
		SlidingWindow: Config{Window: time.Minute, MaxRequests: 5},
		Quota:         Config{Window: time.Hour, MaxRequests: 100},
	}
}

func newTestLimiter(t *testing.T, clk clock.Clock) *Limiter {
	t.Helper()
	l, err := New(Options{Defaults: testDefaults(), Clock: clk})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}
	return l
}

// captureRecorder collects forwarded decision events for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	events []DecisionEvent
}

func (c *captureRecorder) RecordDecision(ev DecisionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureRecorder) all() []DecisionEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DecisionEvent(nil), c.events...)
}

// ============================================================================
// Construction
// ============================================================================

func TestNew_RejectsInvalidDefaults(t *testing.T) {
	defaults := testDefaults()
	defaults.TokenBucket.RefillRate = 0

	_, err := New(Options{Defaults: defaults})
	if err == nil {
		t.Fatal("expected error for zero refill rate in defaults")
	}
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration, got %v", err)
	}
}

// ============================================================================
// Check Dispatch
// ============================================================================

func TestLimiter_CheckDispatchesPerAlgorithm(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newTestLimiter(t, clk)

	for _, algo := range []Algorithm{AlgorithmTokenBucket, AlgorithmSlidingWindow, AlgorithmQuota} {
		res, err := l.Check("tenant-a", 1, algo)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", algo, err)
		}
		if !res.Allowed {
			t.Errorf("%s: expected first check to be admitted", algo)
		}
	}

	if got := l.Size(); got != 3 {
		t.Errorf("expected 3 tracked states (one per algorithm), got %d", got)
	}
}

func TestLimiter_CheckRejectsUnknownAlgorithm(t *testing.T) {
	l := newTestLimiter(t, clock.NewManual(time.Now()))

	_, err := l.Check("tenant-a", 1, Algorithm("leaky_bucket"))
	if !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestLimiter_CheckRejectsNonPositiveCost(t *testing.T) {
	l := newTestLimiter(t, clock.NewManual(time.Now()))

	for _, cost := range []int64{0, -1} {
		_, err := l.Check("tenant-a", cost, AlgorithmTokenBucket)
		if !errors.Is(err, ErrInvalidCost) {
			t.Errorf("cost %d: expected ErrInvalidCost, got %v", cost, err)
		}
	}
	// Rejected checks must not create state.
	if got := l.Size(); got != 0 {
		t.Errorf("expected no state after rejected checks, got %d", got)
	}
}

func TestLimiter_StateIsolatedPerAlgorithmAndIdentity(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newTestLimiter(t, clk)

	// Exhaust tenant-a's token bucket.
	for i := 0; i < 10; i++ {
		l.Check("tenant-a", 1, AlgorithmTokenBucket)
	}
	if res, _ := l.Check("tenant-a", 1, AlgorithmTokenBucket); res.Allowed {
		t.Fatal("expected tenant-a's bucket to be exhausted")
	}

	// Same identity under a different algorithm is untouched.
	if res, _ := l.Check("tenant-a", 1, AlgorithmQuota); !res.Allowed {
		t.Error("expected tenant-a's quota to be independent of its bucket")
	}

	// A different identity under the same algorithm is untouched.
	if res, _ := l.Check("tenant-b", 1, AlgorithmTokenBucket); !res.Allowed {
		t.Error("expected tenant-b's bucket to be independent of tenant-a's")
	}
}

// ============================================================================
// Refill and Reset
// ============================================================================

func TestLimiter_RefillRestoresBudget(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newTestLimiter(t, clk)

	for i := 0; i < 10; i++ {
		l.Check("tenant-a", 1, AlgorithmTokenBucket)
	}
	if err := l.Refill("tenant-a", AlgorithmTokenBucket); err != nil {
		t.Fatalf("refill failed: %v", err)
	}

	res, _ := l.Check("tenant-a", 10, AlgorithmTokenBucket)
	if !res.Allowed {
		t.Error("expected full budget after refill")
	}
}

func TestLimiter_RefillWithoutStateIsNoop(t *testing.T) {
	l := newTestLimiter(t, clock.NewManual(time.Now()))

	if err := l.Refill("never-seen", AlgorithmQuota); err != nil {
		t.Errorf("refill of unseen identity should succeed, got %v", err)
	}
	if got := l.Size(); got != 0 {
		t.Errorf("refill must not create state, got %d tracked", got)
	}
}

func TestLimiter_ResetDeletesStateAndIsIdempotent(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newTestLimiter(t, clk)

	for i := 0; i < 5; i++ {
		l.Check("tenant-a", 1, AlgorithmSlidingWindow)
	}
	if res, _ := l.Check("tenant-a", 1, AlgorithmSlidingWindow); res.Allowed {
		t.Fatal("expected window to be full")
	}

	if err := l.Reset("tenant-a", AlgorithmSlidingWindow); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if err := l.Reset("tenant-a", AlgorithmSlidingWindow); err != nil {
		t.Errorf("second reset should be a no-op, got %v", err)
	}

	res, _ := l.Check("tenant-a", 1, AlgorithmSlidingWindow)
	if !res.Allowed {
		t.Error("expected fresh state after reset")
	}
}

// ============================================================================
// Configure
// ============================================================================

func TestLimiter_ConfigureOverridesAndResets(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newTestLimiter(t, clk)

	// Consume some budget under the default config.
	l.Check("tenant-a", 8, AlgorithmTokenBucket)

	err := l.Configure("tenant-a", AlgorithmTokenBucket, Config{Capacity: 2, RefillRate: 1})
	if err != nil {
		t.Fatalf("configure failed: %v", err)
	}

	// State was reset: the new bucket starts full at the override capacity.
	res, _ := l.Check("tenant-a", 2, AlgorithmTokenBucket)
	if !res.Allowed {
		t.Fatal("expected override capacity to be fully available")
	}
	if res, _ := l.Check("tenant-a", 1, AlgorithmTokenBucket); res.Allowed {
		t.Error("expected override capacity of 2 to be exhausted")
	}

	// Other identities keep the default config.
	if res, _ := l.Check("tenant-b", 10, AlgorithmTokenBucket); !res.Allowed {
		t.Error("expected tenant-b to keep the default capacity")
	}
}

func TestLimiter_ConfigureInvalidLeavesStateUntouched(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newTestLimiter(t, clk)

	// Burn 4 of 10 tokens.
	l.Check("tenant-a", 4, AlgorithmTokenBucket)

	err := l.Configure("tenant-a", AlgorithmTokenBucket, Config{Capacity: 5, RefillRate: 0})
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}

	// The failed configure must not have reset the bucket.
	res, _ := l.Check("tenant-a", 6, AlgorithmTokenBucket)
	if !res.Allowed {
		t.Fatal("expected the remaining 6 tokens to still be spendable")
	}
	if res, _ := l.Check("tenant-a", 1, AlgorithmTokenBucket); res.Allowed {
		t.Error("expected prior consumption to have been preserved")
	}
}

func TestLimiter_ConfigureRacingCheckNeverKeepsOldConfig(t *testing.T) {
	// A check in flight while Configure lands must not re-create state from
	// the pre-override config. With the manual clock frozen, a bucket built
	// from the override (capacity 1) can never admit cost 2; a bucket built
	// from the old default (capacity 10) always would.
	for i := 0; i < 200; i++ {
		clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
		l := newTestLimiter(t, clk)

		start := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			<-start
			l.Check("tenant-a", 1, AlgorithmTokenBucket)
		}()

		close(start)
		err := l.Configure("tenant-a", AlgorithmTokenBucket, Config{Capacity: 1, RefillRate: 1})
		if err != nil {
			t.Fatalf("configure failed: %v", err)
		}
		<-done

		res, err := l.Check("tenant-a", 2, AlgorithmTokenBucket)
		if err != nil {
			t.Fatalf("check failed: %v", err)
		}
		if res.Allowed {
			t.Fatalf("iteration %d: cost 2 admitted against override capacity 1; state built from the old config survived", i)
		}
	}
}

func TestLimiter_SetDefaultsAppliesToFreshStateOnly(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newTestLimiter(t, clk)

	// tenant-a has live state under the old default (capacity 10).
	l.Check("tenant-a", 1, AlgorithmTokenBucket)

	err := l.SetDefaults(AlgorithmTokenBucket, Config{Capacity: 3, RefillRate: 1})
	if err != nil {
		t.Fatalf("set defaults failed: %v", err)
	}

	// Existing state keeps the config it was created with.
	if res, _ := l.Check("tenant-a", 9, AlgorithmTokenBucket); !res.Allowed {
		t.Error("expected tenant-a to keep its original capacity until reset")
	}

	// Fresh identities pick up the new default.
	if res, _ := l.Check("tenant-new", 4, AlgorithmTokenBucket); res.Allowed {
		t.Error("expected tenant-new to be bounded by the new capacity of 3")
	}
}

// ============================================================================
// Analytics and Recording
// ============================================================================

func TestLimiter_AnalyticsCountsDecisions(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l := newTestLimiter(t, clk)

	// 5 admitted, then 3 blocked against the sliding window (max 5).
	for i := 0; i < 8; i++ {
		l.Check("tenant-a", 1, AlgorithmSlidingWindow)
	}

	snap := l.Analytics()
	if snap.TotalRequests != 8 {
		t.Errorf("expected 8 total, got %d", snap.TotalRequests)
	}
	if snap.AllowedRequests != 5 {
		t.Errorf("expected 5 allowed, got %d", snap.AllowedRequests)
	}
	if snap.BlockedRequests != 3 {
		t.Errorf("expected 3 blocked, got %d", snap.BlockedRequests)
	}
	if want := 3.0 / 8.0; snap.RejectionRate != want {
		t.Errorf("expected rejection rate %v, got %v", want, snap.RejectionRate)
	}
	if len(snap.TopOffenders) != 1 || snap.TopOffenders[0].Identity != "tenant-a" {
		t.Errorf("expected tenant-a as the only offender, got %+v", snap.TopOffenders)
	}
}

func TestLimiter_ForwardsDecisionsToRecorder(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := &captureRecorder{}

	l, err := New(Options{Defaults: testDefaults(), Clock: clk, Recorder: rec})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	l.Check("tenant-a", 2, AlgorithmQuota)

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(events))
	}
	ev := events[0]
	if ev.Identity != "tenant-a" || ev.Algorithm != AlgorithmQuota || ev.Cost != 2 || !ev.Allowed {
		t.Errorf("unexpected event: %+v", ev)
	}
}

// ============================================================================
// Eviction
// ============================================================================

func TestLimiter_SweepIdleEvictsStaleState(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	l, err := New(Options{Defaults: testDefaults(), Clock: clk, MaxIdle: time.Hour})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	l.Check("stale", 1, AlgorithmTokenBucket)

	clk.Advance(2 * time.Hour)
	l.Check("fresh", 1, AlgorithmTokenBucket)

	if evicted := l.SweepIdle(); evicted != 1 {
		t.Errorf("expected 1 evicted, got %d", evicted)
	}
	if got := l.Size(); got != 1 {
		t.Errorf("expected only the fresh identity tracked, got %d", got)
	}

	// Eviction is equivalent to a reset: the stale identity starts fresh.
	if res, _ := l.Check("stale", 10, AlgorithmTokenBucket); !res.Allowed {
		t.Error("expected evicted identity to start with a full budget")
	}
}

// ============================================================================
// Concurrency
// ============================================================================

func TestLimiter_ConcurrentChecksNoOverspend(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	defaults := testDefaults()
	defaults.Quota = Config{Window: time.Hour, MaxRequests: 25}

	l, err := New(Options{Defaults: defaults, Clock: clk})
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check("tenant-a", 1, AlgorithmQuota)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if res.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 25 {
		t.Errorf("expected exactly 25 admitted under concurrency, got %d", admitted)
	}
}
