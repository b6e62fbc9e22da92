package admission

import (
	"testing"
	"time"

	"warden-hq/warden/pkg/clock"
)

// ============================================================================
// Basic Behavior
// ============================================================================

func TestQuotaWindow_AdmitsUpToLimit(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	q := NewQuotaWindow(testWindowConfig(time.Hour, 5), clk)

	for i := 0; i < 5; i++ {
		if res := q.Check(1); !res.Allowed {
			t.Fatalf("check %d unexpectedly blocked", i+1)
		}
	}

	res := q.Check(1)
	if res.Allowed {
		t.Error("expected exhausted quota to block")
	}
	if res.Remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", res.Remaining)
	}
	if got := q.Used(); got != 5 {
		t.Errorf("blocked check must not consume budget: expected used 5, got %d", got)
	}
}

func TestQuotaWindow_UsedMonotonicWithinWindow(t *testing.T) {
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	q := NewQuotaWindow(testWindowConfig(time.Hour, 100), clk)

	prev := int64(0)
	for i := 0; i < 10; i++ {
		q.Check(3)
		clk.Advance(time.Minute)
		if got := q.Used(); got < prev {
			t.Fatalf("used decreased within the window: %d -> %d", prev, got)
		} else {
			prev = got
		}
	}
	if prev != 30 {
		t.Errorf("expected used 30, got %d", prev)
	}
}

// ============================================================================
// Window Reset
// ============================================================================

func TestQuotaWindow_ResetsStrictlyAfterWindowEnds(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewManual(base)
	q := NewQuotaWindow(testWindowConfig(time.Hour, 100), clk)

	q.Check(100)

	// Exactly at the boundary the window has not yet elapsed.
	clk.Set(base.Add(time.Hour))
	if res := q.Check(1); res.Allowed {
		t.Error("expected check exactly at the window boundary to block")
	}

	clk.Advance(time.Nanosecond)
	res := q.Check(1)
	if !res.Allowed {
		t.Fatal("expected fresh window strictly after the boundary")
	}
	if res.Remaining != 99 {
		t.Errorf("expected full fresh budget minus one, got %d remaining", res.Remaining)
	}
}

func TestQuotaWindow_NewWindowStartsAtResetInstant(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewManual(base)
	q := NewQuotaWindow(testWindowConfig(time.Hour, 10), clk)

	q.Check(1)

	// Jump far past several window lengths; the new window anchors at the
	// check instant, not at a multiple of the original start.
	jump := base.Add(5*time.Hour + 13*time.Minute)
	clk.Set(jump)

	res := q.Check(1)
	if !res.Allowed {
		t.Fatal("expected fresh window after long idle")
	}
	if want := jump.Add(time.Hour); !res.ResetAt.Equal(want) {
		t.Errorf("expected new window to end at %v, got %v", want, res.ResetAt)
	}
}

// ============================================================================
// Retry Hints and Refill
// ============================================================================

func TestQuotaWindow_RetryAfterUntilWindowEnd(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewManual(base)
	q := NewQuotaWindow(testWindowConfig(time.Hour, 1), clk)

	q.Check(1)

	clk.Advance(20 * time.Minute)
	res := q.Check(1)
	if res.Allowed {
		t.Fatal("expected blocked")
	}
	if res.RetryAfter != 40*time.Minute {
		t.Errorf("expected retry after 40m, got %v", res.RetryAfter)
	}
	if want := base.Add(time.Hour); !res.ResetAt.Equal(want) {
		t.Errorf("expected reset at %v, got %v", want, res.ResetAt)
	}
}

func TestQuotaWindow_RefillRestartsWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewManual(base)
	q := NewQuotaWindow(testWindowConfig(time.Hour, 5), clk)

	q.Check(5)
	clk.Advance(10 * time.Minute)
	q.Refill()

	res := q.Check(1)
	if !res.Allowed {
		t.Fatal("expected full budget after refill")
	}
	if want := base.Add(70 * time.Minute); !res.ResetAt.Equal(want) {
		t.Errorf("expected window restarted at refill instant, reset at %v, got %v", want, res.ResetAt)
	}
}
