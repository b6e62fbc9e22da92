package analytics

import (
	"fmt"
	"testing"
	"time"
)

func decisionAt(ts time.Time, identity string, allowed bool) Decision {
	return Decision{
		Identity:   identity,
		Algorithm:  "token_bucket",
		Cost:       1,
		Allowed:    allowed,
		Timestamp:  ts,
		QuotaRatio: -1,
	}
}

// ============================================================================
// Counters
// ============================================================================

func TestAggregator_Counters(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := NewAggregator(Options{})

	for i := 0; i < 6; i++ {
		agg.Record(decisionAt(base, "tenant-a", true))
	}
	for i := 0; i < 2; i++ {
		agg.Record(decisionAt(base.Add(time.Second), "tenant-a", false))
	}

	snap := agg.Snapshot(base.Add(2 * time.Second))
	if snap.TotalRequests != 8 {
		t.Errorf("expected 8 total, got %d", snap.TotalRequests)
	}
	if snap.AllowedRequests != 6 {
		t.Errorf("expected 6 allowed, got %d", snap.AllowedRequests)
	}
	if snap.BlockedRequests != 2 {
		t.Errorf("expected 2 blocked, got %d", snap.BlockedRequests)
	}
	if want := 0.25; snap.RejectionRate != want {
		t.Errorf("expected rejection rate %v, got %v", want, snap.RejectionRate)
	}
	if !snap.LastRequest.Equal(base.Add(time.Second)) {
		t.Errorf("expected last request at %v, got %v", base.Add(time.Second), snap.LastRequest)
	}
	if !snap.LastRejection.Equal(base.Add(time.Second)) {
		t.Errorf("expected last rejection at %v, got %v", base.Add(time.Second), snap.LastRejection)
	}
}

func TestAggregator_EmptySnapshot(t *testing.T) {
	agg := NewAggregator(Options{})

	snap := agg.Snapshot(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if snap.TotalRequests != 0 || snap.RejectionRate != 0 || snap.CurrentRate != 0 {
		t.Errorf("expected zeroed snapshot, got %+v", snap)
	}
	if len(snap.TopOffenders) != 0 || len(snap.NearQuota) != 0 {
		t.Errorf("expected empty lists, got %+v", snap)
	}
}

// ============================================================================
// Rolling Rate
// ============================================================================

func TestAggregator_CurrentRateOverTrailingWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := NewAggregator(Options{})

	// 120 admitted spread over 60 seconds: rate is 2/sec.
	for i := 0; i < 120; i++ {
		agg.Record(decisionAt(base.Add(time.Duration(i/2)*time.Second), "tenant-a", true))
	}

	snap := agg.Snapshot(base.Add(59 * time.Second))
	if want := 2.0; snap.CurrentRate != want {
		t.Errorf("expected current rate %v, got %v", want, snap.CurrentRate)
	}

	// A minute later the window has slid past all of them.
	snap = agg.Snapshot(base.Add(3 * time.Minute))
	if snap.CurrentRate != 0 {
		t.Errorf("expected rate to decay to 0, got %v", snap.CurrentRate)
	}
	// Peak persists.
	if snap.PeakRate < 1.0 {
		t.Errorf("expected peak rate preserved, got %v", snap.PeakRate)
	}
}

// ============================================================================
// Offenders and Quota Alerts
// ============================================================================

func TestAggregator_TopOffendersSortedAndBounded(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := NewAggregator(Options{TopN: 2})

	for i := 0; i < 5; i++ {
		agg.Record(decisionAt(base, "worst", false))
	}
	for i := 0; i < 3; i++ {
		agg.Record(decisionAt(base, "middle", false))
	}
	agg.Record(decisionAt(base, "mild", false))

	snap := agg.Snapshot(base)
	if len(snap.TopOffenders) != 2 {
		t.Fatalf("expected list bounded to 2, got %d", len(snap.TopOffenders))
	}
	if snap.TopOffenders[0].Identity != "worst" || snap.TopOffenders[0].Blocked != 5 {
		t.Errorf("expected worst first with 5 blocks, got %+v", snap.TopOffenders[0])
	}
	if snap.TopOffenders[1].Identity != "middle" {
		t.Errorf("expected middle second, got %+v", snap.TopOffenders[1])
	}
}

func TestAggregator_NearQuotaThreshold(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := NewAggregator(Options{QuotaAlertThreshold: 0.8})

	record := func(identity string, ratio float64) {
		agg.Record(Decision{
			Identity:   identity,
			Algorithm:  "quota",
			Cost:       1,
			Allowed:    true,
			Timestamp:  base,
			QuotaRatio: ratio,
		})
	}

	record("hot", 0.95)
	record("warm", 0.80)
	record("cool", 0.50)

	snap := agg.Snapshot(base)
	if len(snap.NearQuota) != 2 {
		t.Fatalf("expected 2 identities near quota, got %d: %+v", len(snap.NearQuota), snap.NearQuota)
	}
	if snap.NearQuota[0].Identity != "hot" {
		t.Errorf("expected hot first, got %+v", snap.NearQuota[0])
	}
	if snap.NearQuota[1].Identity != "warm" {
		t.Errorf("expected warm at the threshold to be included, got %+v", snap.NearQuota[1])
	}
}

func TestAggregator_QuotaRatioUpdatesInPlace(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := NewAggregator(Options{})

	agg.Record(Decision{Identity: "t", Allowed: true, Timestamp: base, QuotaRatio: 0.9})
	agg.Record(Decision{Identity: "t", Allowed: true, Timestamp: base, QuotaRatio: 0.1})

	snap := agg.Snapshot(base)
	if len(snap.NearQuota) != 0 {
		t.Errorf("expected identity to leave the alert list after usage dropped, got %+v", snap.NearQuota)
	}
}

// ============================================================================
// Reset
// ============================================================================

func TestAggregator_Reset(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	agg := NewAggregator(Options{})

	for i := 0; i < 10; i++ {
		agg.Record(decisionAt(base, fmt.Sprintf("tenant-%d", i), i%2 == 0))
	}
	agg.Reset()

	snap := agg.Snapshot(base)
	if snap.TotalRequests != 0 || snap.PeakRate != 0 || len(snap.TopOffenders) != 0 {
		t.Errorf("expected cleared aggregator, got %+v", snap)
	}
	if !snap.LastRequest.IsZero() {
		t.Errorf("expected zero last request, got %v", snap.LastRequest)
	}
}
