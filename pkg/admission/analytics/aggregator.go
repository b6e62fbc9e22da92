package analytics

import (
	"sort"
	"sync"
	"time"
)

// rateWindowSeconds is the span of the rolling admitted-rate window.
const rateWindowSeconds = 60

// Options configures an Aggregator.
type Options struct {
	// TopN bounds the TopOffenders list in snapshots. Default: 10.
	TopN int

	// QuotaAlertThreshold is the consumption ratio at which an identity
	// appears in NearQuota. Default: 0.8.
	QuotaAlertThreshold float64
}

// Aggregator accumulates decision statistics.
//
// Record is cheap: it updates counters, a 60-slot per-second ring for the
// rolling rate, and two small maps. Snapshot copies everything out under the
// same lock, so readers see a consistent view without ever holding admission
// locks.
type Aggregator struct {
	topN      int
	threshold float64

	mu            sync.Mutex
	total         int64
	allowed       int64
	blocked       int64
	lastRequest   time.Time
	lastRejection time.Time
	peakRate      float64
	violations    map[string]int64
	quotaUsage    map[string]float64

	// perSecond is a ring of admitted counts keyed by unix second.
	perSecond [rateWindowSeconds]rateSlot
}

type rateSlot struct {
	second int64
	count  int64
}

// NewAggregator creates an aggregator with the given options.
func NewAggregator(opts Options) *Aggregator {
	if opts.TopN <= 0 {
		opts.TopN = 10
	}
	if opts.QuotaAlertThreshold <= 0 {
		opts.QuotaAlertThreshold = 0.8
	}
	return &Aggregator{
		topN:       opts.TopN,
		threshold:  opts.QuotaAlertThreshold,
		violations: make(map[string]int64),
		quotaUsage: make(map[string]float64),
	}
}

// Record folds one decision into the aggregate. It never blocks on anything
// beyond the aggregator's own mutex.
func (a *Aggregator) Record(d Decision) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.lastRequest = d.Timestamp

	if d.Allowed {
		a.allowed++
		a.addAdmittedLocked(d.Timestamp)
		rate := a.rateLocked(d.Timestamp)
		if rate > a.peakRate {
			a.peakRate = rate
		}
	} else {
		a.blocked++
		a.lastRejection = d.Timestamp
		a.violations[d.Identity]++
	}

	if d.QuotaRatio >= 0 {
		a.quotaUsage[d.Identity] = d.QuotaRatio
	}
}

// Snapshot builds the aggregated view as of now.
func (a *Aggregator) Snapshot(now time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := Snapshot{
		TotalRequests:   a.total,
		AllowedRequests: a.allowed,
		BlockedRequests: a.blocked,
		CurrentRate:     a.rateLocked(now),
		PeakRate:        a.peakRate,
		LastRequest:     a.lastRequest,
		LastRejection:   a.lastRejection,
	}
	if a.total > 0 {
		snap.RejectionRate = float64(a.blocked) / float64(a.total)
	}

	offenders := make([]Offender, 0, len(a.violations))
	for identity, blocked := range a.violations {
		offenders = append(offenders, Offender{Identity: identity, Blocked: blocked})
	}
	sort.Slice(offenders, func(i, j int) bool {
		if offenders[i].Blocked != offenders[j].Blocked {
			return offenders[i].Blocked > offenders[j].Blocked
		}
		return offenders[i].Identity < offenders[j].Identity
	})
	if len(offenders) > a.topN {
		offenders = offenders[:a.topN]
	}
	snap.TopOffenders = offenders

	for identity, ratio := range a.quotaUsage {
		if ratio >= a.threshold {
			snap.NearQuota = append(snap.NearQuota, QuotaUsage{Identity: identity, Ratio: ratio})
		}
	}
	sort.Slice(snap.NearQuota, func(i, j int) bool {
		if snap.NearQuota[i].Ratio != snap.NearQuota[j].Ratio {
			return snap.NearQuota[i].Ratio > snap.NearQuota[j].Ratio
		}
		return snap.NearQuota[i].Identity < snap.NearQuota[j].Identity
	})

	return snap
}

// Reset discards all accumulated statistics.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total = 0
	a.allowed = 0
	a.blocked = 0
	a.lastRequest = time.Time{}
	a.lastRejection = time.Time{}
	a.peakRate = 0
	a.violations = make(map[string]int64)
	a.quotaUsage = make(map[string]float64)
	a.perSecond = [rateWindowSeconds]rateSlot{}
}

// addAdmittedLocked bumps the per-second slot for the timestamp, reclaiming
// the slot if it belonged to an older second. Caller must hold the lock.
func (a *Aggregator) addAdmittedLocked(at time.Time) {
	sec := at.Unix()
	slot := &a.perSecond[sec%rateWindowSeconds]
	if slot.second != sec {
		slot.second = sec
		slot.count = 0
	}
	slot.count++
}

// rateLocked sums admitted counts within the trailing window ending at now
// and divides by the window span. Caller must hold the lock.
func (a *Aggregator) rateLocked(now time.Time) float64 {
	cutoff := now.Unix() - rateWindowSeconds
	var sum int64
	for i := range a.perSecond {
		if a.perSecond[i].second > cutoff && a.perSecond[i].second <= now.Unix() {
			sum += a.perSecond[i].count
		}
	}
	return float64(sum) / float64(rateWindowSeconds)
}
