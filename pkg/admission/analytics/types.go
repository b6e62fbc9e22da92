package analytics

import "time"

// Decision is one admission outcome fed to the aggregator.
type Decision struct {
	// Identity is the caller the decision applies to.
	Identity string

	// Algorithm is the strategy that produced the decision.
	Algorithm string

	// Cost is the number of units the request asked for.
	Cost int64

	// Allowed indicates whether the request was admitted.
	Allowed bool

	// Timestamp is when the decision was made.
	Timestamp time.Time

	// QuotaRatio is the fraction of the fixed-window quota consumed after
	// this decision, or a negative value when the decision did not come
	// from the quota algorithm.
	QuotaRatio float64
}

// Snapshot is a read-only aggregated view built on demand. It carries no
// invariant on admission correctness.
type Snapshot struct {
	// TotalRequests counts every recorded decision.
	TotalRequests int64 `json:"total_requests"`

	// AllowedRequests counts admitted decisions.
	AllowedRequests int64 `json:"allowed_requests"`

	// BlockedRequests counts blocked decisions.
	BlockedRequests int64 `json:"blocked_requests"`

	// RejectionRate is BlockedRequests / TotalRequests, zero when nothing
	// has been recorded.
	RejectionRate float64 `json:"rejection_rate"`

	// CurrentRate is admitted events per second over the trailing 60s.
	CurrentRate float64 `json:"current_rate"`

	// PeakRate is the highest CurrentRate observed so far.
	PeakRate float64 `json:"peak_rate"`

	// LastRequest is the timestamp of the most recent decision.
	LastRequest time.Time `json:"last_request,omitzero"`

	// LastRejection is the timestamp of the most recent blocked decision.
	LastRejection time.Time `json:"last_rejection,omitzero"`

	// TopOffenders lists identities ordered by blocked count, descending.
	TopOffenders []Offender `json:"top_offenders,omitempty"`

	// NearQuota lists identities at or above the quota alert threshold.
	NearQuota []QuotaUsage `json:"near_quota,omitempty"`
}

// Offender is an identity with its blocked decision count.
type Offender struct {
	Identity string `json:"identity"`
	Blocked  int64  `json:"blocked"`
}

// QuotaUsage is an identity with its last observed quota consumption ratio.
type QuotaUsage struct {
	Identity string  `json:"identity"`
	Ratio    float64 `json:"ratio"`
}
