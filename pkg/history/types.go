package history

import (
	"context"
	"time"
)

// Event is one archived admission decision.
type Event struct {
	// ID uniquely identifies the event (UUID, assigned on append).
	ID string `json:"id"`

	// Identity is the caller the decision applied to.
	Identity string `json:"identity"`

	// Algorithm is the strategy that produced the decision.
	Algorithm string `json:"algorithm"`

	// Cost is the number of units the request asked for.
	Cost int64 `json:"cost"`

	// Allowed indicates whether the request was admitted.
	Allowed bool `json:"allowed"`

	// Remaining is the budget left after the decision.
	Remaining int64 `json:"remaining"`

	// Timestamp is when the decision was made.
	Timestamp time.Time `json:"timestamp"`
}

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	// Identity restricts results to one identity when non-empty.
	Identity string

	// Since excludes events before this instant when non-zero.
	Since time.Time

	// Until excludes events at or after this instant when non-zero.
	Until time.Time

	// BlockedOnly restricts results to blocked decisions.
	BlockedOnly bool

	// Limit bounds the number of returned events; 0 means no bound.
	Limit int
}

// Backend stores archived events. Implementations must be safe for
// concurrent use.
type Backend interface {
	// Append stores one event.
	Append(ctx context.Context, ev *Event) error

	// Query returns events matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]*Event, error)

	// Prune removes events older than the cutoff and returns how many were
	// deleted.
	Prune(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases backend resources.
	Close() error
}
