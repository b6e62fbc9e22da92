// Package analytics aggregates admission decisions into rolling statistics.
//
// The Aggregator consumes a stream of decisions and produces, on demand,
// totals, rejection rates, a rolling admitted-per-second rate with its peak,
// the identities with the most blocked requests, and the identities close to
// exhausting their fixed-window quota.
//
// The aggregator is purely observational: it never influences admission
// outcomes, takes none of the admission locks, and can be discarded and
// rebuilt without affecting the correctness of checks. Snapshots are built
// copy-on-read so concurrent recording is never blocked for long.
package analytics
