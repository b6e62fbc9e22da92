// Package history archives admission decisions for later inspection.
//
// The archive is a side channel: decisions flow in through a bounded buffer
// and are written by a background goroutine, so a slow or failing backend
// can never delay an admission check. When the buffer is full, events are
// dropped and counted rather than blocking.
//
// Two backends are provided: an in-memory ring for tests and small
// deployments, and a SQLite backend for durable decision history. The
// admission core itself stays in-memory either way; the archive is purely
// observational and can be discarded without affecting decisions.
package history
