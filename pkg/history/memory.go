package history

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBackend keeps events in a bounded in-memory ring. The oldest events
// are overwritten once the capacity is reached. All data is lost when the
// process exits.
//
// MemoryBackend is thread-safe using sync.RWMutex.
type MemoryBackend struct {
	mu     sync.RWMutex
	events []*Event // ring buffer, len == cap once full
	next   int
	full   bool
}

// NewMemoryBackend creates a ring holding at most maxEvents entries.
// maxEvents defaults to 10000 when non-positive.
func NewMemoryBackend(maxEvents int) *MemoryBackend {
	if maxEvents <= 0 {
		maxEvents = 10000
	}
	return &MemoryBackend{
		events: make([]*Event, maxEvents),
	}
}

// Append stores one event, overwriting the oldest when full.
func (m *MemoryBackend) Append(ctx context.Context, ev *Event) error {
	if ev == nil {
		return fmt.Errorf("event cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[m.next] = ev
	m.next++
	if m.next == len(m.events) {
		m.next = 0
		m.full = true
	}
	return nil
}

// Query returns matching events, newest first.
func (m *MemoryBackend) Query(ctx context.Context, f Filter) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	for _, ev := range m.ordered() {
		if !matches(ev, f) {
			continue
		}
		out = append(out, ev)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Prune removes events older than the cutoff.
func (m *MemoryBackend) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]*Event, 0, len(m.events))
	deleted := 0
	for _, ev := range m.ordered() {
		if ev.Timestamp.Before(olderThan) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}

	// Rebuild the ring with survivors, oldest first.
	ring := make([]*Event, len(m.events))
	next := 0
	for i := len(kept) - 1; i >= 0; i-- {
		ring[next] = kept[i]
		next++
	}
	m.events = ring
	m.next = next % len(ring)
	m.full = next == len(ring)
	return deleted, nil
}

// Size returns the number of stored events.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.full {
		return len(m.events)
	}
	return m.next
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error {
	return nil
}

// ordered returns stored events newest first. Caller must hold a lock.
func (m *MemoryBackend) ordered() []*Event {
	var out []*Event
	for i := m.next - 1; i >= 0; i-- {
		if m.events[i] != nil {
			out = append(out, m.events[i])
		}
	}
	if m.full {
		for i := len(m.events) - 1; i >= m.next; i-- {
			if m.events[i] != nil {
				out = append(out, m.events[i])
			}
		}
	}
	return out
}

// matches reports whether an event passes the filter.
func matches(ev *Event, f Filter) bool {
	if f.Identity != "" && ev.Identity != f.Identity {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !ev.Timestamp.Before(f.Until) {
		return false
	}
	if f.BlockedOnly && ev.Allowed {
		return false
	}
	return true
}
