package admission

import (
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"warden-hq/warden/pkg/clock"
)

// shardCount is the number of independent stripes in the state store.
// Identity keys hash across shards so unrelated identities rarely contend
// on the same lock.
const shardCount = 64

// identityLimiter is the per-identity state held by the store: one of
// TokenBucket, SlidingWindow, or QuotaWindow.
type identityLimiter interface {
	Check(cost int64) Result
	Refill()
}

// store is a striped map of per-identity, per-algorithm limiter state.
//
// Each shard guards its own map with a mutex, so creation and lookup of
// state for a brand-new identity is a single atomic get-or-insert: two
// concurrent callers can never both create and stomp state for the same key.
// The per-identity critical section for a check is the entry's own mutex,
// held inside the limiter implementations.
type store struct {
	clock      clock.Clock
	maxEntries int // per shard; 0 means unbounded

	shards [shardCount]storeShard
}

type storeShard struct {
	mu      sync.Mutex
	entries map[string]*storeEntry
}

type storeEntry struct {
	limiter  identityLimiter
	lastSeen time.Time
}

// newStore creates a store. maxEntries bounds the total number of tracked
// identity states across all shards; the oldest entry in a full shard is
// evicted to make room, which is equivalent to a Reset of that identity.
func newStore(clk clock.Clock, maxEntries int) *store {
	s := &store{clock: clk}
	if maxEntries > 0 {
		perShard := maxEntries / shardCount
		if perShard < 1 {
			perShard = 1
		}
		s.maxEntries = perShard
	}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*storeEntry)
	}
	return s
}

// stateKey namespaces an identity by algorithm kind: state for one algorithm
// is never shared with another for the same identity.
func stateKey(algo Algorithm, identity string) string {
	return string(algo) + ":" + identity
}

func (s *store) shardFor(key string) *storeShard {
	return &s.shards[xxhash.Sum64String(key)%shardCount]
}

// getOrCreate returns the limiter state for the key, creating it with
// create() if absent. The lookup-or-insert is atomic per shard.
func (s *store) getOrCreate(algo Algorithm, identity string, create func() identityLimiter) identityLimiter {
	key := stateKey(algo, identity)
	shard := s.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[key]
	if !ok {
		if s.maxEntries > 0 && len(shard.entries) >= s.maxEntries {
			shard.evictOldestLocked()
		}
		entry = &storeEntry{limiter: create()}
		shard.entries[key] = entry
	}
	entry.lastSeen = s.clock.Now()
	return entry.limiter
}

// get returns existing limiter state without creating it.
func (s *store) get(algo Algorithm, identity string) (identityLimiter, bool) {
	key := stateKey(algo, identity)
	shard := s.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.entries[key]
	if !ok {
		return nil, false
	}
	entry.lastSeen = s.clock.Now()
	return entry.limiter, true
}

// delete removes the state for an identity and algorithm. The next check
// re-creates it fresh.
func (s *store) delete(algo Algorithm, identity string) {
	key := stateKey(algo, identity)
	shard := s.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.entries, key)
}

// sweep removes entries not touched since the cutoff and returns how many
// were evicted.
func (s *store) sweep(olderThan time.Time) int {
	evicted := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for key, entry := range shard.entries {
			if entry.lastSeen.Before(olderThan) {
				delete(shard.entries, key)
				evicted++
			}
		}
		shard.mu.Unlock()
	}
	return evicted
}

// size returns the number of tracked identity states.
func (s *store) size() int {
	n := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		n += len(shard.entries)
		shard.mu.Unlock()
	}
	return n
}

// evictOldestLocked drops the least recently touched entry in the shard.
// Caller must hold the shard lock.
func (sh *storeShard) evictOldestLocked() {
	var (
		oldestKey  string
		oldestTime time.Time
		found      bool
	)
	for key, entry := range sh.entries {
		if !found || entry.lastSeen.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.lastSeen
			found = true
		}
	}
	if found {
		delete(sh.entries, oldestKey)
	}
}
