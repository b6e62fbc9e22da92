package history

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"warden-hq/warden/pkg/admission"
)

// Archive adapts a Backend into an admission.Recorder. Decisions are queued
// on a bounded channel and written by a single background goroutine; when
// the queue is full, events are dropped and counted. The admission path is
// never delayed by the backend.
type Archive struct {
	backend Backend
	logger  *slog.Logger

	events  chan admission.DecisionEvent
	dropped atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewArchive creates an archive writing to the backend. bufferSize defaults
// to 1024 when non-positive. The background writer starts immediately.
func NewArchive(backend Backend, bufferSize int, logger *slog.Logger) *Archive {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Archive{
		backend: backend,
		logger:  logger.With("component", "history.archive"),
		events:  make(chan admission.DecisionEvent, bufferSize),
		stopCh:  make(chan struct{}),
	}

	a.wg.Add(1)
	go a.runWriter()

	return a
}

// RecordDecision implements admission.Recorder. It never blocks: when the
// buffer is full the event is dropped and counted.
func (a *Archive) RecordDecision(ev admission.DecisionEvent) {
	select {
	case a.events <- ev:
	default:
		a.dropped.Add(1)
	}
}

// Dropped returns the number of events dropped due to a full buffer.
func (a *Archive) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops the writer, drains buffered events, and closes the backend.
func (a *Archive) Close() error {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
	a.wg.Wait()
	return a.backend.Close()
}

// runWriter is the background goroutine appending events to the backend.
func (a *Archive) runWriter() {
	defer a.wg.Done()

	for {
		select {
		case ev := <-a.events:
			a.writeEvent(ev)
		case <-a.stopCh:
			// Drain what's buffered before exiting.
			for {
				select {
				case ev := <-a.events:
					a.writeEvent(ev)
				default:
					return
				}
			}
		}
	}
}

// writeEvent appends one decision to the backend.
func (a *Archive) writeEvent(ev admission.DecisionEvent) {
	err := a.backend.Append(context.Background(), &Event{
		ID:        uuid.NewString(),
		Identity:  ev.Identity,
		Algorithm: string(ev.Algorithm),
		Cost:      ev.Cost,
		Allowed:   ev.Allowed,
		Remaining: ev.Remaining,
		Timestamp: ev.Timestamp,
	})
	if err != nil {
		a.logger.Error("failed to archive decision", "error", err, "identity", ev.Identity)
	}
}
