package admission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweeper evicts idle identity state on a cron schedule. Unbounded identity
// growth from transient callers (rotating IPs, one-off API keys) is a
// resource leak in a long-running service; the sweep bounds it.
type Sweeper struct {
	limiter *Limiter
	cron    *cron.Cron
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewSweeper creates a sweeper for the given limiter.
func NewSweeper(limiter *Limiter, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		limiter: limiter,
		cron:    cron.New(),
		logger:  logger.With("component", "admission.sweeper"),
	}
}

// Start begins scheduled sweeping using standard cron syntax, for example
// "*/5 * * * *" for every five minutes. An empty schedule disables the
// sweeper. The sweeper stops when the context is cancelled.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping sweeper")
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	if _, err := s.cron.AddFunc(schedule, s.runSweep); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("eviction sweeper started", "schedule", schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runSweep executes one sweep cycle.
func (s *Sweeper) runSweep() {
	evicted := s.limiter.SweepIdle()
	if evicted > 0 {
		s.logger.Info("evicted idle identity state", "evicted", evicted)
	} else {
		s.logger.Debug("sweep completed, nothing idle")
	}
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("eviction sweeper stopped")
	}
}

// IsRunning reports whether the sweeper is active.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
