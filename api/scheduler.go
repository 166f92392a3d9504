/*
scheduler.go - Recurring expense scheduler

PURPOSE:
  Periodically runs the recurrence sweep (engine.ProcessDueRecurring) so
  due templates become expenses without anyone calling the cron endpoint.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Sweeps once immediately on Start
  - When a Redis locker is configured, each sweep first takes a
    distributed lock so only one instance sweeps at a time. A lock held
    elsewhere means "skip this tick", not an error.
  - Without Redis the engine's conditional nextRun claim still prevents
    two sweeps from creating the same occurrence; the lock only saves
    the wasted work.

CONFIGURATION:
  - Interval: How often to sweep (default: 1 hour)
  - Enabled:  Whether the ticker runs at all (RunNow works regardless)
  - LockTTL:  How long a sweep may hold the lock (default: 5 minutes)

USAGE:
  scheduler := NewRecurrenceScheduler(eng, logger)
  scheduler.Locker = redislock.New(redisClient)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunRecurring endpoint (manual sweep)
  - engine/recurrence.go: ProcessDueRecurring
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/warp/splitledger/engine"
)

// SweepLockKey is the Redis key guarding the recurring sweep.
const SweepLockKey = "splitledger:recurring-sweep"

// ErrSweepLocked is returned by RunNow when another instance holds the lock.
var ErrSweepLocked = errors.New("recurring sweep already running")

// RecurrenceScheduler runs recurrence sweeps on a ticker.
type RecurrenceScheduler struct {
	Engine   *engine.Engine
	Interval time.Duration
	Enabled  bool
	Locker   *redislock.Client // optional
	LockTTL  time.Duration
	Metrics  *Metrics // optional
	Logger   *slog.Logger
	Clock    func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRecurrenceScheduler creates a scheduler with default settings.
func NewRecurrenceScheduler(eng *engine.Engine, logger *slog.Logger) *RecurrenceScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecurrenceScheduler{
		Engine:   eng,
		Interval: time.Hour,
		Enabled:  true,
		LockTTL:  5 * time.Minute,
		Logger:   logger,
		Clock:    time.Now,
	}
}

// Start begins the ticker. Calling Start twice is a no-op.
func (s *RecurrenceScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("recurring scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.Logger.Info("recurring scheduler started", "interval", s.Interval.String(), "locked", s.Locker != nil)
}

// Stop halts the ticker and waits for an in-flight sweep to finish.
func (s *RecurrenceScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("recurring scheduler stopped")
}

func (s *RecurrenceScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.tick(ctx)
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-stop:
			return
		}
	}
}

func (s *RecurrenceScheduler) tick(ctx context.Context) {
	_, err := s.RunNow(ctx)
	switch {
	case errors.Is(err, ErrSweepLocked):
		s.Logger.Debug("recurring sweep skipped, lock held elsewhere")
	case err != nil && !errors.Is(err, context.Canceled):
		s.Logger.Error("recurring sweep failed", "error", err)
	}
}

// RunNow performs one sweep, taking the distributed lock when configured.
func (s *RecurrenceScheduler) RunNow(ctx context.Context) (*engine.RecurrenceResult, error) {
	if s.Locker != nil {
		lock, err := s.Locker.Obtain(ctx, SweepLockKey, s.LockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			s.observe("locked", nil)
			return nil, ErrSweepLocked
		}
		if err != nil {
			s.observe("error", nil)
			return nil, fmt.Errorf("obtain sweep lock: %w", err)
		}
		defer func() {
			// The TTL cleans up if release fails.
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				s.Logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	result, err := s.Engine.ProcessDueRecurring(ctx, s.Clock())
	if err != nil {
		s.observe("error", result)
		return result, err
	}
	s.observe("ok", result)
	return result, nil
}

func (s *RecurrenceScheduler) observe(outcome string, result *engine.RecurrenceResult) {
	if s.Metrics == nil {
		return
	}
	var created, skipped int
	if result != nil {
		created, skipped = len(result.Created), len(result.Skipped)
	}
	s.Metrics.observeSweep(outcome, created, skipped)
}
