// Package scheduler runs sweeps on a fixed interval and on demand.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/syntrixbase/datewatch/internal/datewatch/sweeper"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
)

// Sweeper performs one sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (sweeper.Result, error)
}

// Config contains configuration for the scheduler.
type Config struct {
	// Interval between sweeps
	Interval time.Duration
	// RunOnStart sweeps once immediately after Start
	RunOnStart bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Interval:   time.Minute,
		RunOnStart: true,
	}
}

// Scheduler triggers sweeps serially. Sweep errors are logged and never stop
// the loop.
type Scheduler struct {
	sweeper Sweeper
	config  Config
	logger  *slog.Logger

	trigger chan struct{}

	mu         sync.RWMutex
	running    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	lastRun    time.Time
	lastResult sweeper.Result
	lastErr    error
	runs       int
}

// New creates a scheduler.
func New(s Sweeper, config Config, logger *slog.Logger) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		sweeper: s,
		config:  config,
		logger:  logger.With("component", "datewatch-scheduler"),
		trigger: make(chan struct{}, 1),
	}
}

// Start starts the loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(loopCtx)

	s.logger.Info("scheduler started", "interval", s.config.Interval)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests a sweep as soon as the current one, if any, finishes.
// Requests made while one is already pending are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.run(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx)
		case <-s.trigger:
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	res, err := s.sweep(ctx)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastResult = res
	s.lastErr = err
	s.runs++
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("sweep failed", "run_id", res.RunID, "error", err)
		return
	}
	if res.Notified > 0 || res.Failed > 0 {
		s.logger.Info("sweep completed",
			"run_id", res.RunID,
			"fields", res.Fields,
			"notified", res.Notified,
			"failed", res.Failed)
	}
}

// sweep runs one sweep and turns a panic into an error so the loop survives.
func (s *Scheduler) sweep(ctx context.Context) (res sweeper.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = datewatch.Recovered(rec)
		}
	}()
	return s.sweeper.Sweep(ctx)
}

// Status describes the most recent sweep.
type Status struct {
	Running    bool
	Runs       int
	LastRun    time.Time
	LastResult sweeper.Result
	LastError  error
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:    s.running,
		Runs:       s.runs,
		LastRun:    s.lastRun,
		LastResult: s.lastResult,
		LastError:  s.lastErr,
	}
}
