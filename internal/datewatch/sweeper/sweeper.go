// Package sweeper fires watcher callbacks whose notify time fell between an
// indexed field's watermark and now.
//
// A sweep runs the reconciler, captures now, then for every indexed field
// reads the entries that could be due for any watcher of the field and fires
// each watcher whose notify time t = value + offset satisfies
// lastcheck < t <= now. The watermark then moves to now, so consecutive sweeps
// partition time into half-open intervals and each pair fires once.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/syntrixbase/datewatch/internal/condition"
	"github.com/syntrixbase/datewatch/internal/datewatch/metrics"
	"github.com/syntrixbase/datewatch/internal/datewatch/reconciler"
	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// Config holds sweeper configuration.
type Config struct {
	// Delay between capturing now and scanning, covering index writes that
	// commit within the same second.
	Delay time.Duration
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{Delay: time.Second}
}

// Watchers looks up the live watcher group of a field.
type Watchers interface {
	Group(table, field string) (datewatch.Group, bool)
}

// Reconciler is run at the start of every sweep.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconciler.Result, error)
}

// Result summarises one sweep.
type Result struct {
	RunID    string
	Now      int64
	Fields   int
	Notified int
	Failed   int
}

// Sweeper runs sweeps. Callers must not run two sweeps concurrently.
type Sweeper struct {
	cfg        Config
	reconciler Reconciler
	watchers   Watchers
	index      store.IndexStore
	source     store.EntitySource
	clock      datewatch.Clock
	metrics    metrics.Metrics
	logger     *slog.Logger
}

// New creates a new Sweeper.
func New(cfg Config, rec Reconciler, watchers Watchers, index store.IndexStore, source store.EntitySource, clock datewatch.Clock, m metrics.Metrics, logger *slog.Logger) *Sweeper {
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if clock == nil {
		clock = datewatch.SystemClock{}
	}
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		cfg:        cfg,
		reconciler: rec,
		watchers:   watchers,
		index:      index,
		source:     source,
		clock:      clock,
		metrics:    m,
		logger:     logger.With("component", "datewatch-sweeper"),
	}
}

// Sweep performs one sweep. Callback failures are logged and counted; store
// failures abort the sweep and leave the current field's watermark in place.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	start := time.Now()
	res, err := s.sweep(ctx)
	s.metrics.ObserveSweep(time.Since(start), err != nil)
	return res, err
}

func (s *Sweeper) sweep(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString()}

	if _, err := s.reconciler.Reconcile(ctx); err != nil {
		return res, fmt.Errorf("reconcile: %w", err)
	}

	fields, err := s.index.ListFields(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list indexed fields: %w", err)
	}
	if len(fields) == 0 {
		return res, nil
	}

	res.Now = s.clock.Now().Unix()
	if err := sleep(ctx, s.cfg.Delay); err != nil {
		return res, err
	}

	logger := s.logger.With("run", res.RunID)
	cache := newSnapshotCache(s.source)
	programs := make(map[string]*condition.Program)

	for _, f := range fields {
		if ctx.Err() != nil {
			return res, model.WrapError(ctx.Err())
		}
		g, ok := s.watchers.Group(f.Table, f.Field)
		if !ok {
			continue
		}
		if err := s.sweepField(ctx, logger, f, g, res.Now, cache, programs, &res); err != nil {
			return res, err
		}
		if err := s.index.SetLastCheck(ctx, f.ID, res.Now); err != nil {
			return res, fmt.Errorf("failed to advance watermark of %s.%s: %w", f.Table, f.Field, err)
		}
		res.Fields++
	}

	if res.Notified > 0 || res.Failed > 0 {
		logger.Info("Sweep finished", "fields", res.Fields, "notified", res.Notified, "failed", res.Failed)
	} else {
		logger.Debug("Sweep finished", "fields", res.Fields)
	}
	return res, nil
}

func (s *Sweeper) sweepField(
	ctx context.Context,
	logger *slog.Logger,
	f datewatch.IndexedField,
	g datewatch.Group,
	now int64,
	cache *snapshotCache,
	programs map[string]*condition.Program,
	res *Result,
) error {
	entries, err := s.index.Window(ctx, f.ID, f.LastCheck-g.MaxOffset, now-g.MinOffset)
	if err != nil {
		return fmt.Errorf("failed to read window of %s.%s: %w", f.Table, f.Field, err)
	}

	for _, e := range entries {
		for _, w := range g.Watchers {
			t := e.Value + w.OffsetSeconds()
			if t <= f.LastCheck || t > now {
				continue
			}

			if g.Mixed() && len(w.Condition) > 0 {
				match, err := s.matches(ctx, w, e.ObjectID, cache, programs)
				if err != nil {
					if errors.Is(err, model.ErrInvalidCondition) {
						logger.Error("Malformed watch condition", "watcher", w.Key(), "objectId", e.ObjectID, "error", err)
						continue
					}
					return err
				}
				if !match {
					continue
				}
			}

			n := datewatch.NewNotification(res.RunID, w, e.ObjectID, e.Value, cache)
			if err := invoke(ctx, w.Callback, n); err != nil {
				res.Failed++
				s.metrics.IncCallbackFailure(w.Component)
				logger.Error("Watcher callback failed",
					"watcher", w.Key(),
					"component", w.Component,
					"objectId", e.ObjectID,
					"value", e.Value,
					"error", err)
				continue
			}
			res.Notified++
			s.metrics.IncNotification(f.Table, f.Field)
		}
	}
	return nil
}

// matches re-checks a watcher's own condition when its group mixes conditions.
// A vanished object never matches.
func (s *Sweeper) matches(ctx context.Context, w datewatch.Definition, objectID int64, cache *snapshotCache, programs map[string]*condition.Program) (bool, error) {
	prg, ok := programs[w.Key()]
	if !ok {
		var err error
		prg, err = condition.Compile(condition.Of(w.Condition))
		if err != nil {
			return false, err
		}
		programs[w.Key()] = prg
	}

	rec, err := cache.Snapshot(ctx, w.Table, objectID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s %d: %w", w.Table, objectID, err)
	}
	return prg.Match(rec)
}

func invoke(ctx context.Context, cb datewatch.Callback, n *datewatch.Notification) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = datewatch.Recovered(rec)
		}
	}()
	return cb(ctx, n)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return model.WrapError(ctx.Err())
	case <-timer.C:
		return nil
	}
}
