// Package reconciler converges the persisted indexed fields with the live
// watcher set.
//
// Every (table, field) pair watched by at least one watcher gets an indexed
// field whose maxoffset is the largest watcher offset. New fields, and fields
// whose maxoffset grew, are (re)created with lastcheck = now and seeded by a
// full scan of the watched table. Fields whose group condition changed are
// reseeded under the new condition and keep their watermark. Fields nobody
// watches anymore are dropped.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syntrixbase/datewatch/internal/condition"
	"github.com/syntrixbase/datewatch/internal/datewatch/metrics"
	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// Watchers supplies the grouped live watcher set.
type Watchers interface {
	Groups() []datewatch.Group
}

// Result summarises one reconciliation.
type Result struct {
	Created  int
	Reseeded int
	Deleted  int
	Failed   int
	Seeded   int
}

// Changed reports whether the run mutated the index.
func (r Result) Changed() bool {
	return r.Created+r.Reseeded+r.Deleted > 0
}

// Reconciler reconciles watcher groups and indexed fields.
type Reconciler struct {
	watchers Watchers
	index    store.IndexStore
	source   store.EntitySource
	clock    datewatch.Clock
	metrics  metrics.Metrics
	logger   *slog.Logger
}

// New creates a new Reconciler.
func New(watchers Watchers, index store.IndexStore, source store.EntitySource, clock datewatch.Clock, m metrics.Metrics, logger *slog.Logger) *Reconciler {
	if clock == nil {
		clock = datewatch.SystemClock{}
	}
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		watchers: watchers,
		index:    index,
		source:   source,
		clock:    clock,
		metrics:  m,
		logger:   logger.With("component", "datewatch-reconciler"),
	}
}

type fieldKey struct {
	table string
	field string
}

// Reconcile performs a single reconciliation. Only failing to read the
// indexed fields is returned; per-field failures are logged and retried on
// the next run.
func (r *Reconciler) Reconcile(ctx context.Context) (Result, error) {
	var res Result

	groups := r.watchers.Groups()
	wanted := make(map[fieldKey]datewatch.Group, len(groups))
	for _, g := range groups {
		wanted[fieldKey{g.Table, g.Field}] = g
	}

	fields, err := r.index.ListFields(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list indexed fields: %w", err)
	}
	existing := make(map[fieldKey]datewatch.IndexedField, len(fields))
	for _, f := range fields {
		key := fieldKey{f.Table, f.Field}
		if _, ok := wanted[key]; !ok {
			if err := r.index.DeleteField(ctx, f.ID); err != nil {
				res.Failed++
				r.logger.Error("Failed to drop indexed field", "table", f.Table, "field", f.Field, "error", err)
				continue
			}
			res.Deleted++
			r.metrics.IncIndexMutation(f.Table, metrics.OpDrop)
			r.logger.Info("Dropped indexed field", "table", f.Table, "field", f.Field)
			continue
		}
		existing[key] = f
	}

	for _, g := range groups {
		if ctx.Err() != nil {
			return res, model.WrapError(ctx.Err())
		}
		f, ok := existing[fieldKey{g.Table, g.Field}]
		grown := !ok || g.MaxOffset > f.MaxOffset
		if !grown && g.ConditionHash() == f.CondHash {
			continue
		}

		want := datewatch.IndexedField{
			Table:     g.Table,
			Field:     g.Field,
			MaxOffset: g.MaxOffset,
			LastCheck: r.clock.Now().Unix(),
			CondHash:  g.ConditionHash(),
		}
		if !grown {
			// Condition change only: entries already due were handled under
			// the old condition.
			want.MaxOffset = f.MaxOffset
			want.LastCheck = f.LastCheck
		}

		if ok {
			if err := r.index.DeleteField(ctx, f.ID); err != nil {
				res.Failed++
				r.logger.Error("Failed to drop indexed field for reseed", "table", g.Table, "field", g.Field, "error", err)
				continue
			}
		}

		n, err := r.seed(ctx, want, condition.Set(g.Conditions()))
		if err != nil {
			res.Failed++
			r.metrics.IncSeedFailure(g.Table, g.Field)
			r.logger.Error("Failed to index field",
				"table", g.Table,
				"field", g.Field,
				"watchers", g.Keys(),
				"error", err)
			continue
		}
		res.Seeded += n
		if ok {
			res.Reseeded++
		} else {
			res.Created++
		}
	}

	if res.Changed() {
		r.logger.Info("Reconciled indexed fields",
			"created", res.Created,
			"reseeded", res.Reseeded,
			"deleted", res.Deleted,
			"seeded", res.Seeded)
	}
	return res, nil
}

// seed creates the field row and fills it with every row that can still fall
// due after its watermark. On failure the row is removed again so the next run
// starts from scratch.
func (r *Reconciler) seed(ctx context.Context, want datewatch.IndexedField, cond condition.Set) (int, error) {
	f, err := r.index.CreateField(ctx, want)
	if err != nil {
		return 0, err
	}

	var entries []store.Entry
	err = r.source.Scan(ctx, f.Table, f.Field, f.LastCheck-f.MaxOffset, cond, func(e store.Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err == nil {
		err = r.index.InsertEntries(ctx, f.ID, entries)
	}
	if err != nil {
		if derr := r.index.DeleteField(ctx, f.ID); derr != nil {
			r.logger.Error("Failed to remove partially seeded field", "table", f.Table, "field", f.Field, "error", derr)
		}
		return 0, err
	}

	r.metrics.IncIndexMutation(f.Table, metrics.OpSeed)
	return len(entries), nil
}
