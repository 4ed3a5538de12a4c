// Package updater keeps the upcoming entries of one object in line with its
// latest state as change events arrive.
package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/syntrixbase/datewatch/internal/condition"
	"github.com/syntrixbase/datewatch/internal/datewatch/metrics"
	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// ErrInvalidEvent is returned for events that can never be applied.
var ErrInvalidEvent = errors.New("invalid change event")

// Watchers looks up the live watcher group of a field.
type Watchers interface {
	Group(table, field string) (datewatch.Group, bool)
}

// Updater applies change events to the index.
type Updater struct {
	watchers Watchers
	index    store.IndexStore
	source   store.EntitySource
	clock    datewatch.Clock
	metrics  metrics.Metrics
	logger   *slog.Logger

	mu       sync.RWMutex
	programs map[string]*condition.Program
}

// New creates a new Updater.
func New(watchers Watchers, index store.IndexStore, source store.EntitySource, clock datewatch.Clock, m metrics.Metrics, logger *slog.Logger) *Updater {
	if clock == nil {
		clock = datewatch.SystemClock{}
	}
	if m == nil {
		m = metrics.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{
		watchers: watchers,
		index:    index,
		source:   source,
		clock:    clock,
		metrics:  m,
		logger:   logger.With("component", "datewatch-updater"),
		programs: make(map[string]*condition.Program),
	}
}

// OnChange applies one change event. Store failures are returned so the
// caller can retry; a malformed condition only skips the affected field.
func (u *Updater) OnChange(ctx context.Context, ev datewatch.ChangeEvent) error {
	if !model.IsIdentifier(ev.Table) || !ev.Kind.IsValid() {
		return fmt.Errorf("%w: table=%q kind=%q", ErrInvalidEvent, ev.Table, ev.Kind)
	}

	fields, err := u.index.FieldsForTable(ctx, ev.Table)
	if err != nil {
		return fmt.Errorf("failed to load indexed fields for %s: %w", ev.Table, err)
	}
	if len(fields) == 0 {
		return nil
	}

	if ev.Kind == datewatch.ChangeDeleted {
		return u.onDelete(ctx, ev, fields)
	}

	snapshot := ev.Snapshot
	if snapshot == nil {
		snapshot, err = u.source.Get(ctx, ev.Table, ev.ObjectID)
		if errors.Is(err, model.ErrNotFound) {
			return u.deleteAll(ctx, ev, fields)
		}
		if err != nil {
			return fmt.Errorf("failed to load %s %d: %w", ev.Table, ev.ObjectID, err)
		}
	}

	now := u.clock.Now().Unix()
	for _, f := range fields {
		g, ok := u.watchers.Group(f.Table, f.Field)
		if !ok {
			// Stale field, dropped on the next reconciliation.
			continue
		}
		if err := u.applyField(ctx, f, g, ev.ObjectID, snapshot, now); err != nil {
			return err
		}
	}
	return nil
}

func (u *Updater) onDelete(ctx context.Context, ev datewatch.ChangeEvent, fields []datewatch.IndexedField) error {
	exists, err := u.source.Exists(ctx, ev.Table, ev.ObjectID)
	if err != nil {
		return fmt.Errorf("failed to confirm deletion of %s %d: %w", ev.Table, ev.ObjectID, err)
	}
	if exists {
		u.logger.Warn("Ignoring delete event for existing object", "table", ev.Table, "objectId", ev.ObjectID)
		return nil
	}
	return u.deleteAll(ctx, ev, fields)
}

func (u *Updater) deleteAll(ctx context.Context, ev datewatch.ChangeEvent, fields []datewatch.IndexedField) error {
	ids := make([]int64, len(fields))
	for i, f := range fields {
		ids[i] = f.ID
	}
	if err := u.index.DeleteObjectEntries(ctx, ids, ev.ObjectID); err != nil {
		return fmt.Errorf("failed to delete entries of %s %d: %w", ev.Table, ev.ObjectID, err)
	}
	u.metrics.IncIndexMutation(ev.Table, metrics.OpDelete)
	return nil
}

func (u *Updater) applyField(ctx context.Context, f datewatch.IndexedField, g datewatch.Group, objectID int64, snapshot model.Record, now int64) error {
	prg, err := u.program(g)
	if err == nil {
		var match bool
		match, err = prg.Match(snapshot)
		if err == nil && !match {
			return u.remove(ctx, f, objectID)
		}
	}
	if err != nil {
		u.logger.Error("Malformed watch condition, object left unindexed",
			"table", f.Table,
			"field", f.Field,
			"objectId", objectID,
			"watchers", g.Keys(),
			"error", err)
		return nil
	}

	value, ok := snapshot.Int64(f.Field)
	if !ok || value+f.MaxOffset < now {
		return u.remove(ctx, f, objectID)
	}

	if err := u.index.UpsertEntry(ctx, f.ID, objectID, value); err != nil {
		return fmt.Errorf("failed to index %s.%s for %d: %w", f.Table, f.Field, objectID, err)
	}
	u.metrics.IncIndexMutation(f.Table, metrics.OpUpsert)
	return nil
}

func (u *Updater) remove(ctx context.Context, f datewatch.IndexedField, objectID int64) error {
	if err := u.index.DeleteEntry(ctx, f.ID, objectID); err != nil {
		return fmt.Errorf("failed to unindex %s.%s for %d: %w", f.Table, f.Field, objectID, err)
	}
	u.metrics.IncIndexMutation(f.Table, metrics.OpDelete)
	return nil
}

// program returns the compiled group condition, cached by its content.
func (u *Updater) program(g datewatch.Group) (*condition.Program, error) {
	set := condition.Set(g.Conditions())
	if set.MatchesAll() {
		return nil, nil
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidCondition, err)
	}
	key := string(raw)

	u.mu.RLock()
	prg, ok := u.programs[key]
	u.mu.RUnlock()
	if ok {
		return prg, nil
	}

	prg, err = condition.Compile(set)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	u.programs[key] = prg
	u.mu.Unlock()
	return prg, nil
}
