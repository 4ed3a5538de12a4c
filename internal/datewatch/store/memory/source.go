package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/syntrixbase/datewatch/internal/condition"
	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// Source is a map backed store.EntitySource. Standalone deployments feed it
// from change events; tests use it as the watched tables.
type Source struct {
	mu     sync.RWMutex
	tables map[string]map[int64]model.Record
}

var _ store.EntitySource = (*Source)(nil)

// NewSource creates an empty source.
func NewSource() *Source {
	return &Source{tables: make(map[string]map[int64]model.Record)}
}

// Put stores a copy of the record under its "id" field.
func (s *Source) Put(table string, rec model.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[int64]model.Record)
		s.tables[table] = rows
	}
	rows[rec.ID()] = rec.Clone()
}

// Delete removes a row.
func (s *Source) Delete(table string, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table], id)
}

func (s *Source) Scan(ctx context.Context, table, field string, since int64, cond condition.Set, fn func(store.Entry) error) error {
	prg, err := condition.Compile(cond)
	if err != nil {
		return err
	}

	s.mu.RLock()
	rows := s.tables[table]
	ids := make([]int64, 0, len(rows))
	snap := make(map[int64]model.Record, len(rows))
	for id, r := range rows {
		ids = append(ids, id)
		snap[id] = r
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return model.WrapError(err)
		}
		rec := snap[id]
		value, ok := rec.Int64(field)
		if !ok || value < since {
			continue
		}
		match, err := prg.Match(rec)
		if err != nil {
			return err
		}
		if !match {
			continue
		}
		if err := fn(store.Entry{ObjectID: id, Value: value}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) Get(ctx context.Context, table string, id int64) (model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.tables[table][id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *Source) Exists(ctx context.Context, table string, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[table][id]
	return ok, nil
}
