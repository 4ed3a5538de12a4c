// Package memory provides in-process implementations of the datewatch stores.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// entryItem orders entries by value, then object id.
type entryItem struct {
	value    int64
	objectID int64
	id       int64
}

func lessEntry(a, b entryItem) bool {
	if a.value != b.value {
		return a.value < b.value
	}
	return a.objectID < b.objectID
}

// fieldIndex holds the entries of one indexed field.
type fieldIndex struct {
	field datewatch.IndexedField
	tree  *btree.BTreeG[entryItem]
	byObj map[int64]entryItem
}

func newFieldIndex(f datewatch.IndexedField) *fieldIndex {
	return &fieldIndex{
		field: f,
		tree:  btree.NewG[entryItem](32, lessEntry),
		byObj: make(map[int64]entryItem),
	}
}

// IndexStore is a btree backed store.IndexStore.
type IndexStore struct {
	mu      sync.RWMutex
	fields  map[int64]*fieldIndex
	nextFID int64
	nextEID int64
}

var _ store.IndexStore = (*IndexStore)(nil)

// NewIndexStore creates an empty index.
func NewIndexStore() *IndexStore {
	return &IndexStore{fields: make(map[int64]*fieldIndex)}
}

func (s *IndexStore) ListFields(ctx context.Context) ([]datewatch.IndexedField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(datewatch.IndexedField) bool { return true }), nil
}

func (s *IndexStore) FieldsForTable(ctx context.Context, table string) ([]datewatch.IndexedField, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(f datewatch.IndexedField) bool { return f.Table == table }), nil
}

func (s *IndexStore) collect(keep func(datewatch.IndexedField) bool) []datewatch.IndexedField {
	out := make([]datewatch.IndexedField, 0, len(s.fields))
	for _, fi := range s.fields {
		if keep(fi.field) {
			out = append(out, fi.field)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *IndexStore) CreateField(ctx context.Context, f datewatch.IndexedField) (datewatch.IndexedField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fi := range s.fields {
		if fi.field.Table == f.Table && fi.field.Field == f.Field {
			return datewatch.IndexedField{}, fmt.Errorf("indexed field %s.%s already exists", f.Table, f.Field)
		}
	}
	s.nextFID++
	f.ID = s.nextFID
	s.fields[f.ID] = newFieldIndex(f)
	return f, nil
}

func (s *IndexStore) DeleteField(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fields, id)
	return nil
}

func (s *IndexStore) SetLastCheck(ctx context.Context, id int64, lastCheck int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi, ok := s.fields[id]
	if !ok {
		return model.ErrNotFound
	}
	if lastCheck > fi.field.LastCheck {
		fi.field.LastCheck = lastCheck
	}
	return nil
}

func (s *IndexStore) UpsertEntry(ctx context.Context, fieldID, objectID, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi, ok := s.fields[fieldID]
	if !ok {
		return model.ErrNotFound
	}
	s.upsert(fi, objectID, value)
	return nil
}

func (s *IndexStore) upsert(fi *fieldIndex, objectID, value int64) {
	item := entryItem{value: value, objectID: objectID}
	if old, ok := fi.byObj[objectID]; ok {
		fi.tree.Delete(old)
		item.id = old.id
	} else {
		s.nextEID++
		item.id = s.nextEID
	}
	fi.tree.ReplaceOrInsert(item)
	fi.byObj[objectID] = item
}

func (s *IndexStore) InsertEntries(ctx context.Context, fieldID int64, entries []store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi, ok := s.fields[fieldID]
	if !ok {
		return model.ErrNotFound
	}
	for _, e := range entries {
		s.upsert(fi, e.ObjectID, e.Value)
	}
	return nil
}

func (s *IndexStore) DeleteEntry(ctx context.Context, fieldID, objectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fi, ok := s.fields[fieldID]; ok {
		deleteObject(fi, objectID)
	}
	return nil
}

func (s *IndexStore) DeleteObjectEntries(ctx context.Context, fieldIDs []int64, objectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range fieldIDs {
		if fi, ok := s.fields[id]; ok {
			deleteObject(fi, objectID)
		}
	}
	return nil
}

func deleteObject(fi *fieldIndex, objectID int64) {
	if old, ok := fi.byObj[objectID]; ok {
		fi.tree.Delete(old)
		delete(fi.byObj, objectID)
	}
}

func (s *IndexStore) Entries(ctx context.Context, fieldID int64) ([]datewatch.UpcomingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fi, ok := s.fields[fieldID]
	if !ok {
		return nil, nil
	}
	var out []datewatch.UpcomingEntry
	fi.tree.Ascend(func(item entryItem) bool {
		out = append(out, toEntry(fieldID, item))
		return true
	})
	return out, nil
}

func (s *IndexStore) Window(ctx context.Context, fieldID int64, lower, upper int64) ([]datewatch.UpcomingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fi, ok := s.fields[fieldID]
	if !ok || upper <= lower {
		return nil, nil
	}
	var out []datewatch.UpcomingEntry
	// lower is exclusive.
	fi.tree.AscendGreaterOrEqual(entryItem{value: lower + 1, objectID: math.MinInt64}, func(item entryItem) bool {
		if item.value > upper {
			return false
		}
		out = append(out, toEntry(fieldID, item))
		return true
	})
	return out, nil
}

func (s *IndexStore) Close(ctx context.Context) error {
	return nil
}

func toEntry(fieldID int64, item entryItem) datewatch.UpcomingEntry {
	return datewatch.UpcomingEntry{ID: item.id, FieldID: fieldID, ObjectID: item.objectID, Value: item.value}
}
