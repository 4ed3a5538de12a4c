package sweeper

import (
	"context"
	"errors"
	"sync"

	"github.com/syntrixbase/datewatch/internal/datewatch/store"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

type snapshotKey struct {
	table string
	id    int64
}

type snapshot struct {
	rec   model.Record
	found bool
}

// snapshotCache fetches each object at most once per sweep and hands out
// copies so callbacks cannot alter what the next callback sees.
type snapshotCache struct {
	source store.EntitySource

	mu      sync.Mutex
	records map[snapshotKey]snapshot
}

var _ datewatch.SnapshotSource = (*snapshotCache)(nil)

func newSnapshotCache(source store.EntitySource) *snapshotCache {
	return &snapshotCache{source: source, records: make(map[snapshotKey]snapshot)}
}

func (c *snapshotCache) Snapshot(ctx context.Context, table string, id int64) (model.Record, error) {
	key := snapshotKey{table, id}

	c.mu.Lock()
	s, ok := c.records[key]
	c.mu.Unlock()

	if !ok {
		rec, err := c.source.Get(ctx, table, id)
		switch {
		case err == nil:
			s = snapshot{rec: rec, found: true}
		case errors.Is(err, model.ErrNotFound):
			s = snapshot{}
		default:
			return nil, err
		}
		c.mu.Lock()
		c.records[key] = s
		c.mu.Unlock()
	}

	if !s.found {
		return nil, model.ErrNotFound
	}
	return s.rec.Clone(), nil
}
