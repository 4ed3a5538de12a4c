package datewatch

import (
	"context"
	"sync"
	"time"

	"github.com/syntrixbase/datewatch/pkg/model"
)

// ChangeKind is the kind of change reported for an object.
type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// IsValid reports whether k is a known change kind.
func (k ChangeKind) IsValid() bool {
	switch k {
	case ChangeCreated, ChangeUpdated, ChangeDeleted:
		return true
	}
	return false
}

// ChangeEvent reports that an object of a watched table changed.
// Snapshot is required for created and updated events.
type ChangeEvent struct {
	Table    string       `json:"table"`
	ObjectID int64        `json:"objectId"`
	Kind     ChangeKind   `json:"kind"`
	Snapshot model.Record `json:"snapshot,omitempty"`
}

// IndexedField is the persisted tracking unit for one (table, field) pair.
type IndexedField struct {
	ID        int64
	Table     string
	Field     string
	MaxOffset int64
	LastCheck int64
	// CondHash is the ConditionHash of the group the entries were seeded for.
	CondHash  int64
}

// UpcomingEntry caches the raw field value of one watched object.
type UpcomingEntry struct {
	ID       int64
	FieldID  int64
	ObjectID int64
	Value    int64
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock stopped at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// SnapshotSource fetches full object snapshots for notifications.
type SnapshotSource interface {
	Snapshot(ctx context.Context, table string, id int64) (model.Record, error)
}

// Notification is passed to a watcher's callback.
type Notification struct {
	// RunID identifies the sweep that produced the notification.
	RunID      string
	Watcher    Definition
	ObjectID   int64
	Value      int64
	NotifyTime int64

	snapshots SnapshotSource
}

// NewNotification builds a notification. NotifyTime is derived from value and
// the watcher's offset.
func NewNotification(runID string, watcher Definition, objectID, value int64, src SnapshotSource) *Notification {
	return &Notification{
		RunID:      runID,
		Watcher:    watcher,
		ObjectID:   objectID,
		Value:      value,
		NotifyTime: value + watcher.OffsetSeconds(),
		snapshots:  src,
	}
}

// Snapshot returns a copy of any object, fetched at most once per sweep.
func (n *Notification) Snapshot(ctx context.Context, table string, id int64) (model.Record, error) {
	if n.snapshots == nil {
		return nil, model.ErrNotFound
	}
	return n.snapshots.Snapshot(ctx, table, id)
}

// Record returns a copy of the watched object.
func (n *Notification) Record(ctx context.Context) (model.Record, error) {
	return n.Snapshot(ctx, n.Watcher.Table, n.ObjectID)
}
