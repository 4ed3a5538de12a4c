// Package store defines the persistence contracts of the date index.
package store

import (
	"context"

	"github.com/syntrixbase/datewatch/internal/condition"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// Entry is an (objectid, value) pair written into the index.
type Entry struct {
	ObjectID int64
	Value    int64
}

// IndexStore persists indexed fields and their upcoming entries.
// Implementations must allow concurrent single-row writes during a sweep.
type IndexStore interface {
	// ListFields returns every indexed field ordered by id.
	ListFields(ctx context.Context) ([]datewatch.IndexedField, error)
	// FieldsForTable returns the indexed fields of one table.
	FieldsForTable(ctx context.Context, table string) ([]datewatch.IndexedField, error)
	// CreateField inserts a field row and returns it with its id.
	CreateField(ctx context.Context, f datewatch.IndexedField) (datewatch.IndexedField, error)
	// DeleteField removes a field and all of its entries.
	DeleteField(ctx context.Context, id int64) error
	// SetLastCheck advances the watermark. A value lower than the stored one is ignored.
	SetLastCheck(ctx context.Context, id int64, lastCheck int64) error

	UpsertEntry(ctx context.Context, fieldID, objectID, value int64) error
	InsertEntries(ctx context.Context, fieldID int64, entries []Entry) error
	DeleteEntry(ctx context.Context, fieldID, objectID int64) error
	// DeleteObjectEntries removes the entries of one object across several fields.
	DeleteObjectEntries(ctx context.Context, fieldIDs []int64, objectID int64) error
	// Entries returns every entry of a field ordered by (value, objectid).
	Entries(ctx context.Context, fieldID int64) ([]datewatch.UpcomingEntry, error)
	// Window returns the entries with lower < value <= upper ordered by (value, objectid).
	Window(ctx context.Context, fieldID int64, lower, upper int64) ([]datewatch.UpcomingEntry, error)

	Close(ctx context.Context) error
}

// EntitySource reads the watched tables of the host.
type EntitySource interface {
	// Scan calls fn for every row of table whose field is >= since and which
	// matches cond. Rows whose field is not numeric are skipped.
	Scan(ctx context.Context, table, field string, since int64, cond condition.Set, fn func(Entry) error) error
	// Get returns one row. model.ErrNotFound is returned when it does not exist.
	Get(ctx context.Context, table string, id int64) (model.Record, error)
	// Exists reports whether the row is present.
	Exists(ctx context.Context, table string, id int64) (bool, error)
}
