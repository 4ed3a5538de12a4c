package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/syntrixbase/datewatch/internal/core/pubsub"
	"github.com/syntrixbase/datewatch/pkg/datewatch"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// Emitter publishes change events for the intake to consume. Hosts call it
// after every committed write to a watched table.
type Emitter struct {
	pub pubsub.Publisher
}

// NewEmitter wraps a publisher created with PublisherOptions.
func NewEmitter(pub pubsub.Publisher) *Emitter {
	return &Emitter{pub: pub}
}

// Emit publishes ev on "changes.<table>".
func (e *Emitter) Emit(ctx context.Context, ev datewatch.ChangeEvent) error {
	if !model.IsIdentifier(ev.Table) {
		return fmt.Errorf("invalid table name %q", ev.Table)
	}
	if !ev.Kind.IsValid() {
		return fmt.Errorf("invalid change kind %q", ev.Kind)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode change event: %w", err)
	}
	return e.pub.Publish(ctx, ev.Table, data)
}

// Created emits a creation with the new snapshot.
func (e *Emitter) Created(ctx context.Context, table string, id int64, snapshot model.Record) error {
	return e.Emit(ctx, datewatch.ChangeEvent{Table: table, ObjectID: id, Kind: datewatch.ChangeCreated, Snapshot: snapshot})
}

// Updated emits an update. A nil snapshot makes the intake reload the object.
func (e *Emitter) Updated(ctx context.Context, table string, id int64, snapshot model.Record) error {
	return e.Emit(ctx, datewatch.ChangeEvent{Table: table, ObjectID: id, Kind: datewatch.ChangeUpdated, Snapshot: snapshot})
}

// Deleted emits a deletion.
func (e *Emitter) Deleted(ctx context.Context, table string, id int64) error {
	return e.Emit(ctx, datewatch.ChangeEvent{Table: table, ObjectID: id, Kind: datewatch.ChangeDeleted})
}
