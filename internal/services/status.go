package services

import (
	"context"
	"fmt"
	"sort"
)

// FieldStatus describes one indexed field.
type FieldStatus struct {
	Table     string
	Field     string
	MaxOffset int64
	LastCheck int64
	Entries   int
	Watchers  []string
	// Orphaned is set when no live watcher covers the field any more. The
	// next reconciliation drops it.
	Orphaned bool
}

// Status reports the indexed fields together with the watchers behind them,
// ordered by table and field.
func (m *Manager) Status(ctx context.Context) ([]FieldStatus, error) {
	fields, err := m.index.ListFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed fields: %w", err)
	}

	out := make([]FieldStatus, 0, len(fields))
	for _, f := range fields {
		entries, err := m.index.Entries(ctx, f.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count entries of %s.%s: %w", f.Table, f.Field, err)
		}
		st := FieldStatus{
			Table:     f.Table,
			Field:     f.Field,
			MaxOffset: f.MaxOffset,
			LastCheck: f.LastCheck,
			Entries:   len(entries),
		}
		if g, ok := m.registry.Group(f.Table, f.Field); ok {
			st.Watchers = g.Keys()
		} else {
			st.Orphaned = true
		}
		out = append(out, st)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Field < out[j].Field
	})
	return out, nil
}
