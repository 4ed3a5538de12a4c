package datewatch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/syntrixbase/datewatch/pkg/model"
)

// Group aggregates the watchers of one (table, field) pair.
type Group struct {
	Table     string
	Field     string
	Watchers  []Definition
	MinOffset int64
	MaxOffset int64

	conditions  []model.Filters
	unfiltered  bool
	homogeneous bool
	condHash    int64
}

// Conditions is the disjunction of the watchers' conditions. Nil means every
// record of the table is relevant.
func (g Group) Conditions() []model.Filters {
	if g.unfiltered {
		return nil
	}
	return g.conditions
}

// Mixed reports whether watchers of the group disagree on their condition, in
// which case a record matching the group may still not match a given watcher.
func (g Group) Mixed() bool {
	return !g.homogeneous
}

// ConditionHash fingerprints the group condition independent of watcher
// order. It is zero when every record is relevant.
func (g Group) ConditionHash() int64 {
	return g.condHash
}

// Keys returns the keys of the group's watchers.
func (g Group) Keys() []string {
	keys := make([]string, len(g.Watchers))
	for i, w := range g.Watchers {
		keys[i] = w.Key()
	}
	return keys
}

func buildGroups(defs []Definition) map[groupKey]*Group {
	groups := make(map[groupKey]*Group)
	condKeys := make(map[groupKey]map[string]struct{})

	for _, d := range defs {
		k := groupKey{d.Table, d.Field}
		off := d.OffsetSeconds()
		g, ok := groups[k]
		if !ok {
			g = &Group{Table: d.Table, Field: d.Field, MinOffset: off, MaxOffset: off}
			groups[k] = g
			condKeys[k] = make(map[string]struct{})
		}
		g.Watchers = append(g.Watchers, d)
		if off < g.MinOffset {
			g.MinOffset = off
		}
		if off > g.MaxOffset {
			g.MaxOffset = off
		}

		if len(d.Condition) == 0 {
			g.unfiltered = true
		} else {
			g.conditions = append(g.conditions, d.Condition)
		}
		condKeys[k][conditionKey(d.Condition)] = struct{}{}
	}

	for k, g := range groups {
		g.homogeneous = len(condKeys[k]) <= 1
		if !g.unfiltered {
			g.condHash = hashConditions(condKeys[k])
		}
	}
	return groups
}

func conditionKey(fs model.Filters) string {
	if len(fs) == 0 {
		return ""
	}
	b, err := json.Marshal(fs)
	if err != nil {
		return fmt.Sprintf("%v", fs)
	}
	return string(b)
}

func hashConditions(keys map[string]struct{}) int64 {
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	h := int64(xxhash.Sum64String(strings.Join(sorted, "\n")))
	if h == 0 {
		h = 1
	}
	return h
}
