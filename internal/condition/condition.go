// Package condition compiles structured watch conditions.
//
// A condition is a disjunction of filter conjunctions. The same value can be
// evaluated in memory against a record snapshot (through CEL) and rendered as
// a parameterised SQL fragment for the watched table, so the index seed scan
// and the incremental updater agree on which objects are watched.
package condition

import (
	"fmt"

	"github.com/syntrixbase/datewatch/pkg/model"
)

// Set is a disjunction of conjunctions. A nil set, or a set holding an empty
// conjunction, matches every record.
type Set []model.Filters

// Of returns a set with a single conjunction.
func Of(filters model.Filters) Set {
	if len(filters) == 0 {
		return nil
	}
	return Set{filters}
}

// Union merges the given sets. If any of them matches everything the result
// matches everything.
func Union(sets ...Set) Set {
	var out Set
	for _, s := range sets {
		if s.MatchesAll() {
			return nil
		}
		out = append(out, s...)
	}
	return out
}

// MatchesAll reports whether the set places no restriction on records.
func (s Set) MatchesAll() bool {
	if len(s) == 0 {
		return true
	}
	for _, term := range s {
		if len(term) == 0 {
			return true
		}
	}
	return false
}

// Validate checks every filter of every conjunction.
func (s Set) Validate() error {
	for i, term := range s {
		for j, f := range term {
			if !f.Validate() {
				return fmt.Errorf("%w: term %d filter %d (%s %s)", model.ErrInvalidCondition, i, j, f.Field, f.Op)
			}
		}
	}
	return nil
}

// Fields returns the distinct field names referenced by the set.
func (s Set) Fields() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, term := range s {
		for _, f := range term {
			if _, ok := seen[f.Field]; ok {
				continue
			}
			seen[f.Field] = struct{}{}
			out = append(out, f.Field)
		}
	}
	return out
}
