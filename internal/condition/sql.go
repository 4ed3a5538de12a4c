package condition

import (
	"fmt"
	"strings"

	"github.com/syntrixbase/datewatch/pkg/model"
)

// Placeholder returns the bind marker for the n-th (1-based) argument.
type Placeholder func(n int) string

// Dollar renders PostgreSQL style markers ($1, $2, ...).
func Dollar(n int) string { return fmt.Sprintf("$%d", n) }

// Question renders SQLite/MySQL style markers.
func Question(int) string { return "?" }

var sqlOps = map[model.FilterOp]string{
	model.OpEq:  "=",
	model.OpNe:  "<>",
	model.OpGt:  ">",
	model.OpGte: ">=",
	model.OpLt:  "<",
	model.OpLte: "<=",
}

// SQL renders the set as a WHERE fragment with bound arguments. Argument
// numbering starts at first. An empty fragment means "no restriction".
func SQL(s Set, ph Placeholder, first int) (string, []interface{}, error) {
	if s.MatchesAll() {
		return "", nil, nil
	}
	if err := s.Validate(); err != nil {
		return "", nil, err
	}

	var args []interface{}
	next := func(v interface{}) string {
		args = append(args, v)
		return ph(first + len(args) - 1)
	}

	terms := make([]string, 0, len(s))
	for _, conj := range s {
		parts := make([]string, 0, len(conj))
		for _, f := range conj {
			col := QuoteIdent(f.Field)
			if f.Op == model.OpIn {
				list, _ := f.Value.([]interface{})
				if len(list) == 0 {
					parts = append(parts, "1 = 0")
					continue
				}
				marks := make([]string, len(list))
				for i, item := range list {
					marks[i] = next(item)
				}
				parts = append(parts, fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")))
				continue
			}
			op, ok := sqlOps[f.Op]
			if !ok {
				return "", nil, fmt.Errorf("%w: unsupported operator: %s", model.ErrInvalidCondition, f.Op)
			}
			parts = append(parts, fmt.Sprintf("%s %s %s", col, op, next(f.Value)))
		}
		terms = append(terms, "("+strings.Join(parts, " AND ")+")")
	}
	return "(" + strings.Join(terms, " OR ") + ")", args, nil
}

// QuoteIdent quotes an identifier that already passed model.IsIdentifier.
func QuoteIdent(name string) string {
	return `"` + name + `"`
}
