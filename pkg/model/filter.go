package model

import "regexp"

// FilterOp defines the supported filter operators.
type FilterOp string

const (
	OpEq  FilterOp = "==" // Equal
	OpNe  FilterOp = "!=" // Not equal
	OpGt  FilterOp = ">"  // Greater than
	OpGte FilterOp = ">=" // Greater than or equal
	OpLt  FilterOp = "<"  // Less than
	OpLte FilterOp = "<=" // Less than or equal
	OpIn  FilterOp = "in" // Value in list
)

var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// IsIdentifier reports whether name is safe to use as a table or column name.
func IsIdentifier(name string) bool {
	return identRegex.MatchString(name)
}

// ValidOps returns all valid filter operators.
func ValidOps() []FilterOp {
	return []FilterOp{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn}
}

// IsValid checks if the operator is valid.
func (op FilterOp) IsValid() bool {
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn:
		return true
	}
	return false
}

// Filters is a conjunction of Filter.
type Filters []Filter

// Filter represents a single comparison against a record field.
type Filter struct {
	Field string      `json:"field" yaml:"field"`
	Op    FilterOp    `json:"op" yaml:"op"`
	Value interface{} `json:"value" yaml:"value"`
}

// Validate checks if the filter is valid.
func (f Filter) Validate() bool {
	if !IsIdentifier(f.Field) {
		return false
	}
	if !f.Op.IsValid() {
		return false
	}
	if f.Op == OpIn {
		_, ok := f.Value.([]interface{})
		return ok
	}
	return f.Value != nil
}

// Validate checks every filter in the conjunction.
func (fs Filters) Validate() bool {
	for _, f := range fs {
		if !f.Validate() {
			return false
		}
	}
	return true
}
