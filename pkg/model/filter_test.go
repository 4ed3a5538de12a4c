package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterOp_IsValid(t *testing.T) {
	tests := []struct {
		name string
		op   FilterOp
		want bool
	}{
		{"OpEq", OpEq, true},
		{"OpNe", OpNe, true},
		{"OpGt", OpGt, true},
		{"OpGte", OpGte, true},
		{"OpLt", OpLt, true},
		{"OpLte", OpLte, true},
		{"OpIn", OpIn, true},
		{"Contains", FilterOp("contains"), false},
		{"Empty", FilterOp(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.IsValid())
		})
	}
}

func TestValidOps(t *testing.T) {
	ops := ValidOps()
	assert.Len(t, ops, 7)
	for _, op := range ops {
		assert.True(t, op.IsValid())
	}
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, IsIdentifier("startdate"))
	assert.True(t, IsIdentifier("user_enrolments"))
	assert.True(t, IsIdentifier("_x1"))
	assert.False(t, IsIdentifier(""))
	assert.False(t, IsIdentifier("1abc"))
	assert.False(t, IsIdentifier("format; DROP TABLE course"))
	assert.False(t, IsIdentifier("a.b"))
}

func TestFilter_Validate(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"valid eq", Filter{Field: "format", Op: OpEq, Value: "topics"}, true},
		{"valid in", Filter{Field: "status", Op: OpIn, Value: []interface{}{0, 1}}, true},
		{"in without list", Filter{Field: "status", Op: OpIn, Value: 1}, false},
		{"nil value", Filter{Field: "format", Op: OpEq}, false},
		{"bad field", Filter{Field: "format = 1 OR 1", Op: OpEq, Value: 1}, false},
		{"bad op", Filter{Field: "format", Op: "~", Value: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Validate())
		})
	}
}

func TestFilters_Validate(t *testing.T) {
	assert.True(t, Filters{}.Validate())
	assert.True(t, Filters{{Field: "a", Op: OpEq, Value: 1}}.Validate())
	assert.False(t, Filters{{Field: "a", Op: OpEq, Value: 1}, {Field: "", Op: OpEq, Value: 1}}.Validate())
}
