package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/datewatch/pkg/model"
)

func TestSQL(t *testing.T) {
	tests := []struct {
		name  string
		set   Set
		ph    Placeholder
		first int
		where string
		args  []interface{}
	}{
		{name: "empty", set: nil, ph: Dollar, first: 1, where: ""},
		{
			name: "eq dollar", set: Of(topics()), ph: Dollar, first: 3,
			where: `(("format" = $3))`, args: []interface{}{"topics"},
		},
		{
			name: "eq question", set: Of(topics()), ph: Question, first: 1,
			where: `(("format" = ?))`, args: []interface{}{"topics"},
		},
		{
			name: "in and ne",
			set: Of(model.Filters{
				{Field: "format", Op: model.OpIn, Value: []interface{}{"topics", "weeks"}},
				{Field: "visible", Op: model.OpNe, Value: 0},
			}),
			ph: Dollar, first: 1,
			where: `(("format" IN ($1, $2) AND "visible" <> $3))`,
			args:  []interface{}{"topics", "weeks", 0},
		},
		{
			name: "empty in",
			set:  Of(model.Filters{{Field: "format", Op: model.OpIn, Value: []interface{}{}}}),
			ph:   Dollar, first: 1,
			where: `((1 = 0))`,
		},
		{
			name:  "or",
			set:   Union(Of(topics()), Of(model.Filters{{Field: "visible", Op: model.OpGte, Value: 1}})),
			ph:    Dollar,
			first: 1,
			where: `(("format" = $1) OR ("visible" >= $2))`,
			args:  []interface{}{"topics", 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args, err := SQL(tt.set, tt.ph, tt.first)
			require.NoError(t, err)
			assert.Equal(t, tt.where, where)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestSQL_Invalid(t *testing.T) {
	_, _, err := SQL(Of(model.Filters{{Field: "1col", Op: model.OpEq, Value: 1}}), Dollar, 1)
	assert.ErrorIs(t, err, model.ErrInvalidCondition)
}
