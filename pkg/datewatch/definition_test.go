package datewatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/syntrixbase/datewatch/pkg/model"
)

func noop(context.Context, *Notification) error { return nil }

func TestDefinition_Key(t *testing.T) {
	d := Definition{Component: "mod_forum", Table: "course", Field: "startdate", Offset: -90 * time.Minute}
	assert.Equal(t, "mod_forum/course/startdate/-5400", d.Key())
	assert.Equal(t, d.Key(), d.String())

	d.Identifier = "reminder"
	assert.Equal(t, "mod_forum/course/startdate/#reminder", d.Key())
}

func TestDefinition_Hash(t *testing.T) {
	a := Definition{Component: "c", Table: "t", Field: "f", Offset: time.Hour}
	b := a
	b.Condition = model.Filters{{Field: "x", Op: model.OpEq, Value: 1}}
	assert.Equal(t, a.Hash(), b.Hash())

	b.Offset = 2 * time.Hour
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestDefinition_OffsetSeconds(t *testing.T) {
	assert.Equal(t, int64(1), Definition{Offset: 1999 * time.Millisecond}.OffsetSeconds())
	assert.Equal(t, int64(-1), Definition{Offset: -1999 * time.Millisecond}.OffsetSeconds())
}

func TestDefinition_Validate(t *testing.T) {
	valid := Definition{Component: "tool_x", Table: "course", Field: "startdate", Callback: noop}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(d *Definition)
		target error
	}{
		{"component", func(d *Definition) { d.Component = "Tool X" }, model.ErrInvalidDefinition},
		{"table", func(d *Definition) { d.Table = "course;drop" }, model.ErrInvalidDefinition},
		{"field", func(d *Definition) { d.Field = "" }, model.ErrInvalidDefinition},
		{"callback", func(d *Definition) { d.Callback = nil }, model.ErrInvalidDefinition},
		{"condition", func(d *Definition) {
			d.Condition = model.Filters{{Field: "format", Op: "~", Value: "x"}}
		}, model.ErrInvalidCondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid
			tt.mutate(&d)
			assert.ErrorIs(t, d.Validate(), tt.target)
		})
	}
}

func TestHandle_Setters(t *testing.T) {
	w := newWatchlist("tool_x")
	filters := model.Filters{{Field: "format", Op: model.OpEq, Value: "topics"}}
	h := w.Watch("course", "startdate", 0).
		SetCallback(noop).
		SetCondition(filters).
		SetIdentifier("topics")

	filters[0].Value = "weeks"

	d := h.Definition()
	assert.Equal(t, "tool_x", d.Component)
	assert.Equal(t, "topics", d.Identifier)
	assert.Equal(t, "topics", d.Condition[0].Value)
	assert.NotNil(t, d.Callback)
	assert.Len(t, *w.defs, 1)
}
