package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/datewatch/pkg/model"
)

func topics() model.Filters {
	return model.Filters{{Field: "format", Op: model.OpEq, Value: "topics"}}
}

func TestSet_MatchesAll(t *testing.T) {
	assert.True(t, Set(nil).MatchesAll())
	assert.True(t, Set{model.Filters{}}.MatchesAll())
	assert.True(t, Set{topics(), model.Filters{}}.MatchesAll())
	assert.False(t, Of(topics()).MatchesAll())
	assert.Nil(t, Of(nil))
}

func TestUnion(t *testing.T) {
	a := Of(topics())
	b := Of(model.Filters{{Field: "visible", Op: model.OpEq, Value: 1}})

	u := Union(a, b)
	require.Len(t, u, 2)
	assert.ElementsMatch(t, []string{"format", "visible"}, u.Fields())

	assert.Nil(t, Union(a, nil), "unconditioned member widens to everything")
}

func TestSet_Validate(t *testing.T) {
	assert.NoError(t, Of(topics()).Validate())

	err := Of(model.Filters{{Field: "bad field", Op: model.OpEq, Value: 1}}).Validate()
	assert.ErrorIs(t, err, model.ErrInvalidCondition)

	err = Of(model.Filters{{Field: "format", Op: "like", Value: "x"}}).Validate()
	assert.ErrorIs(t, err, model.ErrInvalidCondition)
}
