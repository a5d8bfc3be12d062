package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

func TestEvaluate(t *testing.T) {
	ingredients := []nutrient.Ingredient{
		ingredient("a", nutrient.Profile{PK: 10, ME: 3000}),
		ingredient("b", nutrient.Profile{PK: 40, Ca: 2}),
	}

	tests := []struct {
		name        string
		percentages []any
		total       float64
		complete    bool
		achievedPK  float64
	}{
		{"complete blend", []any{60, 40}, 100, true, 22},
		{"numeric strings", []any{"60", " 40 "}, 100, true, 22},
		{"incomplete blend", []any{50, 30}, 80, false, 17},
		{"missing entry counts as zero", []any{100}, 100, true, 10},
		{"garbage and negatives count as zero", []any{"abc", -5}, 0, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Evaluate(ingredients, tt.percentages)

			require.Len(t, ev.Blend, len(ingredients))
			assert.InDelta(t, tt.total, ev.Total, 1e-9)
			assert.Equal(t, tt.complete, ev.Complete)
			assert.InDelta(t, tt.achievedPK, ev.Achieved.PK, 1e-9)
		})
	}
}

func TestEvaluate_MatchesFormulatedAchieved(t *testing.T) {
	opt := newTestOptimizer()
	ingredients := feedIngredients()

	res := requireAssembled(t, opt.Formulate(t.Context(), Request{Ingredients: ingredients, Target: target(broilerStarter())}))

	pcts := make([]any, len(res.Blend))
	for i, e := range res.Blend {
		pcts[i] = e.Percentage
	}
	ev := Evaluate(ingredients, pcts)

	assert.Equal(t, res.Achieved, ev.Achieved)
	assert.True(t, ev.Complete)
}

func TestCompare(t *testing.T) {
	achieved := nutrient.Profile{PK: 11, ME: 6000, SK: 0, LK: 3, Ca: 1, P: 0.4}
	goal := nutrient.Target{PK: 22, ME: 2900, SK: 0, LK: 3, Ca: 0, P: 0.5}

	cmp := Compare(achieved, goal)
	require.Len(t, cmp, nutrient.Count)

	byKey := map[nutrient.Key]Comparison{}
	for _, c := range cmp {
		byKey[c.Nutrient] = c
	}

	assert.InDelta(t, 50, byKey[nutrient.Protein].PercentOfTarget, 1e-9)
	assert.InDelta(t, -11, byKey[nutrient.Protein].Difference, 1e-9)
	assert.Equal(t, 200.0, byKey[nutrient.Energy].PercentOfTarget, "capped")
	assert.Equal(t, 0.0, byKey[nutrient.Fiber].PercentOfTarget)
	assert.InDelta(t, 100, byKey[nutrient.Fat].PercentOfTarget, 1e-9)
	assert.Equal(t, 0.0, byKey[nutrient.Calcium].PercentOfTarget, "zero target")
	assert.InDelta(t, 1, byKey[nutrient.Calcium].Difference, 1e-9)
	assert.InDelta(t, 80, byKey[nutrient.Phosphorus].PercentOfTarget, 1e-9)

	// Keys order
	for i, key := range nutrient.Keys {
		assert.Equal(t, key, cmp[i].Nutrient)
	}
}
