package optimizer

import (
	"math"

	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

const (
	// totalTolerance is how far a manual blend may stray from 100% and still count as complete
	totalTolerance = 1e-6

	// maxPercentOfTarget caps the percent-of-target figure for chart display
	maxPercentOfTarget = 200.0
)

// Evaluation is the nutrient profile of a hand-entered blend
type Evaluation struct {
	Blend    Blend
	Achieved nutrient.Profile
	Total    float64
	// Complete is true when the blend adds up to 100%
	Complete bool
}

// Evaluate computes what a manual blend achieves without solving anything.
// percentages is indexed like ingredients; invalid or negative entries count as 0.
func Evaluate(ingredients []nutrient.Ingredient, percentages []any) Evaluation {
	pcts := make([]float64, len(ingredients))
	blend := make(Blend, len(ingredients))
	for i, ing := range ingredients {
		if i < len(percentages) {
			pcts[i] = nutrient.NonNegative(percentages[i], 0)
		}
		blend[i] = BlendEntry{ID: ing.ID, Name: ing.Label(), Percentage: pcts[i]}
	}

	total := blend.Total()
	return Evaluation{
		Blend:    blend,
		Achieved: Achieved(ingredients, pcts),
		Total:    total,
		Complete: math.Abs(total-TotalPercent) <= totalTolerance,
	}
}

// Comparison sets one achieved nutrient against its target
type Comparison struct {
	Nutrient   nutrient.Key
	Target     float64
	Actual     float64
	Difference float64
	// PercentOfTarget is actual/target*100 capped at 200, or 0 for a zero target
	PercentOfTarget float64
}

// Compare lines up an achieved profile with its target, one entry per nutrient
func Compare(achieved nutrient.Profile, target nutrient.Target) []Comparison {
	out := make([]Comparison, 0, nutrient.Count)
	for _, key := range nutrient.Keys {
		t, a := target.Get(key), achieved.Get(key)
		pct := 0.0
		if t > 0 {
			pct = math.Min(a/t*100, maxPercentOfTarget)
		}
		out = append(out, Comparison{
			Nutrient:        key,
			Target:          t,
			Actual:          a,
			Difference:      a - t,
			PercentOfTarget: pct,
		})
	}
	return out
}
