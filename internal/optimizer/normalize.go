package optimizer

import (
	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

// BlendEntry is the share of one ingredient in a blend
type BlendEntry struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Percentage float64 `json:"percentage"`
}

// Blend is an ordered list of ingredient shares, one per selected ingredient
type Blend []BlendEntry

// Total returns the sum of all percentages
func (b Blend) Total() float64 {
	var sum float64
	for _, e := range b {
		sum += e.Percentage
	}
	return sum
}

// Percentages returns the shares in blend order
func (b Blend) Percentages() []float64 {
	out := make([]float64, len(b))
	for i, e := range b {
		out[i] = e.Percentage
	}
	return out
}

// NormalizeBlend rescales the solved inclusion values so they add up to
// exactly 100 and recomputes the achieved profile from the rescaled values.
// An all-zero raw solution is left at zero.
func NormalizeBlend(m *Model, ingredients []nutrient.Ingredient, sol Solution) (Blend, nutrient.Profile) {
	raw := make([]float64, len(ingredients))
	var sum float64
	for i := range ingredients {
		col := m.InclusionVar(i)
		if col < len(sol.Values) {
			// solver noise can leave values a hair below zero
			raw[i] = nutrient.NonNegative(sol.Values[col], 0)
		}
		sum += raw[i]
	}

	blend := make(Blend, len(ingredients))
	for i, ing := range ingredients {
		pct := 0.0
		if sum > 0 {
			pct = raw[i] * TotalPercent / sum
		}
		blend[i] = BlendEntry{ID: ing.ID, Name: ing.Label(), Percentage: pct}
	}

	return blend, Achieved(ingredients, blend.Percentages())
}

// Achieved computes Σ pct_i * coef(i,n) / 100 for every nutrient.
// percentages is indexed like ingredients; missing entries count as 0.
func Achieved(ingredients []nutrient.Ingredient, percentages []float64) nutrient.Profile {
	var achieved nutrient.Profile
	for _, key := range nutrient.Keys {
		var v float64
		for i, ing := range ingredients {
			if i >= len(percentages) {
				break
			}
			v += percentages[i] * nutrient.NonNegative(ing.Nutrients.Get(key), 0)
		}
		achieved.Set(key, v/TotalPercent)
	}
	return achieved
}
