package optimizer

import (
	"fmt"
	"math"

	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

const (
	// TargetScale converts per-unit-mass targets into the units of
	// Σ(x_i * coef_i), where x_i is a percentage and coef_i is per 100 units
	TargetScale = 100.0

	// TotalPercent is the mass every blend must add up to
	TotalPercent = 100.0
)

// VarKind tells what a column of the model represents
type VarKind int

const (
	// VarInclusion is the inclusion percentage of one ingredient
	VarInclusion VarKind = iota
	// VarOver is the amount a nutrient exceeds its scaled target
	VarOver
	// VarUnder is the amount a nutrient falls short of its scaled target
	VarUnder
)

func (k VarKind) String() string {
	switch k {
	case VarInclusion:
		return "inclusion"
	case VarOver:
		return "over"
	case VarUnder:
		return "under"
	}
	return fmt.Sprintf("VarKind(%d)", int(k))
}

// Variable is one entry in the model's variable table
type Variable struct {
	Kind VarKind
	// Ingredient is the ordinal of the ingredient for inclusion variables, -1 otherwise
	Ingredient int
	// Nutrient is meaningful for deviation variables only
	Nutrient nutrient.Key
}

// Bound is the closed interval a variable must lie in
type Bound struct {
	Lower float64
	Upper float64
}

// Constraint is a single equality row: Σ Coeffs[j]*x_j = RHS
type Constraint struct {
	Name   string
	Coeffs []float64
	RHS    float64
}

// Model is a linear program over an index-based variable table.
// Columns [0, k) are inclusion variables, followed by an (over, under)
// deviation pair per nutrient in nutrient.Keys order.
type Model struct {
	Vars        []Variable
	Objective   []float64
	Constraints []Constraint
	Bounds      []Bound

	ingredients int
}

// NumIngredients returns how many inclusion variables the model has
func (m *Model) NumIngredients() int {
	return m.ingredients
}

// InclusionVar returns the column of ingredient i
func (m *Model) InclusionVar(i int) int {
	return i
}

// DeviationVar returns the column of the over or under deviation of nutrient k
func (m *Model) DeviationVar(k nutrient.Key, kind VarKind) int {
	col := m.ingredients + 2*int(k)
	if kind == VarUnder {
		col++
	}
	return col
}

// BuildModel translates ingredients and a target profile into a model that
// minimizes the unweighted L1 distance between the blend and the target,
// subject to the blend using exactly 100 percentage points.
func BuildModel(ingredients []nutrient.Ingredient, target nutrient.Target) (*Model, error) {
	k := len(ingredients)
	if k == 0 {
		return nil, ErrNoIngredients
	}

	n := k + 2*nutrient.Count
	m := &Model{
		Vars:        make([]Variable, n),
		Objective:   make([]float64, n),
		Constraints: make([]Constraint, 0, nutrient.Count+1),
		Bounds:      make([]Bound, n),
		ingredients: k,
	}

	for i := 0; i < k; i++ {
		m.Vars[i] = Variable{Kind: VarInclusion, Ingredient: i}
	}
	for _, key := range nutrient.Keys {
		over, under := m.DeviationVar(key, VarOver), m.DeviationVar(key, VarUnder)
		m.Vars[over] = Variable{Kind: VarOver, Ingredient: -1, Nutrient: key}
		m.Vars[under] = Variable{Kind: VarUnder, Ingredient: -1, Nutrient: key}
		m.Objective[over] = 1
		m.Objective[under] = 1
	}
	for j := range m.Bounds {
		m.Bounds[j] = Bound{Lower: 0, Upper: math.Inf(1)}
	}

	// Σ x_i*coef(i,n) - over(n) + under(n) = target(n)*100
	for _, key := range nutrient.Keys {
		row := make([]float64, n)
		for i, ing := range ingredients {
			row[m.InclusionVar(i)] = nutrient.NonNegative(ing.Nutrients.Get(key), 0)
		}
		row[m.DeviationVar(key, VarOver)] = -1
		row[m.DeviationVar(key, VarUnder)] = 1
		m.Constraints = append(m.Constraints, Constraint{
			Name:   "nutrient_" + key.Code(),
			Coeffs: row,
			RHS:    nutrient.NonNegative(target.Get(key), 0) * TargetScale,
		})
	}

	// Σ x_i = 100
	total := make([]float64, n)
	for i := 0; i < k; i++ {
		total[m.InclusionVar(i)] = 1
	}
	m.Constraints = append(m.Constraints, Constraint{
		Name:   "total",
		Coeffs: total,
		RHS:    TotalPercent,
	})

	return m, nil
}
