package optimizer

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

func TestClassify(t *testing.T) {
	x := []float64{1, 2}
	breakdown := errors.New("lp: linear solve failure")

	tests := []struct {
		name     string
		f        float64
		x        []float64
		err      error
		expected Status
	}{
		{"optimal", 3, x, nil, StatusOptimal},
		{"infeasible", math.NaN(), nil, lp.ErrInfeasible, StatusInfeasible},
		{"unbounded", math.Inf(-1), nil, lp.ErrUnbounded, StatusUnbounded},
		{"breakdown with point", 3, x, lp.ErrBland, StatusFeasibleSuboptimal},
		{"breakdown with point, foreign error", 3, x, breakdown, StatusFeasibleSuboptimal},
		{"singular", math.NaN(), nil, lp.ErrSingular, StatusSolverError},
		{"phase one failure", math.NaN(), nil, errors.New("lp: error finding feasible basis"), StatusSolverError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sol := classify(tt.f, tt.x, tt.err)
			assert.Equal(t, tt.expected, sol.Status)
			if tt.expected.Usable() {
				assert.Equal(t, tt.x, sol.Values)
				assert.Equal(t, tt.f, sol.Objective)
			} else {
				assert.Nil(t, sol.Values)
			}
			assert.Equal(t, tt.err, sol.Err)
		})
	}
}

func TestStatus_Usable(t *testing.T) {
	assert.True(t, StatusOptimal.Usable())
	assert.True(t, StatusFeasibleSuboptimal.Usable())
	assert.False(t, StatusInfeasible.Usable())
	assert.False(t, StatusUnbounded.Usable())
	assert.False(t, StatusSolverError.Usable())
}

func TestSimplexSolver_Solve(t *testing.T) {
	m, err := BuildModel([]nutrient.Ingredient{
		ingredient("a", nutrient.Profile{PK: 0}),
		ingredient("b", nutrient.Profile{PK: 100}),
	}, nutrient.Target{PK: 25})
	require.NoError(t, err)

	sol := NewSimplexSolver().Solve(context.Background(), m)

	require.Equal(t, StatusOptimal, sol.Status, "err: %v", sol.Err)
	require.Len(t, sol.Values, len(m.Vars))
	assert.InDelta(t, 75, sol.Values[m.InclusionVar(0)], 1e-9)
	assert.InDelta(t, 25, sol.Values[m.InclusionVar(1)], 1e-9)
	assert.InDelta(t, 0, sol.Objective, 1e-9)
	for j, v := range sol.Values {
		assert.GreaterOrEqual(t, v, -1e-9, "variable %d", j)
	}
}

func TestSimplexSolver_DoesNotMutateModel(t *testing.T) {
	m, err := BuildModel(feedIngredients(), broilerStarter())
	require.NoError(t, err)

	before := make([][]float64, len(m.Constraints))
	for i, c := range m.Constraints {
		before[i] = append([]float64(nil), c.Coeffs...)
	}
	objective := append([]float64(nil), m.Objective...)

	sol := NewSimplexSolver().Solve(context.Background(), m)
	require.True(t, sol.Status.Usable(), "status %s: %v", sol.Status, sol.Err)

	for i, c := range m.Constraints {
		assert.Equal(t, before[i], c.Coeffs, c.Name)
	}
	assert.Equal(t, objective, m.Objective)
}

func TestSimplexSolver_ExpiredContext(t *testing.T) {
	m, err := BuildModel(feedIngredients(), broilerStarter())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sol := NewSimplexSolver().Solve(ctx, m)

	assert.Equal(t, StatusSolverError, sol.Status)
	assert.ErrorIs(t, sol.Err, ErrSolverTimeout)
	assert.Nil(t, sol.Values)
}

func TestSimplexSolver_RejectsUnsupportedBounds(t *testing.T) {
	m, err := BuildModel(feedIngredients(), broilerStarter())
	require.NoError(t, err)
	m.Bounds[0] = Bound{Lower: 0, Upper: 60}

	sol := NewSimplexSolver().Solve(context.Background(), m)

	assert.Equal(t, StatusSolverError, sol.Status)
	assert.ErrorIs(t, sol.Err, ErrUnsupportedBounds)
}

func TestStandardForm_Mismatch(t *testing.T) {
	m, err := BuildModel(feedIngredients(), broilerStarter())
	require.NoError(t, err)
	m.Constraints[0].Coeffs = m.Constraints[0].Coeffs[:3]

	_, _, _, err = standardForm(m)
	assert.ErrorIs(t, err, ErrInvalidModel)

	_, _, _, err = standardForm(&Model{})
	assert.ErrorIs(t, err, ErrInvalidModel)
}

func TestStandardForm(t *testing.T) {
	m, err := BuildModel([]nutrient.Ingredient{ingredient("a", nutrient.Profile{PK: 12, P: 0.5})}, nutrient.Target{PK: 20})
	require.NoError(t, err)

	c, a, b, err := standardForm(m)
	require.NoError(t, err)

	rows, cols := a.Dims()
	assert.Equal(t, len(m.Constraints), rows)
	assert.Equal(t, len(m.Vars), cols)
	assert.Equal(t, m.Objective, c)
	assert.Equal(t, 2000.0, b[0])
	assert.Equal(t, 12.0, a.At(0, 0))
	assert.Equal(t, 0.5, a.At(int(nutrient.Phosphorus), 0))
	assert.Equal(t, 1.0, a.At(rows-1, 0))

	// the objective slice is a copy
	c[0] = 42
	assert.Zero(t, m.Objective[0])
}

func TestSimplexSolver_DuplicateColumns(t *testing.T) {
	corn := feedIngredients()[0]
	blank := ingredient("blank", nutrient.Profile{})
	m, err := BuildModel([]nutrient.Ingredient{corn, blank, corn, blank}, nutrient.Target{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sol := NewSimplexSolver().Solve(ctx, m)

	require.Equal(t, StatusOptimal, sol.Status, "err: %v", sol.Err)
	require.Len(t, sol.Values, len(m.Vars))
	assert.InDelta(t, 0, sol.Objective, 1e-9)
	assert.Zero(t, sol.Values[m.InclusionVar(2)])
	assert.Zero(t, sol.Values[m.InclusionVar(3)])
	assert.InDelta(t, 100, sol.Values[m.InclusionVar(1)], 1e-9)
}

func TestUniqueColumns(t *testing.T) {
	a := mat.NewDense(2, 4, []float64{
		1, 2, 1, 0,
		3, 4, 3, 0,
	})

	t.Run("identical columns are merged", func(t *testing.T) {
		c, ua, keep := uniqueColumns([]float64{0, 0, 0, 1}, a)
		assert.Equal(t, []int{0, 1, 3}, keep)
		assert.Equal(t, []float64{0, 0, 1}, c)
		_, cols := ua.Dims()
		assert.Equal(t, 3, cols)
		assert.Equal(t, 2.0, ua.At(0, 1))

		assert.Equal(t, []float64{7, 8, 0, 9}, expandValues([]float64{7, 8, 9}, keep, 4))
	})

	t.Run("different costs keep both columns", func(t *testing.T) {
		_, ua, keep := uniqueColumns([]float64{0, 0, 1, 1}, a)
		assert.Equal(t, []int{0, 1, 2, 3}, keep)
		assert.Same(t, a, ua)
		assert.Nil(t, expandValues(nil, []int{0}, 4))
	})
}
