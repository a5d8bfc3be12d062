package optimizer

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// DefaultTolerance is the reduced-cost tolerance handed to the simplex engine
const DefaultTolerance = 1e-10

// Status is the outcome of a single solve
type Status string

const (
	StatusOptimal            Status = "optimal"
	StatusFeasibleSuboptimal Status = "feasible-suboptimal"
	StatusInfeasible         Status = "infeasible"
	StatusUnbounded          Status = "unbounded"
	StatusSolverError        Status = "solver-error"
)

// Usable reports whether the solve produced variable values worth reporting
func (s Status) Usable() bool {
	return s == StatusOptimal || s == StatusFeasibleSuboptimal
}

// Solution is the raw answer of a solver, indexed like Model.Vars
type Solution struct {
	Status    Status
	Objective float64
	Values    []float64
	// Err carries the engine's diagnosis for non-optimal statuses
	Err error
}

// Solver runs a linear program. Implementations must not mutate the model
// and must not retry: one deterministic solve per call.
type Solver interface {
	Solve(ctx context.Context, m *Model) Solution
}

// SimplexSolver solves models with gonum's dense simplex implementation
type SimplexSolver struct {
	tolerance float64
}

// Ensure SimplexSolver implements Solver interface
var _ Solver = (*SimplexSolver)(nil)

// NewSimplexSolver creates a simplex-backed solver
func NewSimplexSolver() *SimplexSolver {
	return &SimplexSolver{tolerance: DefaultTolerance}
}

// Solve runs the model to completion or until ctx is done. Columns that
// duplicate an earlier column are solved as one, and the first of each group
// carries the share. An expired context is reported as a solver error; the
// engine cannot be interrupted, so it keeps running in the background and its
// late answer is dropped.
func (s *SimplexSolver) Solve(ctx context.Context, m *Model) Solution {
	if err := ctx.Err(); err != nil {
		return Solution{Status: StatusSolverError, Err: fmt.Errorf("%w: %v", ErrSolverTimeout, err)}
	}

	c, a, b, err := standardForm(m)
	if err != nil {
		return Solution{Status: StatusSolverError, Err: err}
	}

	n := len(c)
	c, a, keep := uniqueColumns(c, a)

	// buffered so an abandoned solve can still deliver and exit
	done := make(chan Solution, 1)
	go func() {
		done <- s.simplex(c, a, b)
	}()

	select {
	case sol := <-done:
		sol.Values = expandValues(sol.Values, keep, n)
		return sol
	case <-ctx.Done():
		return Solution{Status: StatusSolverError, Err: fmt.Errorf("%w: %v", ErrSolverTimeout, ctx.Err())}
	}
}

func (s *SimplexSolver) simplex(c []float64, a mat.Matrix, b []float64) (sol Solution) {
	defer func() {
		if r := recover(); r != nil {
			sol = Solution{Status: StatusSolverError, Err: fmt.Errorf("%w: %v", ErrSolverPanic, r)}
		}
	}()

	f, x, err := lp.Simplex(c, a, b, s.tolerance, nil)
	return classify(f, x, err)
}

// classify maps the engine's return values onto a Status
func classify(f float64, x []float64, err error) Solution {
	switch {
	case err == nil:
		return Solution{Status: StatusOptimal, Objective: f, Values: x}
	case errors.Is(err, lp.ErrInfeasible):
		return Solution{Status: StatusInfeasible, Objective: math.NaN(), Err: err}
	case errors.Is(err, lp.ErrUnbounded):
		return Solution{Status: StatusUnbounded, Objective: math.Inf(-1), Err: err}
	case x != nil:
		// numeric breakdown after a feasible vertex was reached; gonum hands
		// back the most recent feasible point
		return Solution{Status: StatusFeasibleSuboptimal, Objective: f, Values: x, Err: err}
	default:
		return Solution{Status: StatusSolverError, Objective: math.NaN(), Err: err}
	}
}

// standardForm lays the model out as min cᵀx s.t. Ax = b, x >= 0
func standardForm(m *Model) ([]float64, *mat.Dense, []float64, error) {
	n := len(m.Vars)
	if n == 0 || len(m.Constraints) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: empty model", ErrInvalidModel)
	}
	if len(m.Objective) != n || len(m.Bounds) != n {
		return nil, nil, nil, fmt.Errorf("%w: %d variables, %d objective terms, %d bounds",
			ErrInvalidModel, n, len(m.Objective), len(m.Bounds))
	}
	for j, bnd := range m.Bounds {
		if bnd.Lower != 0 || !math.IsInf(bnd.Upper, 1) {
			return nil, nil, nil, fmt.Errorf("%w: variable %d has bounds [%g, %g]", ErrUnsupportedBounds, j, bnd.Lower, bnd.Upper)
		}
	}

	a := mat.NewDense(len(m.Constraints), n, nil)
	b := make([]float64, len(m.Constraints))
	for i, row := range m.Constraints {
		if len(row.Coeffs) != n {
			return nil, nil, nil, fmt.Errorf("%w: constraint %q has %d coefficients, want %d",
				ErrInvalidModel, row.Name, len(row.Coeffs), n)
		}
		a.SetRow(i, row.Coeffs)
		b[i] = row.RHS
	}

	c := make([]float64, n)
	copy(c, m.Objective)
	return c, a, b, nil
}

// uniqueColumns drops every column whose cost and coefficients equal those of
// an earlier column. keep maps the remaining columns to their original index.
// The simplex engine can pivot between identical columns without end.
func uniqueColumns(c []float64, a *mat.Dense) ([]float64, *mat.Dense, []int) {
	rows, n := a.Dims()
	keep := make([]int, 0, n)
	for j := 0; j < n; j++ {
		if !duplicatesKept(c, a, keep, j, rows) {
			keep = append(keep, j)
		}
	}
	if len(keep) == n {
		return c, a, keep
	}

	uc := make([]float64, len(keep))
	ua := mat.NewDense(rows, len(keep), nil)
	for i, j := range keep {
		uc[i] = c[j]
		for r := 0; r < rows; r++ {
			ua.Set(r, i, a.At(r, j))
		}
	}
	return uc, ua, keep
}

func duplicatesKept(c []float64, a *mat.Dense, keep []int, j, rows int) bool {
	for _, k := range keep {
		if c[k] != c[j] {
			continue
		}
		same := true
		for r := 0; r < rows && same; r++ {
			same = a.At(r, k) == a.At(r, j)
		}
		if same {
			return true
		}
	}
	return false
}

// expandValues maps a solution over the kept columns back onto all n
// columns. Dropped columns get 0.
func expandValues(x []float64, keep []int, n int) []float64 {
	if x == nil || len(keep) == n {
		return x
	}
	full := make([]float64, n)
	for i, j := range keep {
		full[j] = x[i]
	}
	return full
}
