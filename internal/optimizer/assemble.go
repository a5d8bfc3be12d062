package optimizer

import (
	"fmt"

	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

// Reason explains why a formulation produced no blend
type Reason string

const (
	ReasonValidation  Reason = "validation-error"
	ReasonInfeasible  Reason = "infeasible"
	ReasonSolverError Reason = "solver-error"
)

// Rejection is the terminal "no result" state of a formulation
type Rejection struct {
	Reason Reason
	// Status is the solver status, empty when no solve was attempted
	Status Status
	Err    error
}

func (r *Rejection) Error() string {
	if r.Err == nil {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %v", r.Reason, r.Err)
}

func (r *Rejection) Unwrap() error {
	return r.Err
}

// Result is a normalized, caller-facing formulation
type Result struct {
	Feasible bool
	// Objective is the raw L1 deviation reported by the solve, in scaled units
	Objective      float64
	Blend          Blend
	Achieved       nutrient.Profile
	TargetsDisplay nutrient.Target
	Status         Status
}

// ActiveIngredients counts the ingredients with a positive share
func (r *Result) ActiveIngredients() int {
	n := 0
	for _, e := range r.Blend {
		if e.Percentage > 0 {
			n++
		}
	}
	return n
}

// Outcome holds exactly one of Result or Rejection
type Outcome struct {
	// RunID correlates the outcome with its log lines
	RunID     string
	Result    *Result
	Rejection *Rejection
}

// OK reports whether the formulation was assembled
func (o Outcome) OK() bool {
	return o.Result != nil
}

func rejected(reason Reason, status Status, err error) Outcome {
	return Outcome{Rejection: &Rejection{Reason: reason, Status: status, Err: err}}
}

// assemble turns a solve into an Outcome. Unusable statuses never carry a
// partial blend.
func assemble(m *Model, ingredients []nutrient.Ingredient, target nutrient.Target, sol Solution) Outcome {
	switch {
	case sol.Status.Usable():
	case sol.Status == StatusInfeasible || sol.Status == StatusUnbounded:
		return rejected(ReasonInfeasible, sol.Status, sol.Err)
	default:
		return rejected(ReasonSolverError, sol.Status, sol.Err)
	}

	blend, achieved := NormalizeBlend(m, ingredients, sol)
	return Outcome{Result: &Result{
		Feasible:       true,
		Objective:      sol.Objective,
		Blend:          blend,
		Achieved:       achieved,
		TargetsDisplay: target,
		Status:         sol.Status,
	}}
}
