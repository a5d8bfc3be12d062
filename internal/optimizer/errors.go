package optimizer

import "errors"

var (
	// ErrNoIngredients is returned when a formulation selects no ingredients
	ErrNoIngredients = errors.New("no ingredients selected")

	// ErrNoTarget is returned when a formulation has no nutrient target
	ErrNoTarget = errors.New("no nutrient target selected")

	// ErrInvalidModel is returned when a model's tables disagree in size
	ErrInvalidModel = errors.New("invalid model")

	// ErrUnsupportedBounds is returned when a variable is not bounded by [0, +Inf)
	ErrUnsupportedBounds = errors.New("unsupported variable bounds")

	// ErrSolverTimeout is returned when the solve outlives its context
	ErrSolverTimeout = errors.New("solver timed out")

	// ErrSolverPanic is returned when the LP engine panics
	ErrSolverPanic = errors.New("solver panicked")
)
