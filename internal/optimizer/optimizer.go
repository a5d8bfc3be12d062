package optimizer

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/noot-app/feed-formulation-mcp-server/internal/nutrient"
)

// Recorder receives per-formulation measurements. It is satisfied by
// metrics.Registry; nil disables recording.
type Recorder interface {
	ObserveSolve(status string, duration time.Duration)
	ObserveOutcome(outcome string)
}

// Request is the input of one formulation
type Request struct {
	Ingredients []nutrient.Ingredient
	// Target is nil when the caller selected no profile
	Target *nutrient.Target
}

// Optimizer runs formulations. It holds no per-call state and is safe for
// concurrent use.
type Optimizer struct {
	solver      Solver
	recorder    Recorder
	timeout     time.Duration
	concurrency int
	log         *slog.Logger
}

// Option configures an Optimizer
type Option func(*Optimizer)

// WithSolver replaces the default simplex solver
func WithSolver(s Solver) Option {
	return func(o *Optimizer) { o.solver = s }
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(o *Optimizer) { o.recorder = r }
}

// WithTimeout bounds each solve; zero means no bound beyond the caller's context
func WithTimeout(d time.Duration) Option {
	return func(o *Optimizer) { o.timeout = d }
}

// WithConcurrency limits how many formulations FormulateBatch runs at once
func WithConcurrency(n int) Option {
	return func(o *Optimizer) { o.concurrency = n }
}

// New creates an optimizer
func New(logger *slog.Logger, opts ...Option) *Optimizer {
	o := &Optimizer{
		solver:      NewSimplexSolver(),
		concurrency: 4,
		log:         logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	return o
}

// Formulate computes the blend of req.Ingredients closest to req.Target.
// It never returns an error: every failure is folded into a Rejection.
func (o *Optimizer) Formulate(ctx context.Context, req Request) Outcome {
	runID := uuid.NewString()
	out := o.formulate(ctx, runID, req)
	out.RunID = runID
	return out
}

func (o *Optimizer) formulate(ctx context.Context, runID string, req Request) (out Outcome) {
	log := o.log.With("run_id", runID)
	log.Debug("Formulation state", "state", "validating", "ingredients", len(req.Ingredients))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Formulation panicked", "panic", r)
			out = rejected(ReasonSolverError, StatusSolverError, ErrSolverPanic)
		}
		o.recordOutcome(out)
	}()

	if len(req.Ingredients) == 0 {
		log.Info("Formulation rejected", "reason", ReasonValidation, "error", ErrNoIngredients)
		return rejected(ReasonValidation, "", ErrNoIngredients)
	}
	if req.Target == nil {
		log.Info("Formulation rejected", "reason", ReasonValidation, "error", ErrNoTarget)
		return rejected(ReasonValidation, "", ErrNoTarget)
	}

	log.Debug("Formulation state", "state", "building_model")
	model, err := BuildModel(req.Ingredients, *req.Target)
	if err != nil {
		log.Info("Formulation rejected", "reason", ReasonValidation, "error", err)
		return rejected(ReasonValidation, "", err)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	log.Debug("Formulation state", "state", "solving", "variables", len(model.Vars), "constraints", len(model.Constraints))
	start := time.Now()
	sol := o.solver.Solve(ctx, model)
	duration := time.Since(start)
	if o.recorder != nil {
		o.recorder.ObserveSolve(string(sol.Status), duration)
	}

	switch {
	case sol.Status.Usable():
		log.Debug("Formulation state", "state", "normalizing", "status", sol.Status, "objective", sol.Objective, "duration", duration)
	case sol.Status == StatusInfeasible || sol.Status == StatusUnbounded:
		log.Warn("Formulation rejected", "reason", ReasonInfeasible, "status", sol.Status, "error", sol.Err, "duration", duration)
	default:
		log.Error("Formulation rejected", "reason", ReasonSolverError, "status", sol.Status, "error", sol.Err, "duration", duration)
	}

	out = assemble(model, req.Ingredients, *req.Target, sol)
	if out.OK() {
		log.Debug("Formulation state", "state", "assembled", "active_ingredients", out.Result.ActiveIngredients())
	}
	return out
}

func (o *Optimizer) recordOutcome(out Outcome) {
	if o.recorder == nil {
		return
	}
	if out.OK() {
		o.recorder.ObserveOutcome("assembled")
		return
	}
	if out.Rejection != nil {
		o.recorder.ObserveOutcome(string(out.Rejection.Reason))
	}
}
