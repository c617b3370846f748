package refine

import (
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/opspace/internal/dynamo"
)

const (
	// DefaultTolerance is the constraint tolerance handed to the optimizer.
	DefaultTolerance = 1e-8

	numVars = 3
)

// Func is an objective or constraint with an optional gradient output.
type Func func(x, grad []float64) float64

// Optimizer is a local gradient-based constrained optimizer over a fixed
// number of variables.
type Optimizer interface {
	SetMinObjective(f Func) error
	AddInequalityConstraint(f Func, tol float64) error
	SetBounds(lower, upper []float64) error
	Optimize(x0 []float64) ([]float64, float64, error)
	Destroy()
}

// Factory creates an optimizer for n variables honoring the budget.
type Factory func(n int, b Budget) (Optimizer, error)

// Budget bounds the work done in a single tick.
type Budget struct {
	MaxEval int
	MaxTime time.Duration
	XtolRel float64
	// Span is the half-width of the search box around ddx_desired.
	Span float64
}

// DefaultBudget keeps a refinement well under a millisecond-scale tick.
func DefaultBudget() Budget {
	return Budget{
		MaxEval: 200,
		MaxTime: 5 * time.Millisecond,
		XtolRel: 1e-6,
		Span:    1e3,
	}
}

// Bounded replaces non-positive MaxEval, MaxTime and XtolRel with their
// defaults, so a refinement always stops on both evaluations and time.
func (b Budget) Bounded() Budget {
	d := DefaultBudget()
	if b.MaxEval <= 0 {
		b.MaxEval = d.MaxEval
	}
	if b.MaxTime <= 0 {
		b.MaxTime = d.MaxTime
	}
	if b.XtolRel <= 0 {
		b.XtolRel = d.XtolRel
	}
	return b
}

// Status describes how a refinement ended.
type Status int

const (
	Refined Status = iota
	FallbackInvalid
	FallbackFailed
	FallbackInfeasible
	// Skipped means refinement is turned off and ddx_desired is used as is.
	Skipped
)

func (s Status) String() string {
	switch s {
	case Refined:
		return "refined"
	case FallbackInvalid:
		return "fallback_invalid"
	case FallbackFailed:
		return "fallback_failed"
	case FallbackInfeasible:
		return "fallback_infeasible"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of String.
func ParseStatus(name string) (Status, error) {
	for s := Refined; s <= Skipped; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, errors.Errorf("unknown refinement status %q", name)
}

// Outcome is the result of one refinement. Ddx is always usable.
type Outcome struct {
	Ddx     *mat.VecDense
	Status  Status
	Evals   int
	Elapsed time.Duration
	Err     error
}

// Fallback reports whether refinement was attempted and abandoned.
func (o Outcome) Fallback() bool {
	return o.Status != Refined && o.Status != Skipped
}

// Unrefined wraps ddx_desired in an outcome for callers that skip the
// optimizer.
func Unrefined(desired *mat.VecDense) Outcome {
	return Outcome{Ddx: mat.VecDenseCopyOf(desired), Status: Skipped}
}

// Refiner runs the per-tick optimization.
type Refiner struct {
	factory Factory
	budget  Budget
	tol     float64
	clock   clock.Clock
	logger  *zap.SugaredLogger

	// creation failures repeat every tick, so only the first is a warning.
	createWarn sync.Once
}

// createError marks a fallback caused by the factory rather than the search.
type createError struct{ error }

func (e createError) Unwrap() error { return e.error }

type Option func(*Refiner)

func WithFactory(f Factory) Option {
	return func(r *Refiner) { r.factory = f }
}

// WithBudget sets the per-tick budget. Zero limits take their
// DefaultBudget values; a zero Span leaves the search unboxed.
func WithBudget(b Budget) Option {
	return func(r *Refiner) { r.budget = b.Bounded() }
}

func WithTolerance(tol float64) Option {
	return func(r *Refiner) { r.tol = tol }
}

func WithClock(c clock.Clock) Option {
	return func(r *Refiner) { r.clock = c }
}

// New returns a refiner backed by nlopt's MMA unless another factory is given.
func New(logger *zap.SugaredLogger, opts ...Option) *Refiner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Refiner{
		factory: NewMMA,
		budget:  DefaultBudget(),
		tol:     DefaultTolerance,
		clock:   clock.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Budget returns the per-tick budget.
func (r *Refiner) Budget() Budget {
	return r.budget
}

// Refine optimizes around p.Desired. It never fails: every problem is
// recorded in the outcome and the unrefined acceleration is returned.
func (r *Refiner) Refine(p *Params) Outcome {
	start := r.clock.Now()
	out := Outcome{Ddx: fallbackCopy(p)}

	if err := ensureReady(p); err != nil {
		out.Status = FallbackInvalid
		out.Err = err
		r.logger.Warnw("refinement skipped", "status", out.Status, "error", err)
		return out
	}

	x, evals, err := r.optimize(p)
	out.Evals = evals
	out.Elapsed = r.clock.Since(start)

	switch {
	case err != nil:
		out.Status = FallbackFailed
		out.Err = errors.Wrap(dynamo.ErrNonConvergence, err.Error())
	case r.budget.MaxEval > 0 && evals >= r.budget.MaxEval,
		r.budget.MaxTime > 0 && out.Elapsed >= r.budget.MaxTime:
		out.Status = FallbackFailed
		out.Err = errors.Wrapf(dynamo.ErrBudgetExhausted, "%d evaluations in %v", evals, out.Elapsed)
	case !finite(x):
		out.Status = FallbackFailed
		out.Err = errors.Wrap(dynamo.ErrNonConvergence, "optimizer returned a non-finite point")
	case MaxViolation(p, x) > r.tol:
		out.Status = FallbackInfeasible
		out.Err = errors.Wrapf(dynamo.ErrNonConvergence, "bound violated by %g", MaxViolation(p, x))
	default:
		out.Status = Refined
		out.Ddx = mat.NewVecDense(numVars, x)
		r.logger.Debugw("refined", "evals", evals, "elapsed", out.Elapsed)
		return out
	}

	var ce createError
	if !errors.As(err, &ce) {
		r.logger.Warnw("refinement fell back to desired acceleration",
			"status", out.Status, "evals", evals, "elapsed", out.Elapsed, "error", out.Err)
		return out
	}
	warned := false
	r.createWarn.Do(func() {
		warned = true
		r.logger.Warnw("optimizer unavailable, using desired acceleration", "error", out.Err)
	})
	if !warned {
		r.logger.Debugw("refinement fell back to desired acceleration", "status", out.Status, "error", out.Err)
	}
	return out
}

func (r *Refiner) optimize(p *Params) (x []float64, evals int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("optimizer panic: %v", rec)
		}
	}()

	opt, err := r.factory(numVars, r.budget)
	if err != nil {
		return nil, 0, createError{errors.Wrap(err, "creating optimizer")}
	}
	defer opt.Destroy()

	x0 := p.Desired.RawVector().Data
	x0 = append([]float64(nil), x0[:numVars]...)

	if r.budget.Span > 0 {
		lower, upper := make([]float64, numVars), make([]float64, numVars)
		for i := range x0 {
			lower[i] = x0[i] - r.budget.Span
			upper[i] = x0[i] + r.budget.Span
		}
		if err := opt.SetBounds(lower, upper); err != nil {
			return nil, 0, err
		}
	}

	if err := opt.SetMinObjective(func(x, grad []float64) float64 {
		evals++
		return Objective(p, x, grad)
	}); err != nil {
		return nil, 0, err
	}

	for i, lb := range p.TauMin {
		if math.IsInf(lb, -1) {
			continue
		}
		if err := opt.AddInequalityConstraint(func(x, grad []float64) float64 {
			return Constraint(p, i, x, grad)
		}, r.tol); err != nil {
			return nil, 0, err
		}
	}

	x, _, err = opt.Optimize(x0)
	return x, evals, err
}

func ensureReady(p *Params) error {
	if p == nil {
		return errors.Wrap(dynamo.ErrInvalidConfiguration, "no refinement parameters")
	}
	if p.ready() {
		return ValidateLowerBound(p.TauMin, p.DOF())
	}
	return p.prepare()
}

func fallbackCopy(p *Params) *mat.VecDense {
	if p == nil || p.Desired == nil {
		return mat.NewVecDense(numVars, nil)
	}
	return mat.VecDenseCopyOf(p.Desired)
}

func finite(x []float64) bool {
	if len(x) != numVars {
		return false
	}
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
