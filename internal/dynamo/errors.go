package dynamo

import "errors"

// Domain errors for simulation and control operations.
var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrUnstable indicates the simulation became numerically unstable.
	ErrUnstable = errors.New("dynamo: simulation unstable (state diverged)")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrDimensionMismatch indicates mismatched state/control dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrInvalidConfiguration indicates a missing or wrongly sized setting,
	// such as the torque lower bound.
	ErrInvalidConfiguration = errors.New("dynamo: invalid configuration")

	// ErrConstruction indicates a controller was built without a robot or body.
	ErrConstruction = errors.New("dynamo: construction failed")

	// ErrNonConvergence indicates the optimizer failed to produce a usable point.
	ErrNonConvergence = errors.New("dynamo: optimization did not converge")

	// ErrBudgetExhausted indicates the optimizer ran out of evaluations or time.
	ErrBudgetExhausted = errors.New("dynamo: optimization budget exhausted")
)

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return e.Wrapped.Error()
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}
