package sim

import (
	"github.com/golang/geo/r3"

	"github.com/san-kum/opspace/internal/control"
	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/refine"
	"github.com/san-kum/opspace/internal/robot"
)

// Plant is a simulated robot. The controller reads and commands it through
// robot.Model; the simulator integrates it as a dynamo.System.
type Plant interface {
	dynamo.System
	robot.Model
	State() dynamo.State
	SetState(x dynamo.State) error
	Forces() dynamo.Control
}

// Controller computes and applies one torque command per tick.
type Controller interface {
	Update(target r3.Vector) (*control.Command, error)
}

// TargetFunc gives the Cartesian target at time t.
type TargetFunc func(t float64) r3.Vector

// Fixed is a target that never moves.
func Fixed(p r3.Vector) TargetFunc {
	return func(float64) r3.Vector { return p }
}

type Result struct {
	Times     []float64
	States    []dynamo.State
	Torques   []dynamo.Control
	Positions []r3.Vector
	Targets   []r3.Vector
	Errors    []float64
	Statuses  []refine.Status
	Metrics   map[string]float64

	StepsTaken int
}

// FinalError is the tracking error at the last recorded tick.
func (r *Result) FinalError() float64 {
	if len(r.Errors) == 0 {
		return 0
	}
	return r.Errors[len(r.Errors)-1]
}

// StatusCounts tallies refinement outcomes over the run.
func (r *Result) StatusCounts() map[refine.Status]int {
	counts := make(map[refine.Status]int)
	for _, s := range r.Statuses {
		counts[s]++
	}
	return counts
}
