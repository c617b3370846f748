// Package robot defines the boundary between the controller and the
// rigid-body dynamics engine that owns the robot.
//
// The controller only holds non-owning handles to a [Model] and a [Body];
// their lifetime belongs to whoever built them. Each tick the controller
// reads everything it needs through [Capture] and writes torques back with
// [Model.SetForces].
package robot

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Model is the source of kinematic and dynamic state and the sink for
// torque commands.
type Model interface {
	DOF() int
	Positions() []float64
	Velocities() []float64
	MassMatrix() *mat.Dense
	InvMassMatrix() *mat.Dense
	CoriolisAndGravityForces() *mat.VecDense
	Joint(i int) Joint
	SetForces(tau []float64) error
}

// Joint exposes the per-joint settings used once during setup.
type Joint interface {
	SetPositionLimitEnforced(enforced bool)
	SetDampingCoefficient(axis int, coeff float64) error
}

// Body is a point on the robot whose linear motion is controlled, usually
// the end effector.
type Body interface {
	Translation() r3.Vector
	LinearVelocity() r3.Vector
	LinearJacobian() *mat.Dense
	LinearJacobianDeriv() *mat.Dense
}
