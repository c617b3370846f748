package physics

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/robot"
)

// Link is a revolute joint and the rigid segment it drives.
type Link struct {
	Axis   r3.Vector // joint axis, in the parent frame
	Length r3.Vector // joint to next joint, in this link's frame
	Mass   float64   // point mass at the distal end of the segment

	Lower, Upper float64
}

// SerialArm is a chain of revolute joints carrying point masses. The last
// link's distal point is the end effector.
//
// State: [q1..qn, dq1..dqn]. Control: joint torques.
type SerialArm struct {
	Links    []Link
	Base     r3.Vector
	Gravity  r3.Vector
	Armature float64
	// Home is the rest pose returned by DefaultState.
	Home []float64

	q, dq    []float64
	tau      []float64
	damping  []float64
	enforced []bool
	cache    *kinematics
}

// NewSerialArm builds an arm at rest at the zero configuration with limits
// enforced and no joint damping.
func NewSerialArm(links []Link) (*SerialArm, error) {
	if len(links) == 0 {
		return nil, errors.Wrap(dynamo.ErrParameterBounds, "arm needs at least one link")
	}
	for i, l := range links {
		if l.Axis.Norm() == 0 {
			return nil, errors.Wrapf(dynamo.ErrParameterBounds, "link %d has a zero axis", i)
		}
		if l.Mass < 0 {
			return nil, errors.Wrapf(dynamo.ErrParameterBounds, "link %d has negative mass", i)
		}
		if l.Lower > l.Upper {
			return nil, errors.Wrapf(dynamo.ErrParameterBounds, "link %d limits are inverted", i)
		}
	}
	n := len(links)
	a := &SerialArm{
		Links:    append([]Link(nil), links...),
		Gravity:  r3.Vector{Z: -9.81},
		Armature: 0.01,
		q:        make([]float64, n),
		dq:       make([]float64, n),
		tau:      make([]float64, n),
		damping:  make([]float64, n),
		enforced: make([]bool, n),
	}
	for i := range a.enforced {
		a.enforced[i] = true
	}
	return a, nil
}

// kinematics of every joint origin and mass point for one (q, dq).
type kinematics struct {
	origin    []r3.Vector // joint origins, origin[n] is the end effector
	originVel []r3.Vector
	axis      []r3.Vector
	axisRate  []r3.Vector
	// jac[k][j] is ∂p_k/∂q_j for the mass at origin[k+1]; djac is its rate.
	jac  [][]r3.Vector
	djac [][]r3.Vector
}

func (a *SerialArm) forward(q, dq []float64) *kinematics {
	n := len(a.Links)
	k := &kinematics{
		origin:    make([]r3.Vector, n+1),
		originVel: make([]r3.Vector, n+1),
		axis:      make([]r3.Vector, n),
		axisRate:  make([]r3.Vector, n),
		jac:       make([][]r3.Vector, n),
		djac:      make([][]r3.Vector, n),
	}

	frame := [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}
	var omega r3.Vector
	k.origin[0] = a.Base
	for j, l := range a.Links {
		z := toWorld(frame, l.Axis).Normalize()
		k.axis[j] = z
		k.axisRate[j] = omega.Cross(z)
		for c := range frame {
			frame[c] = rotate(frame[c], z, q[j])
		}
		omega = omega.Add(z.Mul(dq[j]))
		k.origin[j+1] = k.origin[j].Add(toWorld(frame, l.Length))
	}

	for m := 0; m < n; m++ {
		p := k.origin[m+1]
		k.jac[m] = make([]r3.Vector, n)
		var v r3.Vector
		for j := 0; j <= m; j++ {
			k.jac[m][j] = k.axis[j].Cross(p.Sub(k.origin[j]))
			v = v.Add(k.jac[m][j].Mul(dq[j]))
		}
		k.originVel[m+1] = v
	}
	for m := 0; m < n; m++ {
		p, v := k.origin[m+1], k.originVel[m+1]
		k.djac[m] = make([]r3.Vector, n)
		for j := 0; j <= m; j++ {
			k.djac[m][j] = k.axisRate[j].Cross(p.Sub(k.origin[j])).
				Add(k.axis[j].Cross(v.Sub(k.originVel[j])))
		}
	}
	return k
}

func toWorld(frame [3]r3.Vector, v r3.Vector) r3.Vector {
	return frame[0].Mul(v.X).Add(frame[1].Mul(v.Y)).Add(frame[2].Mul(v.Z))
}

// rotate turns v about unit axis k by theta (Rodrigues).
func rotate(v, k r3.Vector, theta float64) r3.Vector {
	s, c := math.Sincos(theta)
	return v.Mul(c).Add(k.Cross(v).Mul(s)).Add(k.Mul(k.Dot(v) * (1 - c)))
}

func (a *SerialArm) massMatrix(k *kinematics) *mat.SymDense {
	n := len(a.Links)
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sum := 0.0
			for p := j; p < n; p++ {
				sum += a.Links[p].Mass * k.jac[p][i].Dot(k.jac[p][j])
			}
			if i == j {
				sum += a.Armature
			}
			m.SetSym(i, j, sum)
		}
	}
	return m
}

// bias returns the Coriolis/centrifugal plus gravity generalized forces.
func (a *SerialArm) bias(k *kinematics, dq []float64) []float64 {
	n := len(a.Links)
	c := make([]float64, n)
	for p := 0; p < n; p++ {
		mass := a.Links[p].Mass
		if mass == 0 {
			continue
		}
		var acc r3.Vector
		for j := 0; j <= p; j++ {
			acc = acc.Add(k.djac[p][j].Mul(dq[j]))
		}
		f := acc.Sub(a.Gravity).Mul(mass)
		for i := 0; i <= p; i++ {
			c[i] += k.jac[p][i].Dot(f)
		}
	}
	return c
}

func (a *SerialArm) current() *kinematics {
	if a.cache == nil {
		a.cache = a.forward(a.q, a.dq)
	}
	return a.cache
}

func (a *SerialArm) StateDim() int   { return 2 * len(a.Links) }
func (a *SerialArm) ControlDim() int { return len(a.Links) }

// Derive returns [dq, ddq] with ddq = M⁻¹(τ − C − G − D·dq).
func (a *SerialArm) Derive(x dynamo.State, u dynamo.Control, _ float64) dynamo.State {
	n := len(a.Links)
	q, dq := x[:n], x[n:2*n]
	k := a.forward(q, dq)

	rhs := mat.NewVecDense(n, a.bias(k, dq))
	for i := 0; i < n; i++ {
		tau := 0.0
		if i < len(u) {
			tau = u[i]
		}
		rhs.SetVec(i, tau-rhs.AtVec(i)-a.damping[i]*dq[i])
	}

	deriv := make(dynamo.State, 2*n)
	copy(deriv, dq)

	var chol mat.Cholesky
	if ok := chol.Factorize(a.massMatrix(k)); !ok {
		for i := n; i < 2*n; i++ {
			deriv[i] = math.NaN()
		}
		return deriv
	}
	var ddq mat.VecDense
	if err := chol.SolveVecTo(&ddq, rhs); err != nil {
		for i := n; i < 2*n; i++ {
			deriv[i] = math.NaN()
		}
		return deriv
	}
	copy(deriv[n:], ddq.RawVector().Data)
	return deriv
}

// Energy is kinetic plus gravitational potential energy.
func (a *SerialArm) Energy(x dynamo.State) float64 {
	n := len(a.Links)
	q, dq := x[:n], x[n:2*n]
	k := a.forward(q, dq)

	e := 0.0
	for i, l := range a.Links {
		v := k.originVel[i+1]
		e += 0.5*l.Mass*v.Norm2() - l.Mass*a.Gravity.Dot(k.origin[i+1])
		e += 0.5 * a.Armature * dq[i] * dq[i]
	}
	return e
}

// DefaultState is the arm at rest in its home pose.
func (a *SerialArm) DefaultState() dynamo.State {
	x := make(dynamo.State, 2*len(a.Links))
	copy(x, a.Home)
	return x
}

// State returns [q, dq].
func (a *SerialArm) State() dynamo.State {
	x := make(dynamo.State, 0, 2*len(a.q))
	x = append(x, a.q...)
	return append(x, a.dq...)
}

// SetState moves the arm. Joints with enforced limits are clamped and
// stopped at the limit.
func (a *SerialArm) SetState(x dynamo.State) error {
	n := len(a.Links)
	if len(x) != 2*n {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "state has length %d, want %d", len(x), 2*n)
	}
	if !x.IsValid() {
		return dynamo.ErrInvalidState
	}
	copy(a.q, x[:n])
	copy(a.dq, x[n:])
	for i, l := range a.Links {
		if !a.enforced[i] {
			continue
		}
		switch {
		case a.q[i] < l.Lower:
			a.q[i] = l.Lower
			a.dq[i] = math.Max(a.dq[i], 0)
		case a.q[i] > l.Upper:
			a.q[i] = l.Upper
			a.dq[i] = math.Min(a.dq[i], 0)
		}
	}
	a.cache = nil
	return nil
}

// Forces returns the torque last applied with SetForces.
func (a *SerialArm) Forces() dynamo.Control {
	return append(dynamo.Control(nil), a.tau...)
}

func (a *SerialArm) DOF() int { return len(a.Links) }

func (a *SerialArm) Positions() []float64 { return append([]float64(nil), a.q...) }

func (a *SerialArm) Velocities() []float64 { return append([]float64(nil), a.dq...) }

func (a *SerialArm) MassMatrix() *mat.Dense {
	return mat.DenseCopyOf(a.massMatrix(a.current()))
}

func (a *SerialArm) InvMassMatrix() *mat.Dense {
	n := len(a.Links)
	var chol mat.Cholesky
	if ok := chol.Factorize(a.massMatrix(a.current())); !ok {
		inv := mat.NewDense(n, n, nil)
		inv.Apply(func(_, _ int, _ float64) float64 { return math.NaN() }, inv)
		return inv
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return mat.NewDense(n, n, nil)
	}
	return mat.DenseCopyOf(&inv)
}

func (a *SerialArm) CoriolisAndGravityForces() *mat.VecDense {
	return mat.NewVecDense(len(a.Links), a.bias(a.current(), a.dq))
}

func (a *SerialArm) SetForces(tau []float64) error {
	if len(tau) != len(a.Links) {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "torque has length %d, want %d", len(tau), len(a.Links))
	}
	copy(a.tau, tau)
	return nil
}

func (a *SerialArm) Joint(i int) robot.Joint {
	if i < 0 || i >= len(a.Links) {
		return nil
	}
	return &armJoint{arm: a, index: i}
}

// LimitEnforced reports whether joint i is clamped to its limits.
func (a *SerialArm) LimitEnforced(i int) bool { return a.enforced[i] }

// Damping returns joint i's viscous damping coefficient.
func (a *SerialArm) Damping(i int) float64 { return a.damping[i] }

// EndEffector is the distal point of the last link.
func (a *SerialArm) EndEffector() robot.Body {
	return &point{arm: a, index: len(a.Links) - 1}
}

// Point returns the body at the distal end of link i.
func (a *SerialArm) Point(i int) (robot.Body, error) {
	if i < 0 || i >= len(a.Links) {
		return nil, errors.Wrapf(dynamo.ErrParameterBounds, "no link %d", i)
	}
	return &point{arm: a, index: i}, nil
}

func (a *SerialArm) GetParams() map[string]float64 {
	return map[string]float64{
		"gravity":  -a.Gravity.Z,
		"armature": a.Armature,
		"damping":  a.damping[0],
	}
}

func (a *SerialArm) SetParam(name string, value float64) error {
	switch name {
	case "gravity":
		a.Gravity = r3.Vector{Z: -value}
	case "armature":
		if value < 0 {
			return errors.Wrap(dynamo.ErrParameterBounds, "armature must be non-negative")
		}
		a.Armature = value
	case "damping":
		if value < 0 {
			return errors.Wrap(dynamo.ErrParameterBounds, "damping must be non-negative")
		}
		for i := range a.damping {
			a.damping[i] = value
		}
	default:
		return fmt.Errorf("unknown param: %s", name)
	}
	a.cache = nil
	return nil
}

type armJoint struct {
	arm   *SerialArm
	index int
}

func (j *armJoint) SetPositionLimitEnforced(enforced bool) {
	j.arm.enforced[j.index] = enforced
}

// SetDampingCoefficient sets viscous damping. Revolute joints only have axis 0.
func (j *armJoint) SetDampingCoefficient(axis int, coeff float64) error {
	if axis != 0 {
		return errors.Wrapf(dynamo.ErrParameterBounds, "joint %d has no axis %d", j.index, axis)
	}
	if coeff < 0 || math.IsNaN(coeff) || math.IsInf(coeff, 0) {
		return errors.Wrapf(dynamo.ErrParameterBounds, "joint %d damping %g", j.index, coeff)
	}
	j.arm.damping[j.index] = coeff
	return nil
}

type point struct {
	arm   *SerialArm
	index int
}

func (p *point) Translation() r3.Vector {
	return p.arm.current().origin[p.index+1]
}

func (p *point) LinearVelocity() r3.Vector {
	return p.arm.current().originVel[p.index+1]
}

func (p *point) LinearJacobian() *mat.Dense {
	return columns(p.arm.current().jac[p.index])
}

func (p *point) LinearJacobianDeriv() *mat.Dense {
	return columns(p.arm.current().djac[p.index])
}

func columns(cols []r3.Vector) *mat.Dense {
	m := mat.NewDense(3, len(cols), nil)
	for j, c := range cols {
		m.Set(0, j, c.X)
		m.Set(1, j, c.Y)
		m.Set(2, j, c.Z)
	}
	return m
}
