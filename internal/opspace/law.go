// Package opspace computes the operational-space control law: the virtual
// PD force at the end effector and the task- and joint-space accelerations
// it asks for.
//
// All quantities are per tick. Nothing here keeps state between calls.
package opspace

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/robot"
)

const (
	// DefaultDamping is the regulariser added to J·Jᵗ before inversion.
	DefaultDamping = 0.0025

	DefaultKp = 750.0
	DefaultKv = 250.0
)

// Gains holds the diagonal stiffness and damping matrices.
type Gains struct {
	Kp *mat.DiagDense
	Kv *mat.DiagDense
}

// DefaultGains returns Kp = 750·I and Kv = 250·I.
func DefaultGains() Gains {
	g, _ := NewGains(
		[3]float64{DefaultKp, DefaultKp, DefaultKp},
		[3]float64{DefaultKv, DefaultKv, DefaultKv},
	)
	return g
}

// NewGains builds diagonal gains. Entries must be finite and non-negative.
func NewGains(kp, kv [3]float64) (Gains, error) {
	for i := 0; i < 3; i++ {
		if !validGain(kp[i]) || !validGain(kv[i]) {
			return Gains{}, errors.Wrapf(dynamo.ErrParameterBounds,
				"gains must be finite and non-negative, got kp[%d]=%g kv[%d]=%g", i, kp[i], i, kv[i])
		}
	}
	return Gains{
		Kp: mat.NewDiagDense(3, kp[:]),
		Kv: mat.NewDiagDense(3, kv[:]),
	}, nil
}

func validGain(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// Diagonals returns copies of the Kp and Kv diagonals.
func (g Gains) Diagonals() (kp, kv [3]float64) {
	for i := 0; i < 3; i++ {
		kp[i] = g.Kp.At(i, i)
		kv[i] = g.Kv.At(i, i)
	}
	return kp, kv
}

// Terms are the intermediate and final quantities of one evaluation of the law.
type Terms struct {
	Pinv *mat.Dense    // damped pseudo-inverse of J, dof x 3
	A    *mat.Dense    // J·M⁻¹, 3 x dof
	M2   *mat.Dense    // J·M⁻¹·Jᵗ, 3 x 3
	B    *mat.VecDense // dJ·dq
	F    *mat.VecDense // virtual PD force
	Ddx  *mat.VecDense // desired task-space acceleration
	Ddq  *mat.VecDense // desired joint-space acceleration
}

// DampedPseudoInverse returns Jᵗ·(J·Jᵗ + εI)⁻¹. The regularised matrix is
// symmetric positive definite for ε > 0 so it is factored with Cholesky.
func DampedPseudoInverse(j mat.Matrix, eps float64) (*mat.Dense, error) {
	if eps <= 0 {
		return nil, errors.Wrapf(dynamo.ErrParameterBounds, "damping must be positive, got %g", eps)
	}
	r, c := j.Dims()

	var jjt mat.SymDense
	jjt.SymOuterK(1, j)
	for i := 0; i < r; i++ {
		jjt.SetSym(i, i, jjt.At(i, i)+eps)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&jjt); !ok {
		return nil, errors.New("damped J·Jᵗ is not positive definite")
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, errors.Wrap(err, "inverting damped J·Jᵗ")
	}

	pinv := mat.NewDense(c, r, nil)
	pinv.Mul(j.T(), &inv)
	return pinv, nil
}

// Compute evaluates the law for one tick with the default damping.
func Compute(target r3.Vector, s *robot.Snapshot, g Gains) (*Terms, error) {
	return ComputeDamped(target, s, g, DefaultDamping)
}

// ComputeDamped evaluates the law with an explicit pseudo-inverse damping.
func ComputeDamped(target r3.Vector, s *robot.Snapshot, g Gains, eps float64) (*Terms, error) {
	if s == nil {
		return nil, errors.New("nil snapshot")
	}
	if g.Kp == nil || g.Kv == nil {
		return nil, errors.Wrap(dynamo.ErrInvalidConfiguration, "gains are not set")
	}

	pinv, err := DampedPseudoInverse(s.J, eps)
	if err != nil {
		return nil, err
	}

	t := &Terms{Pinv: pinv}

	t.A = mat.NewDense(3, s.DOF, nil)
	t.A.Mul(s.J, s.MInv)

	t.M2 = mat.NewDense(3, 3, nil)
	t.M2.Mul(t.A, s.J.T())

	// Gravity stays out of the drift term; it is compensated through Cg.
	t.B = mat.NewVecDense(3, nil)
	t.B.MulVec(s.DJ, s.DQ)

	e := robot.Vec3(s.X.Sub(target))
	var kpe, kvdx mat.VecDense
	kpe.MulVec(g.Kp, e)
	kvdx.MulVec(g.Kv, robot.Vec3(s.DX))
	t.F = mat.NewVecDense(3, nil)
	t.F.AddVec(&kpe, &kvdx)
	t.F.ScaleVec(-1, t.F)

	var m2f mat.VecDense
	m2f.MulVec(t.M2, t.F)
	t.Ddx = mat.NewVecDense(3, nil)
	t.Ddx.AddVec(t.B, &m2f)

	t.Ddq = JointAcceleration(t, t.Ddx)
	return t, nil
}

// JointAcceleration maps a task-space acceleration to joint space through
// the damped pseudo-inverse: J⁺·(ddx − dJ·dq).
func JointAcceleration(t *Terms, ddx mat.Vector) *mat.VecDense {
	var rhs mat.VecDense
	rhs.SubVec(ddx, t.B)
	r, _ := t.Pinv.Dims()
	ddq := mat.NewVecDense(r, nil)
	ddq.MulVec(t.Pinv, &rhs)
	return ddq
}
