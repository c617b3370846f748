package robot

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/opspace/internal/dynamo"
)

// Snapshot is a consistent read of the robot taken at the start of a tick.
type Snapshot struct {
	DOF  int
	Q    *mat.VecDense
	DQ   *mat.VecDense
	X    r3.Vector
	DX   r3.Vector
	J    *mat.Dense // 3 x dof
	DJ   *mat.Dense // 3 x dof
	M    *mat.Dense // dof x dof
	MInv *mat.Dense // dof x dof
	Cg   *mat.VecDense
}

// Capture reads the model and body once and checks every quantity against
// the model's degree-of-freedom count.
func Capture(m Model, b Body) (*Snapshot, error) {
	if m == nil || b == nil {
		return nil, errors.Wrap(dynamo.ErrConstruction, "capture needs a model and a body")
	}
	dof := m.DOF()
	if dof <= 0 {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "dof must be positive, got %d", dof)
	}

	q, dq := m.Positions(), m.Velocities()
	if len(q) != dof || len(dq) != dof {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch,
			"positions/velocities have length %d/%d, want %d", len(q), len(dq), dof)
	}

	s := &Snapshot{
		DOF:  dof,
		Q:    mat.NewVecDense(dof, append([]float64(nil), q...)),
		DQ:   mat.NewVecDense(dof, append([]float64(nil), dq...)),
		X:    b.Translation(),
		DX:   b.LinearVelocity(),
		J:    b.LinearJacobian(),
		DJ:   b.LinearJacobianDeriv(),
		M:    m.MassMatrix(),
		MInv: m.InvMassMatrix(),
		Cg:   m.CoriolisAndGravityForces(),
	}

	if err := checkDims("jacobian", s.J, 3, dof); err != nil {
		return nil, err
	}
	if err := checkDims("jacobian derivative", s.DJ, 3, dof); err != nil {
		return nil, err
	}
	if err := checkDims("mass matrix", s.M, dof, dof); err != nil {
		return nil, err
	}
	if err := checkDims("inverse mass matrix", s.MInv, dof, dof); err != nil {
		return nil, err
	}
	if s.Cg == nil || s.Cg.Len() != dof {
		return nil, errors.Wrap(dynamo.ErrDimensionMismatch, "coriolis/gravity vector must have length dof")
	}

	if !s.finite() {
		return nil, dynamo.ErrInvalidState
	}
	return s, nil
}

func checkDims(name string, m *mat.Dense, r, c int) error {
	if m == nil {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "%s is nil", name)
	}
	mr, mc := m.Dims()
	if mr != r || mc != c {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "%s is %dx%d, want %dx%d", name, mr, mc, r, c)
	}
	return nil
}

func (s *Snapshot) finite() bool {
	for _, v := range []float64{s.X.X, s.X.Y, s.X.Z, s.DX.X, s.DX.Y, s.DX.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	for _, m := range []mat.Matrix{s.Q, s.DQ, s.J, s.DJ, s.M, s.MInv, s.Cg} {
		if !Finite(m) {
			return false
		}
	}
	return true
}

// Finite reports whether every element of m is a finite number.
func Finite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Vec3 converts an r3 vector to a 3-element column vector.
func Vec3(v r3.Vector) *mat.VecDense {
	return mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
}

// ToR3 converts the first three elements of v to an r3 vector.
func ToR3(v mat.Vector) r3.Vector {
	return r3.Vector{X: v.AtVec(0), Y: v.AtVec(1), Z: v.AtVec(2)}
}
