// Package torque turns a task-space acceleration into joint torques with
// gravity and Coriolis compensation.
package torque

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/robot"
)

// DefaultRCond is the relative singular-value cutoff below which directions
// of J·M⁻¹ are treated as lost.
const DefaultRCond = 1e-10

// Synthesizer solves τ = Cg + (J·M⁻¹)⁺·(ddx − b) by SVD least squares.
type Synthesizer struct {
	RCond float64
}

// New returns a synthesizer with the default rank cutoff.
func New() *Synthesizer {
	return &Synthesizer{RCond: DefaultRCond}
}

// Result carries the torque and the numerical rank seen during the solve.
type Result struct {
	Torque *mat.VecDense
	Rank   int
	// Cond is the condition number of the retained part of J·M⁻¹.
	Cond float64
}

// Solve computes the joint torque for task acceleration ddx. a is J·M⁻¹
// (3 x dof), b the drift dJ·dq and cg the Coriolis and gravity vector.
func (s *Synthesizer) Solve(ddx, b *mat.VecDense, a *mat.Dense, cg *mat.VecDense) (*Result, error) {
	if ddx == nil || b == nil || a == nil || cg == nil {
		return nil, errors.Wrap(dynamo.ErrDimensionMismatch, "torque synthesis needs ddx, b, J·M⁻¹ and Cg")
	}
	r, dof := a.Dims()
	if ddx.Len() != r || b.Len() != r {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch,
			"task vectors have length %d/%d, want %d", ddx.Len(), b.Len(), r)
	}
	if cg.Len() != dof {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "Cg has length %d, want %d", cg.Len(), dof)
	}

	rhs := mat.NewVecDense(r, nil)
	rhs.SubVec(ddx, b)

	out := &Result{Torque: mat.VecDenseCopyOf(cg)}
	if zero(rhs) {
		return out, nil
	}
	if !robot.Finite(a) || !robot.Finite(rhs) {
		return nil, errors.Wrap(dynamo.ErrInvalidState, "non-finite torque synthesis input")
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("SVD of J·M⁻¹ did not converge")
	}
	rcond := s.RCond
	if rcond <= 0 {
		rcond = DefaultRCond
	}
	out.Rank = svd.Rank(rcond)
	if out.Rank == 0 {
		return out, nil
	}

	var x mat.VecDense
	out.Cond = svd.SolveVecTo(&x, rhs, out.Rank)
	out.Torque.AddVec(out.Torque, &x)
	return out, nil
}

func zero(v *mat.VecDense) bool {
	for i := 0; i < v.Len(); i++ {
		if v.AtVec(i) != 0 {
			return false
		}
	}
	return true
}

// Residual returns ‖A·(τ − Cg) − (ddx − b)‖, how far the torque misses the
// requested task acceleration.
func Residual(tau, ddx, b *mat.VecDense, a *mat.Dense, cg *mat.VecDense) float64 {
	var dtau, got, want mat.VecDense
	dtau.SubVec(tau, cg)
	got.MulVec(a, &dtau)
	want.SubVec(ddx, b)
	got.SubVec(&got, &want)
	n := got.Norm(2)
	if math.IsNaN(n) {
		return math.Inf(1)
	}
	return n
}
