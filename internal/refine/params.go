package refine

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/opspace/internal/dynamo"
)

// Params is everything the objective and constraints read. Objective and
// constraint functions are pure functions of a Params and the decision
// variable.
type Params struct {
	Desired *mat.VecDense // ddx_desired
	Drift   *mat.VecDense // dJ·dq
	Pinv    *mat.Dense    // damped J⁺, dof x 3
	M       *mat.Dense    // mass matrix
	Cg      *mat.VecDense // coriolis + gravity
	TauMin  []float64     // required torque lower bound, length dof

	effort *mat.Dense    // M·J⁺
	offset *mat.VecDense // Cg − M·J⁺·b
}

// NewParams validates the inputs and precomputes the affine map from ddx to
// joint torque.
func NewParams(desired, drift *mat.VecDense, pinv, m *mat.Dense, cg *mat.VecDense, tauMin []float64) (*Params, error) {
	p := &Params{Desired: desired, Drift: drift, Pinv: pinv, M: m, Cg: cg, TauMin: tauMin}
	if err := p.prepare(); err != nil {
		return nil, err
	}
	return p, nil
}

// ValidateLowerBound checks that τ_min is present, sized to dof and free of NaN.
// Infinite entries are allowed and mean "unbounded" for that joint.
func ValidateLowerBound(tauMin []float64, dof int) error {
	if tauMin == nil {
		return errors.Wrap(dynamo.ErrInvalidConfiguration, "torque lower bound is not set")
	}
	if len(tauMin) != dof {
		return errors.Wrapf(dynamo.ErrInvalidConfiguration,
			"torque lower bound has length %d, want %d", len(tauMin), dof)
	}
	for i, v := range tauMin {
		if math.IsNaN(v) || math.IsInf(v, 1) {
			return errors.Wrapf(dynamo.ErrInvalidConfiguration, "torque lower bound[%d] is %g", i, v)
		}
	}
	return nil
}

// DOF is the number of joints the parameters describe.
func (p *Params) DOF() int {
	if p.M == nil {
		return 0
	}
	r, _ := p.M.Dims()
	return r
}

func (p *Params) prepare() error {
	if p.Desired == nil || p.Desired.Len() != 3 {
		return errors.Wrap(dynamo.ErrDimensionMismatch, "desired acceleration must be a 3-vector")
	}
	if p.Drift == nil || p.Drift.Len() != 3 {
		return errors.Wrap(dynamo.ErrDimensionMismatch, "drift must be a 3-vector")
	}
	if p.M == nil || p.Pinv == nil || p.Cg == nil {
		return errors.Wrap(dynamo.ErrDimensionMismatch, "mass matrix, pseudo-inverse and Cg are required")
	}
	dof := p.DOF()
	if r, c := p.M.Dims(); r != c {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "mass matrix is %dx%d", r, c)
	}
	if r, c := p.Pinv.Dims(); r != dof || c != 3 {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "pseudo-inverse is %dx%d, want %dx3", r, c, dof)
	}
	if p.Cg.Len() != dof {
		return errors.Wrapf(dynamo.ErrDimensionMismatch, "Cg has length %d, want %d", p.Cg.Len(), dof)
	}
	if err := ValidateLowerBound(p.TauMin, dof); err != nil {
		return err
	}

	p.effort = mat.NewDense(dof, 3, nil)
	p.effort.Mul(p.M, p.Pinv)

	var eb mat.VecDense
	eb.MulVec(p.effort, p.Drift)
	p.offset = mat.NewVecDense(dof, nil)
	p.offset.SubVec(p.Cg, &eb)
	return nil
}

func (p *Params) ready() bool {
	return p != nil && p.effort != nil && p.offset != nil
}

// Objective returns ‖x − ddx_desired‖² and, when grad is non-empty, fills it
// with 2(x − ddx_desired).
func Objective(p *Params, x, grad []float64) float64 {
	sum := 0.0
	for i := 0; i < 3; i++ {
		d := x[i] - p.Desired.AtVec(i)
		sum += d * d
		if len(grad) > 0 {
			grad[i] = 2 * d
		}
	}
	return sum
}

// JointTorque returns M·J⁺(x − b) + Cg, the torque implied by task
// acceleration x.
func JointTorque(p *Params, x []float64) []float64 {
	dof := p.DOF()
	tau := make([]float64, dof)
	for i := 0; i < dof; i++ {
		tau[i] = p.offset.AtVec(i) +
			p.effort.At(i, 0)*x[0] + p.effort.At(i, 1)*x[1] + p.effort.At(i, 2)*x[2]
	}
	return tau
}

// Slack returns g(x) = M·ddq(x) + Cg − τ_min. x is feasible when every entry
// is non-negative.
func Slack(p *Params, x []float64) []float64 {
	g := JointTorque(p, x)
	for i := range g {
		g[i] -= p.TauMin[i]
	}
	return g
}

// Constraint evaluates joint i's lower bound in c(x) ≤ 0 form, that is
// τ_min[i] − τ_i(x), with gradient −(M·J⁺)[i,:].
func Constraint(p *Params, i int, x, grad []float64) float64 {
	tau := p.offset.AtVec(i)
	for k := 0; k < 3; k++ {
		tau += p.effort.At(i, k) * x[k]
		if len(grad) > 0 {
			grad[k] = -p.effort.At(i, k)
		}
	}
	return p.TauMin[i] - tau
}

// MaxViolation returns the largest amount by which x breaks a bound, or 0.
func MaxViolation(p *Params, x []float64) float64 {
	worst := 0.0
	for _, g := range Slack(p, x) {
		if -g > worst {
			worst = -g
		}
	}
	return worst
}
