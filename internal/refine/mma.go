//go:build !no_cgo

package refine

import (
	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// mma adapts nlopt's method of moving asymptotes to the Optimizer interface.
type mma struct {
	opt *nlopt.NLopt
}

// NewMMA creates an nlopt LD_MMA optimizer limited by b.
func NewMMA(n int, b Budget) (Optimizer, error) {
	opt, err := nlopt.NewNLopt(nlopt.LD_MMA, uint(n))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}

	err = multierr.Combine(
		opt.SetXtolRel(b.XtolRel),
		opt.SetFtolAbs(1e-14),
	)
	if b.MaxEval > 0 {
		err = multierr.Append(err, opt.SetMaxEval(b.MaxEval))
	}
	if b.MaxTime > 0 {
		err = multierr.Append(err, opt.SetMaxTime(b.MaxTime.Seconds()))
	}
	if err != nil {
		opt.Destroy()
		return nil, err
	}
	return &mma{opt: opt}, nil
}

func (m *mma) SetMinObjective(f Func) error {
	return m.opt.SetMinObjective(nlopt.Func(f))
}

func (m *mma) AddInequalityConstraint(f Func, tol float64) error {
	return m.opt.AddInequalityConstraint(nlopt.Func(f), tol)
}

func (m *mma) SetBounds(lower, upper []float64) error {
	return multierr.Combine(
		m.opt.SetLowerBounds(lower),
		m.opt.SetUpperBounds(upper),
	)
}

func (m *mma) Optimize(x0 []float64) ([]float64, float64, error) {
	return m.opt.Optimize(x0)
}

func (m *mma) Destroy() {
	m.opt.Destroy()
}
