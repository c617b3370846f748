package opspace

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/opspace/internal/robot"
)

// fixture builds a 4-dof snapshot with hand-picked, well-conditioned terms.
func fixture() *robot.Snapshot {
	dof := 4
	m := mat.NewDense(dof, dof, []float64{
		2.0, 0.3, 0.1, 0.0,
		0.3, 1.5, 0.2, 0.1,
		0.1, 0.2, 1.2, 0.0,
		0.0, 0.1, 0.0, 0.8,
	})
	var minv mat.Dense
	if err := minv.Inverse(m); err != nil {
		panic(err)
	}
	return &robot.Snapshot{
		DOF:  dof,
		Q:    mat.NewVecDense(dof, []float64{0.1, -0.4, 0.7, 0.2}),
		DQ:   mat.NewVecDense(dof, []float64{0.5, -0.2, 0.1, 0.3}),
		X:    r3.Vector{X: 0.4, Y: 0.1, Z: 0.6},
		DX:   r3.Vector{},
		J:    mat.NewDense(3, dof, []float64{1.0, 0.2, 0.0, 0.1, 0.0, 0.9, 0.3, 0.0, 0.2, 0.0, 1.1, 0.4}),
		DJ:   mat.NewDense(3, dof, []float64{0.1, 0.0, -0.2, 0.0, 0.0, 0.3, 0.1, 0.1, -0.1, 0.2, 0.0, 0.05}),
		M:    m,
		MInv: &minv,
		Cg:   mat.NewVecDense(dof, []float64{0.0, 9.0, 3.0, 0.5}),
	}
}

func TestComputeAtTargetIsDriftOnly(t *testing.T) {
	s := fixture()
	terms, err := Compute(s.X, s, DefaultGains())
	test.That(t, err, test.ShouldBeNil)

	for i := 0; i < 3; i++ {
		test.That(t, terms.F.AtVec(i), test.ShouldAlmostEqual, 0, 1e-12)
		test.That(t, terms.Ddx.AtVec(i), test.ShouldAlmostEqual, terms.B.AtVec(i), 1e-12)
	}
}

func TestComputeDriftIsJacobianDerivativeTimesVelocity(t *testing.T) {
	s := fixture()
	terms, err := Compute(s.X, s, DefaultGains())
	test.That(t, err, test.ShouldBeNil)

	var want mat.VecDense
	want.MulVec(s.DJ, s.DQ)
	test.That(t, mat.EqualApprox(terms.B, &want, 1e-12), test.ShouldBeTrue)
}

func TestComputePDForce(t *testing.T) {
	s := fixture()
	s.DX = r3.Vector{X: 0.0, Y: 0.2, Z: 0.0}
	target := s.X.Add(r3.Vector{X: 0.1})

	terms, err := Compute(target, s, DefaultGains())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, terms.F.AtVec(0), test.ShouldAlmostEqual, 75.0, 1e-9)
	test.That(t, terms.F.AtVec(1), test.ShouldAlmostEqual, -50.0, 1e-9)
	test.That(t, terms.F.AtVec(2), test.ShouldAlmostEqual, 0.0, 1e-9)

	// ddx = b + M2·f
	var m2f, want mat.VecDense
	m2f.MulVec(terms.M2, terms.F)
	want.AddVec(terms.B, &m2f)
	test.That(t, mat.EqualApprox(terms.Ddx, &want, 1e-9), test.ShouldBeTrue)
}

func TestComputeTaskInverseMass(t *testing.T) {
	s := fixture()
	terms, err := Compute(s.X, s, DefaultGains())
	test.That(t, err, test.ShouldBeNil)

	var jm, want mat.Dense
	jm.Mul(s.J, s.MInv)
	want.Mul(&jm, s.J.T())
	test.That(t, mat.EqualApprox(terms.M2, &want, 1e-12), test.ShouldBeTrue)
	test.That(t, mat.EqualApprox(terms.M2, terms.M2.T(), 1e-12), test.ShouldBeTrue)
}

func TestComputeJointAcceleration(t *testing.T) {
	s := fixture()
	terms, err := Compute(s.X.Add(r3.Vector{Z: -0.05}), s, DefaultGains())
	test.That(t, err, test.ShouldBeNil)

	var rhs, want mat.VecDense
	rhs.SubVec(terms.Ddx, terms.B)
	want.MulVec(terms.Pinv, &rhs)
	test.That(t, mat.EqualApprox(terms.Ddq, &want, 1e-12), test.ShouldBeTrue)
	test.That(t, terms.Ddq.Len(), test.ShouldEqual, s.DOF)
}

func TestDampedPseudoInverseWellConditioned(t *testing.T) {
	j := mat.NewDense(3, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
	})
	pinv, err := DampedPseudoInverse(j, DefaultDamping)
	test.That(t, err, test.ShouldBeNil)

	var jp mat.Dense
	jp.Mul(j, pinv)
	for i := 0; i < 3; i++ {
		for k := 0; k < 3; k++ {
			want := 0.0
			if i == k {
				want = 1 / (1 + DefaultDamping)
			}
			test.That(t, jp.At(i, k), test.ShouldAlmostEqual, want, 1e-12)
		}
	}
}

func TestDampedPseudoInverseBoundedNearSingularity(t *testing.T) {
	// The largest gain of Jᵗ(JJᵗ+εI)⁻¹ is σ/(σ²+ε) <= 1/(2√ε).
	bound := 1/(2*math.Sqrt(DefaultDamping)) + 1e-9

	for _, sigma := range []float64{1e-1, 1e-3, 1e-6, 1e-9, 1e-12, 0} {
		j := mat.NewDense(3, 3, []float64{
			1, 0, 0,
			0, 1, 0,
			0, 0, sigma,
		})
		pinv, err := DampedPseudoInverse(j, DefaultDamping)
		test.That(t, err, test.ShouldBeNil)

		r, c := pinv.Dims()
		for i := 0; i < r; i++ {
			for k := 0; k < c; k++ {
				v := pinv.At(i, k)
				test.That(t, math.IsNaN(v), test.ShouldBeFalse)
				test.That(t, math.Abs(v), test.ShouldBeLessThanOrEqualTo, bound)
			}
		}
	}
}

func TestDampedPseudoInverseRejectsNonPositiveDamping(t *testing.T) {
	_, err := DampedPseudoInverse(mat.NewDense(3, 3, nil), 0)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestNewGains(t *testing.T) {
	tests := []struct {
		name string
		kp   [3]float64
		kv   [3]float64
		ok   bool
	}{
		{"default", [3]float64{750, 750, 750}, [3]float64{250, 250, 250}, true},
		{"zero", [3]float64{}, [3]float64{}, true},
		{"negative kp", [3]float64{-1, 0, 0}, [3]float64{}, false},
		{"negative kv", [3]float64{}, [3]float64{0, 0, -3}, false},
		{"nan", [3]float64{math.NaN(), 0, 0}, [3]float64{}, false},
		{"inf", [3]float64{}, [3]float64{math.Inf(1), 0, 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGains(tt.kp, tt.kv)
			if !tt.ok {
				test.That(t, err, test.ShouldNotBeNil)
				return
			}
			test.That(t, err, test.ShouldBeNil)
			kp, kv := g.Diagonals()
			test.That(t, kp, test.ShouldResemble, tt.kp)
			test.That(t, kv, test.ShouldResemble, tt.kv)
		})
	}
}

func TestComputeRejectsUnsetGains(t *testing.T) {
	_, err := Compute(r3.Vector{}, fixture(), Gains{})
	test.That(t, err, test.ShouldNotBeNil)
}
