package torque

import (
	"errors"
	"math"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/opspace/internal/dynamo"
)

func fixture() (j, m *mat.Dense) {
	j = mat.NewDense(3, 5, []float64{
		0.3, -0.1, 0.4, 0.0, 0.2,
		0.1, 0.5, -0.2, 0.3, 0.0,
		-0.2, 0.0, 0.1, 0.6, 0.1,
	})
	m = mat.NewDense(5, 5, []float64{
		2.0, 0.3, 0.1, 0.0, 0.0,
		0.3, 1.5, 0.2, 0.1, 0.0,
		0.1, 0.2, 1.2, 0.1, 0.1,
		0.0, 0.1, 0.1, 0.8, 0.1,
		0.0, 0.0, 0.1, 0.1, 0.5,
	})
	return j, m
}

func jmInv(t *testing.T, j, m *mat.Dense) *mat.Dense {
	t.Helper()
	var inv mat.Dense
	test.That(t, inv.Inverse(m), test.ShouldBeNil)
	var a mat.Dense
	a.Mul(j, &inv)
	return &a
}

func TestSolveGravityOnly(t *testing.T) {
	j, m := fixture()
	a := jmInv(t, j, m)
	b := mat.NewVecDense(3, []float64{0.4, -1.2, 3})
	cg := mat.NewVecDense(5, []float64{0, 9.81, -4.2, 0.5, 1e-3})

	res, err := New().Solve(mat.VecDenseCopyOf(b), b, a, cg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Torque.RawVector().Data, test.ShouldResemble, cg.RawVector().Data)
}

func TestSolveReproducesTaskAcceleration(t *testing.T) {
	j, m := fixture()
	a := jmInv(t, j, m)
	ddx := mat.NewVecDense(3, []float64{1.5, -0.7, 2.2})
	b := mat.NewVecDense(3, []float64{0.1, 0.2, -0.3})
	cg := mat.NewVecDense(5, nil)

	res, err := New().Solve(ddx, b, a, cg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Rank, test.ShouldEqual, 3)

	// Zero gravity and Coriolis: ddq = M⁻¹τ and ddx = J·ddq + b.
	var ddq mat.VecDense
	test.That(t, ddq.SolveVec(m, res.Torque), test.ShouldBeNil)
	var got mat.VecDense
	got.MulVec(j, &ddq)
	got.AddVec(&got, b)
	for i := 0; i < 3; i++ {
		test.That(t, got.AtVec(i), test.ShouldAlmostEqual, ddx.AtVec(i), 1e-9)
	}
	test.That(t, Residual(res.Torque, ddx, b, a, cg), test.ShouldBeLessThan, 1e-9)
}

func TestSolveIsMinimumNorm(t *testing.T) {
	j, m := fixture()
	a := jmInv(t, j, m)
	ddx := mat.NewVecDense(3, []float64{0.3, 0.9, -1.1})
	b := mat.NewVecDense(3, nil)
	cg := mat.NewVecDense(5, nil)

	res, err := New().Solve(ddx, b, a, cg)
	test.That(t, err, test.ShouldBeNil)

	// Aᵗ(AAᵗ)⁻¹·rhs for a full row rank A.
	var aat mat.Dense
	aat.Mul(a, a.T())
	var y mat.VecDense
	test.That(t, y.SolveVec(&aat, ddx), test.ShouldBeNil)
	var want mat.VecDense
	want.MulVec(a.T(), &y)
	for i := 0; i < 5; i++ {
		test.That(t, res.Torque.AtVec(i), test.ShouldAlmostEqual, want.AtVec(i), 1e-9)
	}
}

func TestSolveRankDeficient(t *testing.T) {
	// A planar arm has no z authority: the last row of J·M⁻¹ is zero.
	a := mat.NewDense(3, 3, []float64{
		1, 0.5, 0.2,
		0, 1, 0.4,
		0, 0, 0,
	})
	ddx := mat.NewVecDense(3, []float64{1, 2, 5})
	b := mat.NewVecDense(3, nil)
	cg := mat.NewVecDense(3, []float64{0.1, 0.2, 0.3})

	res, err := New().Solve(ddx, b, a, cg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Rank, test.ShouldEqual, 2)
	for i := 0; i < 3; i++ {
		v := res.Torque.AtVec(i)
		test.That(t, math.IsNaN(v) || math.IsInf(v, 0), test.ShouldBeFalse)
	}

	var dtau, got mat.VecDense
	dtau.SubVec(res.Torque, cg)
	got.MulVec(a, &dtau)
	test.That(t, got.AtVec(0), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, got.AtVec(1), test.ShouldAlmostEqual, 2, 1e-9)
	test.That(t, got.AtVec(2), test.ShouldEqual, 0.0)
}

func TestSolveNearSingular(t *testing.T) {
	a := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1e-14,
	})
	ddx := mat.NewVecDense(3, []float64{1, 1, 1})
	res, err := New().Solve(ddx, mat.NewVecDense(3, nil), a, mat.NewVecDense(3, nil))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Rank, test.ShouldEqual, 2)
	test.That(t, res.Torque.AtVec(2), test.ShouldAlmostEqual, 0, 1e-12)
}

func TestSolveZeroRank(t *testing.T) {
	cg := mat.NewVecDense(2, []float64{4, 5})
	res, err := New().Solve(
		mat.NewVecDense(3, []float64{1, 0, 0}),
		mat.NewVecDense(3, nil),
		mat.NewDense(3, 2, nil),
		cg,
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Rank, test.ShouldEqual, 0)
	test.That(t, res.Torque.RawVector().Data, test.ShouldResemble, []float64{4, 5})
}

func TestSolveRejectsBadInput(t *testing.T) {
	j, m := fixture()
	a := jmInv(t, j, m)
	s := New()

	_, err := s.Solve(mat.NewVecDense(2, nil), mat.NewVecDense(3, nil), a, mat.NewVecDense(5, nil))
	test.That(t, errors.Is(err, dynamo.ErrDimensionMismatch), test.ShouldBeTrue)

	_, err = s.Solve(mat.NewVecDense(3, nil), mat.NewVecDense(3, nil), a, mat.NewVecDense(4, nil))
	test.That(t, errors.Is(err, dynamo.ErrDimensionMismatch), test.ShouldBeTrue)

	_, err = s.Solve(nil, mat.NewVecDense(3, nil), a, mat.NewVecDense(5, nil))
	test.That(t, errors.Is(err, dynamo.ErrDimensionMismatch), test.ShouldBeTrue)

	_, err = s.Solve(mat.NewVecDense(3, []float64{math.NaN(), 0, 0}), mat.NewVecDense(3, nil), a, mat.NewVecDense(5, nil))
	test.That(t, errors.Is(err, dynamo.ErrInvalidState), test.ShouldBeTrue)
}
