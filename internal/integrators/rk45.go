package integrators

import (
	"math"

	"github.com/san-kum/opspace/internal/dynamo"
)

// Dormand-Prince 5(4) tableau.
var (
	dpNodes = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA     = [6][]float64{
		nil,
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
	}
	dpB = []float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84}
	// fifth minus fourth order weights, FSAL stage last
	dpE = []float64{
		35.0/384 - 5179.0/57600,
		0,
		500.0/1113 - 7571.0/16695,
		125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200,
		11.0/84 - 187.0/2100,
		-1.0 / 40,
	}
)

// RK45 is Dormand-Prince with error control. Step always covers the whole
// control tick: the held torque is integrated over as many accepted
// sub-steps as the error estimate asks for, and the last accepted sub-step
// seeds the next tick.
type RK45 struct {
	Tol         float64
	MaxAttempts int

	safety   float64
	minScale float64
	maxScale float64

	h        float64
	substeps int
	k        []dynamo.State
	scratch  dynamo.State
}

func NewRK45() *RK45 {
	return &RK45{
		Tol:         1e-6,
		MaxAttempts: 1000,
		safety:      0.9,
		minScale:    0.2,
		maxScale:    10.0,
	}
}

func (r *RK45) ensureScratch(n int) {
	if len(r.scratch) != n {
		r.k = make([]dynamo.State, 7)
		for i := range r.k {
			r.k[i] = make(dynamo.State, n)
		}
		r.scratch = make(dynamo.State, n)
	}
}

// Substeps is the number of accepted sub-steps taken by the last Step.
func (r *RK45) Substeps() int { return r.substeps }

func (r *RK45) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	h := r.h
	if h <= 0 || h > dt {
		h = dt
	}

	cur := x.Clone()
	remaining := dt
	r.substeps = 0
	for attempts := 1; remaining > 1e-12*dt; attempts++ {
		h = math.Min(h, remaining)
		next, hNew, errRatio := r.attempt(dyn, cur, u, t+dt-remaining, h, r.Tol)
		if errRatio <= 1 || attempts >= r.MaxAttempts || !next.IsValid() {
			cur = next
			remaining -= h
			r.substeps++
			if !cur.IsValid() {
				break
			}
		}
		h = hNew
	}
	r.h = math.Min(h, dt)
	return cur
}

// StepAdaptive takes a single Dormand-Prince step of size dt and suggests
// the next step size for tolerance tol. The step is returned even when the
// error estimate exceeds tol.
func (r *RK45) StepAdaptive(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt, tol float64) (dynamo.State, float64, error) {
	next, dtNew, _ := r.attempt(dyn, x, u, t, dt, tol)
	return next, dtNew, nil
}

// attempt returns the fifth order solution, the suggested next step and the
// estimated error relative to tol.
func (r *RK45) attempt(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, h, tol float64) (dynamo.State, float64, float64) {
	n := len(x)
	r.ensureScratch(n)

	copy(r.k[0], dyn.Derive(x, u, t))
	for s := 1; s < 6; s++ {
		stage(r.scratch, x, h, dpA[s], r.k[:s])
		copy(r.k[s], dyn.Derive(r.scratch, u, t+dpNodes[s]*h))
	}
	xNew := make(dynamo.State, n)
	stage(xNew, x, h, dpB, r.k[:6])
	copy(r.k[6], dyn.Derive(xNew, u, t+h))

	errMax := 0.0
	for i := 0; i < n; i++ {
		var e float64
		for j, w := range dpE {
			e += w * r.k[j][i]
		}
		scale := math.Abs(x[i]) + math.Abs(h*r.k[0][i]) + 1e-10
		errMax = math.Max(errMax, math.Abs(h*e)/scale)
	}

	errRatio := errMax / tol
	var hNew float64
	switch {
	case errRatio > 1:
		hNew = h * math.Max(r.minScale, r.safety*math.Pow(errRatio, -0.25))
	case errRatio > 0:
		hNew = h * math.Min(r.maxScale, r.safety*math.Pow(errRatio, -0.2))
	default:
		hNew = h * r.maxScale
	}
	return xNew, hNew, errRatio
}
