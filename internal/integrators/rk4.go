package integrators

import "github.com/san-kum/opspace/internal/dynamo"

var (
	rk4Nodes   = [4]float64{0, 0.5, 0.5, 1}
	rk4Weights = []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6}
)

// RK4 is the classic fourth order Runge-Kutta method. The torque is held
// for the whole step, as a controller's command is between ticks.
type RK4 struct {
	k       []dynamo.State
	scratch dynamo.State
}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) ensureScratch(n int) {
	if len(r.scratch) != n {
		r.k = make([]dynamo.State, 4)
		for i := range r.k {
			r.k[i] = make(dynamo.State, n)
		}
		r.scratch = make(dynamo.State, n)
	}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	r.ensureScratch(len(x))

	copy(r.k[0], dyn.Derive(x, u, t))
	for s := 1; s < 4; s++ {
		prev := make([]float64, s)
		prev[s-1] = rk4Nodes[s]
		stage(r.scratch, x, dt, prev, r.k[:s])
		copy(r.k[s], dyn.Derive(r.scratch, u, t+rk4Nodes[s]*dt))
	}

	result := make(dynamo.State, len(x))
	stage(result, x, dt, rk4Weights, r.k)
	return result
}
