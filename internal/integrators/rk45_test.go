package integrators

import (
	"math"
	"testing"

	"github.com/san-kum/opspace/internal/dynamo"
)

type harmonicOscillator struct{}

func (h *harmonicOscillator) StateDim() int   { return 2 }
func (h *harmonicOscillator) ControlDim() int { return 0 }

func (h *harmonicOscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (h *harmonicOscillator) Energy(x dynamo.State) float64 {
	return 0.5 * (x[0]*x[0] + x[1]*x[1])
}

func TestRK45_Step(t *testing.T) {
	integrator := NewRK45()
	dyn := &harmonicOscillator{}
	x := dynamo.State{1.0, 0.0}
	dt := 0.01

	for i := 0; i < 1000; i++ {
		x = integrator.Step(dyn, x, nil, float64(i)*dt, dt)
	}

	if !x.IsValid() {
		t.Error("RK45 produced invalid state")
	}
}

func TestRK45_EnergyConservation(t *testing.T) {
	integrator := NewRK45()
	dyn := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}

	initialEnergy := dyn.Energy(x0)
	x := x0.Clone()
	dt := 0.01

	for i := 0; i < 10000; i++ {
		x = integrator.Step(dyn, x, nil, float64(i)*dt, dt)
	}

	drift := math.Abs(dyn.Energy(x)-initialEnergy) / initialEnergy
	if drift > 1e-5 {
		t.Errorf("RK45 energy drift too high: %e", drift)
	}
}

func TestRK45_AdaptiveStep(t *testing.T) {
	integrator := NewRK45()
	dyn := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}

	x, newDt, err := integrator.StepAdaptive(dyn, x0, nil, 0, 0.1, 1e-8)
	if err != nil {
		t.Errorf("StepAdaptive returned error: %v", err)
	}
	if !x.IsValid() {
		t.Error("StepAdaptive produced invalid state")
	}
	if newDt <= 0 {
		t.Errorf("StepAdaptive returned invalid dt: %f", newDt)
	}
}

func TestVerletConservesOscillatorEnergy(t *testing.T) {
	dyn := &harmonicOscillator{}
	for _, integ := range []dynamo.Integrator{NewVerlet(), NewLeapfrog()} {
		x := dynamo.State{1.0, 0.0}
		dt := 0.01
		for i := 0; i < 10000; i++ {
			x = integ.Step(dyn, x, nil, float64(i)*dt, dt)
		}
		if drift := math.Abs(dyn.Energy(x)-0.5) / 0.5; drift > 1e-3 {
			t.Errorf("%T energy drift %e", integ, drift)
		}
	}
}

func TestRK45CoversWholeTick(t *testing.T) {
	integrator := NewRK45()
	integrator.Tol = 1e-10
	dyn := &harmonicOscillator{}

	x := integrator.Step(dyn, dynamo.State{1.0, 0.0}, nil, 0, 0.5)
	if integrator.Substeps() < 2 {
		t.Errorf("expected the tick to be split, got %d sub-steps", integrator.Substeps())
	}
	if math.Abs(x[0]-math.Cos(0.5)) > 1e-8 || math.Abs(x[1]+math.Sin(0.5)) > 1e-8 {
		t.Errorf("got %v, want (%f, %f)", x, math.Cos(0.5), -math.Sin(0.5))
	}

	integrator = NewRK45()
	integrator.Step(dyn, dynamo.State{1.0, 0.0}, nil, 0, 0.001)
	if integrator.Substeps() != 1 {
		t.Errorf("small tick should take one sub-step, got %d", integrator.Substeps())
	}
}
