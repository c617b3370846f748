package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/san-kum/opspace/internal/control"
	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/integrators"
	"github.com/san-kum/opspace/internal/physics"
	"github.com/san-kum/opspace/internal/refine"
	"github.com/san-kum/opspace/internal/robot"
)

// holdController applies pure gravity compensation.
type holdController struct {
	plant  Plant
	body   robot.Body
	failAt int
	nan    bool
	calls  int
}

func (c *holdController) Update(target r3.Vector) (*control.Command, error) {
	c.calls++
	if c.calls == c.failAt {
		return nil, errors.New("sensor dropout")
	}
	tau := c.plant.CoriolisAndGravityForces().RawVector().Data
	if c.nan {
		tau[0] = math.NaN()
	}
	if err := c.plant.SetForces(tau); err != nil {
		return nil, err
	}
	x := c.body.Translation()
	return &control.Command{
		Torque:        dynamo.Control(tau),
		Position:      x,
		PositionError: x.Sub(target).Norm(),
		Refine:        refine.Outcome{Status: refine.Skipped},
	}, nil
}

func newHoldSim(t *testing.T) (*Simulator, *holdController, *physics.SerialArm) {
	t.Helper()
	arm := physics.NewPlanar(2)
	if err := arm.SetState(arm.DefaultState()); err != nil {
		t.Fatal(err)
	}
	ctrl := &holdController{plant: arm, body: arm.EndEffector()}
	return New(arm, integrators.NewRK4(), ctrl, nil), ctrl, arm
}

func testConfig() dynamo.Config {
	cfg := dynamo.DefaultConfig()
	cfg.Dt = 0.01
	cfg.Duration = 0.1
	return cfg
}

func TestSimulatorRun(t *testing.T) {
	sim, _, arm := newHoldSim(t)
	x0 := arm.State()
	goal := arm.EndEffector().Translation()

	result, err := sim.Run(context.Background(), Fixed(goal), testConfig())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.Times) != 10 || result.StepsTaken != 10 {
		t.Errorf("expected 10 ticks, got %d times and %d steps", len(result.Times), result.StepsTaken)
	}
	for i, tm := range result.Times {
		if math.Abs(tm-float64(i)*0.01) > 1e-12 {
			t.Errorf("tick %d at t=%f", i, tm)
		}
	}
	if d := arm.State().Sub(x0).Norm(); d > 1e-9 {
		t.Errorf("gravity compensated arm moved by %g", d)
	}
	if result.FinalError() > 1e-9 {
		t.Errorf("expected to stay on target, final error %g", result.FinalError())
	}
	if result.StatusCounts()[refine.Skipped] != 10 {
		t.Errorf("expected 10 skipped refinements, got %v", result.StatusCounts())
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sim, _, _ := newHoldSim(t)

	tests := []struct {
		name string
		cfg  dynamo.Config
	}{
		{"zero dt", dynamo.Config{Dt: 0, Duration: 1.0}},
		{"negative dt", dynamo.Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", dynamo.Config{Dt: 0.1, Duration: 0}},
		{"negative duration", dynamo.Config{Dt: 0.1, Duration: -1.0}},
		{"duration below dt", dynamo.Config{Dt: 0.1, Duration: 0.01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), Fixed(r3.Vector{}), tt.cfg)
			if !errors.Is(err, dynamo.ErrInvalidConfiguration) {
				t.Errorf("expected ErrInvalidConfiguration, got %v", err)
			}
		})
	}

	if _, err := sim.Run(context.Background(), nil, testConfig()); err == nil {
		t.Error("expected error for missing target")
	}
}

func TestSimulatorControllerError(t *testing.T) {
	sim, ctrl, _ := newHoldSim(t)
	ctrl.failAt = 3

	result, err := sim.Run(context.Background(), Fixed(r3.Vector{}), testConfig())
	var simErr *dynamo.SimulationError
	if !errors.As(err, &simErr) {
		t.Fatalf("expected SimulationError, got %v", err)
	}
	if simErr.Step != 2 {
		t.Errorf("expected failure at step 2, got %d", simErr.Step)
	}
	if len(result.Times) != 2 {
		t.Errorf("expected 2 recorded ticks, got %d", len(result.Times))
	}
}

func TestSimulatorDetectsDivergence(t *testing.T) {
	sim, ctrl, _ := newHoldSim(t)
	ctrl.nan = true

	_, err := sim.Run(context.Background(), Fixed(r3.Vector{}), testConfig())
	if !errors.Is(err, dynamo.ErrUnstable) {
		t.Errorf("expected ErrUnstable, got %v", err)
	}
}

func TestSimulatorCancelled(t *testing.T) {
	sim, _, _ := newHoldSim(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := sim.Run(ctx, Fixed(r3.Vector{}), testConfig())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if result == nil || result.StepsTaken != 0 {
		t.Error("expected an empty partial result")
	}
}

type testMetric struct {
	count int
	sum   float64
}

func (m *testMetric) Name() string { return "test" }
func (m *testMetric) Observe(s dynamo.Sample) {
	m.count++
	m.sum += s.Error()
}
func (m *testMetric) Value() float64 {
	if m.count == 0 {
		return 0
	}
	return m.sum / float64(m.count)
}
func (m *testMetric) Reset() {
	m.count = 0
	m.sum = 0
}

type recorder struct{ times []float64 }

func (r *recorder) OnStep(s dynamo.Sample) { r.times = append(r.times, s.T) }

func TestSimulatorMetrics(t *testing.T) {
	sim, _, arm := newHoldSim(t)
	metric := &testMetric{}
	rec := &recorder{}
	sim.AddMetric(metric)
	sim.AddObserver(rec)

	goal := arm.EndEffector().Translation().Add(r3.Vector{X: 0.5})
	result, err := sim.Run(context.Background(), Fixed(goal), testConfig())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got, ok := result.Metrics["test"]; !ok || math.Abs(got-0.5) > 1e-6 {
		t.Errorf("expected mean error 0.5, got %v (present %v)", got, ok)
	}
	if metric.count != 10 || len(rec.times) != 10 {
		t.Errorf("expected 10 observations, got %d and %d", metric.count, len(rec.times))
	}
}

func TestEnsembleRun(t *testing.T) {
	jobs := make([]Job, 4)
	for i := range jobs {
		jobs[i] = func() (*Simulator, TargetFunc, dynamo.Config, error) {
			arm := physics.NewPlanar(i + 1)
			if err := arm.SetState(arm.DefaultState()); err != nil {
				return nil, nil, dynamo.Config{}, err
			}
			ctrl := &holdController{plant: arm, body: arm.EndEffector()}
			return New(arm, integrators.NewRK4(), ctrl, nil), Fixed(r3.Vector{}), testConfig(), nil
		}
	}

	results, err := NewEnsemble(2).Run(context.Background(), jobs)
	if err != nil {
		t.Fatalf("ensemble failed: %v", err)
	}
	for i, r := range results {
		if got := len(r.States[0]); got != 2*(i+1) {
			t.Errorf("result %d has state size %d, want %d", i, got, 2*(i+1))
		}
	}

	jobs[2] = func() (*Simulator, TargetFunc, dynamo.Config, error) {
		return nil, nil, dynamo.Config{}, errors.New("bad preset")
	}
	if _, err := NewEnsemble(0).Run(context.Background(), jobs); err == nil {
		t.Error("expected error from failing job")
	}
}

func TestEnsembleRunEach(t *testing.T) {
	jobs := make([]Job, 3)
	for i := range jobs {
		jobs[i] = func() (*Simulator, TargetFunc, dynamo.Config, error) {
			arm := physics.NewPlanar(2)
			if err := arm.SetState(arm.DefaultState()); err != nil {
				return nil, nil, dynamo.Config{}, err
			}
			ctrl := &holdController{plant: arm, body: arm.EndEffector(), nan: i == 1}
			return New(arm, integrators.NewRK4(), ctrl, nil), Fixed(r3.Vector{}), testConfig(), nil
		}
	}

	results, errs := NewEnsemble(3).RunEach(context.Background(), jobs)
	if errs[0] != nil || errs[2] != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !errors.Is(errs[1], dynamo.ErrUnstable) {
		t.Errorf("expected divergence in job 1, got %v", errs[1])
	}
	if results[0].StepsTaken != 10 || results[2].StepsTaken != 10 {
		t.Error("healthy jobs should finish")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, errs = NewEnsemble(1).RunEach(ctx, jobs)
	for i, err := range errs {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("job %d: expected cancellation, got %v", i, err)
		}
	}
}
