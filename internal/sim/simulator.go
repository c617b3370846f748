package sim

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/refine"
)

// Simulator closes the loop between a controller and a simulated plant.
// Each tick the controller sees the current state, the torque it applies is
// held for one integration step.
type Simulator struct {
	plant      Plant
	integrator dynamo.Integrator
	controller Controller
	logger     *zap.SugaredLogger
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

func New(plant Plant, integrator dynamo.Integrator, controller Controller, logger *zap.SugaredLogger) *Simulator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Simulator{
		plant:      plant,
		integrator: integrator,
		controller: controller,
		logger:     logger,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Plant() Plant { return s.plant }

// Run simulates cfg.Duration seconds from the plant's current state. The
// partial result is returned together with any error, including context
// cancellation between ticks.
func (s *Simulator) Run(ctx context.Context, target TargetFunc, cfg dynamo.Config) (*Result, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if target == nil {
		return nil, errors.Wrap(dynamo.ErrInvalidConfiguration, "no target")
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	result := &Result{
		Times:     make([]float64, 0, steps),
		States:    make([]dynamo.State, 0, steps),
		Torques:   make([]dynamo.Control, 0, steps),
		Positions: make([]r3.Vector, 0, steps),
		Targets:   make([]r3.Vector, 0, steps),
		Errors:    make([]float64, 0, steps),
		Statuses:  make([]refine.Status, 0, steps),
		Metrics:   make(map[string]float64),
	}

	for _, m := range s.metrics {
		m.Reset()
	}
	defer func() {
		for _, m := range s.metrics {
			result.Metrics[m.Name()] = m.Value()
		}
	}()

	x := s.plant.State()
	dt := cfg.Dt

	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		t := float64(i) * dt
		goal := target(t)

		cmd, err := s.controller.Update(goal)
		if err != nil {
			return result, &dynamo.SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: err}
		}

		sample := dynamo.Sample{
			T:        t,
			State:    x,
			Torque:   cmd.Torque,
			Position: cmd.Position,
			Target:   goal,
			Refined:  cmd.Refine.Status == refine.Refined,
		}
		for _, m := range s.metrics {
			m.Observe(sample)
		}
		for _, obs := range s.observers {
			obs.OnStep(sample)
		}

		result.Times = append(result.Times, t)
		result.States = append(result.States, x.Clone())
		result.Torques = append(result.Torques, cmd.Torque)
		result.Positions = append(result.Positions, cmd.Position)
		result.Targets = append(result.Targets, goal)
		result.Errors = append(result.Errors, cmd.PositionError)
		result.Statuses = append(result.Statuses, cmd.Refine.Status)

		next := s.integrator.Step(s.plant, x, s.plant.Forces(), t, dt)
		if cfg.ValidateState && !next.IsValid() {
			s.logger.Errorw("state diverged", "step", i, "t", t)
			return result, &dynamo.SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: dynamo.ErrUnstable}
		}
		if err := s.plant.SetState(next); err != nil {
			return result, &dynamo.SimulationError{Step: i, Time: t, State: x.Clone(), Wrapped: err}
		}
		x = s.plant.State()
		result.StepsTaken++
	}

	s.logger.Debugw("run complete", "steps", result.StepsTaken, "final_error", result.FinalError())
	return result, nil
}

func validateConfig(cfg dynamo.Config) error {
	if cfg.Dt <= 0 || math.IsNaN(cfg.Dt) {
		return errors.Wrapf(dynamo.ErrInvalidConfiguration, "dt must be positive, got %f", cfg.Dt)
	}
	if cfg.Duration <= 0 || math.IsNaN(cfg.Duration) {
		return errors.Wrapf(dynamo.ErrInvalidConfiguration, "duration must be positive, got %f", cfg.Duration)
	}
	if cfg.Duration < cfg.Dt {
		return errors.Wrapf(dynamo.ErrInvalidConfiguration, "duration %f is shorter than dt %f", cfg.Duration, cfg.Dt)
	}
	return nil
}
