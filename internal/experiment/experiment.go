// Package experiment assembles a runnable closed loop from a config: the
// simulated arm, the operational-space controller and the simulator.
package experiment

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/opspace/internal/config"
	"github.com/san-kum/opspace/internal/control"
	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/opspace"
	"github.com/san-kum/opspace/internal/physics"
	"github.com/san-kum/opspace/internal/refine"
	"github.com/san-kum/opspace/internal/sim"
)

type Experiment struct {
	cfg        *config.Config
	arm        *physics.SerialArm
	controller *control.Controller
	simulator  *sim.Simulator
	registry   *Registry
	integrator dynamo.Integrator
	initial    dynamo.State
	start      r3.Vector
	target     r3.Vector
	logger     *zap.SugaredLogger
}

// Build validates cfg and wires everything up. The arm is left at the
// configured initial state with the controller configured for torque
// control.
func Build(cfg *config.Config, logger *zap.SugaredLogger) (*Experiment, error) {
	return NewRegistry().Build(cfg, logger)
}

func (r *Registry) Build(cfg *config.Config, logger *zap.SugaredLogger) (*Experiment, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg == nil {
		return nil, errors.Wrap(dynamo.ErrInvalidConfiguration, "no config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	arm, err := r.GetModel(cfg.Model, cfg.Joints)
	if err != nil {
		return nil, err
	}
	x0, err := cfg.InitialState(arm.DefaultState(), arm.DOF())
	if err != nil {
		return nil, err
	}
	if err := arm.SetState(x0); err != nil {
		return nil, errors.Wrap(err, "initial state")
	}

	tauMin, err := cfg.LowerBound.Resolve(arm.DOF())
	if err != nil {
		return nil, err
	}
	gains, err := opspace.NewGains(cfg.Gains.Kp, cfg.Gains.Kv)
	if err != nil {
		return nil, err
	}
	opts := []control.Option{
		control.WithGains(gains),
		control.WithPseudoInverseDamping(cfg.PinvDamping),
		control.WithLogger(logger.Named("control")),
	}
	if !cfg.Refiner.Disabled {
		opts = append(opts, control.WithRefiner(
			refine.New(logger.Named("refine"), refine.WithBudget(cfg.Refiner.Budget()))))
	}
	ctrl, err := control.New(arm, arm.EndEffector(), tauMin, opts...)
	if err != nil {
		return nil, err
	}
	if err := ctrl.ConfigureForTorqueControl(cfg.JointDamping); err != nil {
		return nil, err
	}

	integ, err := r.GetIntegrator(cfg.Integrator)
	if err != nil {
		return nil, err
	}
	s := sim.New(arm, integ, ctrl, logger.Named("sim"))
	for _, m := range r.DefaultMetrics(arm) {
		s.AddMetric(m)
	}

	start := arm.EndEffector().Translation()
	e := &Experiment{
		cfg:        cfg,
		arm:        arm,
		controller: ctrl,
		simulator:  s,
		registry:   r,
		integrator: integ,
		initial:    x0,
		start:      start,
		target:     start.Add(cfg.Target.Vector()),
		logger:     logger,
	}
	logger.Debugw("experiment ready",
		"model", cfg.Model, "dof", arm.DOF(), "integrator", cfg.Integrator,
		"start", start, "target", e.target, "refine", !cfg.Refiner.Disabled)
	return e, nil
}

// Run holds the configured target for the configured duration.
func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	return e.RunWith(ctx, sim.Fixed(e.target))
}

// RunWith runs against an arbitrary target trajectory.
func (e *Experiment) RunWith(ctx context.Context, target sim.TargetFunc) (*sim.Result, error) {
	return e.simulator.Run(ctx, target, e.SimConfig())
}

// RunBaseline resets the arm to its initial state and runs a joint-space
// PID holding the initial pose against the same target. The final error of
// the result is how far the baseline is from the target it never chases.
// The arm is put back to its initial state afterwards.
func (e *Experiment) RunBaseline(ctx context.Context, kp, ki, kd float64) (*sim.Result, error) {
	if err := e.Reset(); err != nil {
		return nil, err
	}
	defer func() {
		if err := e.Reset(); err != nil {
			e.logger.Warnw("restoring initial state", "error", err)
		}
	}()
	pid, err := control.NewJointPID(e.arm, e.arm.EndEffector(), e.initial[:e.arm.DOF()], kp, ki, kd, e.cfg.Dt)
	if err != nil {
		return nil, err
	}
	s := sim.New(e.arm, e.integrator, pid, e.logger.Named("baseline"))
	for _, m := range e.registry.DefaultMetrics(e.arm) {
		s.AddMetric(m)
	}
	return s.Run(ctx, sim.Fixed(e.target), e.SimConfig())
}

// Reset puts the arm back to the configured initial state.
func (e *Experiment) Reset() error {
	return e.arm.SetState(e.initial)
}

func (e *Experiment) SimConfig() dynamo.Config {
	return dynamo.Config{
		Dt:            e.cfg.Dt,
		Duration:      e.cfg.Duration,
		Seed:          e.cfg.Seed,
		ValidateState: true,
	}
}

func (e *Experiment) Config() *config.Config          { return e.cfg }
func (e *Experiment) Arm() *physics.SerialArm         { return e.arm }
func (e *Experiment) Controller() *control.Controller { return e.controller }
func (e *Experiment) Simulator() *sim.Simulator       { return e.simulator }
func (e *Experiment) Integrator() dynamo.Integrator   { return e.integrator }

// Start is the end-effector position before the first tick.
func (e *Experiment) Start() r3.Vector { return e.start }

func (e *Experiment) Target() r3.Vector { return e.target }
