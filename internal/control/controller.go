package control

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/opspace"
	"github.com/san-kum/opspace/internal/refine"
	"github.com/san-kum/opspace/internal/robot"
	"github.com/san-kum/opspace/internal/torque"
)

// DefaultJointDamping is applied to every joint by ConfigureForTorqueControl
// unless the caller asks for another value.
const DefaultJointDamping = 0.5

// Command is the result of one control tick.
type Command struct {
	Torque        dynamo.Control
	Desired       r3.Vector // ddx from the operational-space law
	Commanded     r3.Vector // ddx after refinement
	Force         r3.Vector
	Position      r3.Vector
	PositionError float64
	Rank          int
	Refine        refine.Outcome
}

// Controller drives one end effector of one robot towards Cartesian targets.
// It is not safe for concurrent use; Update is meant to be called once per
// tick from a single loop.
type Controller struct {
	model robot.Model
	body  robot.Body
	dof   int

	tauMin  []float64
	gains   opspace.Gains
	eps     float64
	refiner *refine.Refiner
	synth   *torque.Synthesizer
	logger  *zap.SugaredLogger

	forces dynamo.Control
}

type Option func(*Controller)

func WithGains(g opspace.Gains) Option {
	return func(c *Controller) { c.gains = g }
}

// WithRefiner replaces the refiner. A nil refiner turns refinement off.
func WithRefiner(r *refine.Refiner) Option {
	return func(c *Controller) { c.refiner = r }
}

func WithSynthesizer(s *torque.Synthesizer) Option {
	return func(c *Controller) { c.synth = s }
}

func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithPseudoInverseDamping(eps float64) Option {
	return func(c *Controller) { c.eps = eps }
}

// New binds a controller to model and body. tauMin is the per-joint torque
// lower bound the refiner must respect; it is required and must have one
// entry per joint (use -Inf to leave a joint unbounded).
//
// New has no side effects on the model. Call ConfigureForTorqueControl once
// before the first Update.
func New(model robot.Model, body robot.Body, tauMin []float64, opts ...Option) (*Controller, error) {
	if model == nil {
		return nil, errors.Wrap(dynamo.ErrConstruction, "controller needs a robot model")
	}
	if body == nil {
		return nil, errors.Wrap(dynamo.ErrConstruction, "controller needs an end effector")
	}
	dof := model.DOF()
	if dof <= 0 {
		return nil, errors.Wrapf(dynamo.ErrConstruction, "robot has %d degrees of freedom", dof)
	}
	if err := refine.ValidateLowerBound(tauMin, dof); err != nil {
		return nil, err
	}

	c := &Controller{
		model:  model,
		body:   body,
		dof:    dof,
		tauMin: append([]float64(nil), tauMin...),
		gains:  opspace.DefaultGains(),
		eps:    opspace.DefaultDamping,
		synth:  torque.New(),
		forces: make(dynamo.Control, dof),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop().Sugar()
	}
	if c.synth == nil {
		c.synth = torque.New()
	}
	gains, err := checkGains(c.gains)
	if err != nil {
		return nil, err
	}
	c.gains = gains
	if c.eps <= 0 {
		return nil, errors.Wrapf(dynamo.ErrParameterBounds, "pseudo-inverse damping must be positive, got %g", c.eps)
	}
	return c, nil
}

// NewWithRefiner is New with the default nlopt-backed refiner logging to
// the controller's logger.
func NewWithRefiner(model robot.Model, body robot.Body, tauMin []float64, logger *zap.SugaredLogger, opts ...Option) (*Controller, error) {
	opts = append([]Option{WithLogger(logger), WithRefiner(refine.New(logger))}, opts...)
	return New(model, body, tauMin, opts...)
}

// ConfigureForTorqueControl disables joint position limits and sets the
// viscous damping of every joint. Every joint is attempted; the errors are
// combined.
func (c *Controller) ConfigureForTorqueControl(jointDamping float64) error {
	var err error
	for i := 0; i < c.dof; i++ {
		j := c.model.Joint(i)
		if j == nil {
			err = multierr.Append(err, errors.Wrapf(dynamo.ErrConstruction, "joint %d missing", i))
			continue
		}
		j.SetPositionLimitEnforced(false)
		if jerr := j.SetDampingCoefficient(0, jointDamping); jerr != nil {
			err = multierr.Append(err, errors.Wrapf(jerr, "joint %d", i))
		}
	}
	if err != nil {
		return err
	}
	c.logger.Debugw("configured for torque control", "dof", c.dof, "damping", jointDamping)
	return nil
}

// Update runs one tick: snapshot, control law, refinement, torque synthesis,
// and finally applies the torque to the model.
//
// Refinement problems never fail the tick. Errors are returned only when the
// robot state itself is unusable or the model rejects the torque.
func (c *Controller) Update(target r3.Vector) (*Command, error) {
	s, err := robot.Capture(c.model, c.body)
	if err != nil {
		return nil, errors.Wrap(err, "reading robot state")
	}
	if s.DOF != c.dof {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "robot reports %d dof, controller bound to %d", s.DOF, c.dof)
	}

	terms, err := opspace.ComputeDamped(target, s, c.gains, c.eps)
	if err != nil {
		return nil, errors.Wrap(err, "operational space law")
	}

	var out refine.Outcome
	if c.refiner == nil {
		out = refine.Unrefined(terms.Ddx)
	} else {
		out = c.refiner.Refine(&refine.Params{
			Desired: terms.Ddx,
			Drift:   terms.B,
			Pinv:    terms.Pinv,
			M:       s.M,
			Cg:      s.Cg,
			TauMin:  c.tauMin,
		})
	}

	res, err := c.synth.Solve(out.Ddx, terms.B, terms.A, s.Cg)
	if err != nil {
		return nil, errors.Wrap(err, "torque synthesis")
	}

	tau := append(dynamo.Control(nil), res.Torque.RawVector().Data...)
	if err := c.model.SetForces(tau); err != nil {
		return nil, errors.Wrap(err, "applying torque")
	}
	copy(c.forces, tau)

	return &Command{
		Torque:        tau,
		Desired:       robot.ToR3(terms.Ddx),
		Commanded:     robot.ToR3(out.Ddx),
		Force:         robot.ToR3(terms.F),
		Position:      s.X,
		PositionError: s.X.Sub(target).Norm(),
		Rank:          res.Rank,
		Refine:        out,
	}, nil
}

// Forces returns the torque computed by the last Update.
func (c *Controller) Forces() dynamo.Control {
	return append(dynamo.Control(nil), c.forces...)
}

func (c *Controller) DOF() int { return c.dof }

func (c *Controller) Model() robot.Model { return c.model }

func (c *Controller) EndEffector() robot.Body { return c.body }

func (c *Controller) Gains() opspace.Gains { return c.gains }

func (c *Controller) SetGains(g opspace.Gains) error {
	checked, err := checkGains(g)
	if err != nil {
		return err
	}
	c.gains = checked
	return nil
}

// checkGains rebuilds g through opspace.NewGains so hand-built literals obey
// the same bounds as SetParam.
func checkGains(g opspace.Gains) (opspace.Gains, error) {
	if g.Kp == nil || g.Kv == nil {
		return opspace.Gains{}, errors.Wrap(dynamo.ErrInvalidConfiguration, "gains are not set")
	}
	if g.Kp.Diag() != 3 || g.Kv.Diag() != 3 {
		return opspace.Gains{}, errors.Wrapf(dynamo.ErrDimensionMismatch,
			"gains must be 3x3, got %d and %d", g.Kp.Diag(), g.Kv.Diag())
	}
	kp, kv := g.Diagonals()
	return opspace.NewGains(kp, kv)
}

// LowerBound returns a copy of the torque lower bound.
func (c *Controller) LowerBound() []float64 {
	return append([]float64(nil), c.tauMin...)
}

func (c *Controller) SetLowerBound(tauMin []float64) error {
	if err := refine.ValidateLowerBound(tauMin, c.dof); err != nil {
		return err
	}
	c.tauMin = append(c.tauMin[:0], tauMin...)
	return nil
}

var axes = [3]string{"x", "y", "z"}

// GetParams implements dynamo.Configurable.
func (c *Controller) GetParams() map[string]float64 {
	kp, kv := c.gains.Diagonals()
	p := map[string]float64{"pinv_damping": c.eps}
	for i, a := range axes {
		p["kp_"+a] = kp[i]
		p["kv_"+a] = kv[i]
	}
	return p
}

// SetParam implements dynamo.Configurable.
func (c *Controller) SetParam(name string, value float64) error {
	if name == "pinv_damping" {
		if value <= 0 {
			return errors.Wrapf(dynamo.ErrParameterBounds, "pinv_damping must be positive, got %g", value)
		}
		c.eps = value
		return nil
	}
	kp, kv := c.gains.Diagonals()
	found := false
	for i, a := range axes {
		switch name {
		case "kp_" + a:
			kp[i], found = value, true
		case "kv_" + a:
			kv[i], found = value, true
		}
	}
	if !found {
		return fmt.Errorf("unknown param: %s", name)
	}
	g, err := opspace.NewGains(kp, kv)
	if err != nil {
		return err
	}
	c.gains = g
	return nil
}
