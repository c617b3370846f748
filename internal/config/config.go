package config

import (
	"math"
	"os"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/opspace"
	"github.com/san-kum/opspace/internal/refine"
)

const (
	DefaultDt           = 0.001
	DefaultDuration     = 2.0
	DefaultModel        = "seven_dof"
	DefaultIntegrator   = "rk4"
	DefaultJointDamping = 0.5
	DefaultLogLevel     = "info"
)

type Config struct {
	Model        string           `yaml:"model"`
	Joints       int              `yaml:"joints,omitempty"`
	Integrator   string           `yaml:"integrator"`
	Dt           float64          `yaml:"dt"`
	Duration     float64          `yaml:"duration"`
	Seed         int64            `yaml:"seed"`
	InitState    InitStateConfig  `yaml:"init_state"`
	Target       TargetConfig     `yaml:"target"`
	Gains        GainsConfig      `yaml:"gains"`
	PinvDamping  float64          `yaml:"pinv_damping"`
	JointDamping float64          `yaml:"joint_damping"`
	LowerBound   LowerBoundConfig `yaml:"lower_bound"`
	Refiner      RefinerConfig    `yaml:"refiner"`
	Log          LogConfig        `yaml:"log"`
}

// InitStateConfig overrides the model's home pose. Empty means home.
type InitStateConfig struct {
	Q  []float64 `yaml:"q,omitempty"`
	DQ []float64 `yaml:"dq,omitempty"`
}

// TargetConfig places the target relative to where the end effector starts.
type TargetConfig struct {
	Offset [3]float64 `yaml:"offset"`
}

type GainsConfig struct {
	Kp [3]float64 `yaml:"kp"`
	Kv [3]float64 `yaml:"kv"`
}

// LowerBoundConfig is the per-joint torque lower bound. It has no default:
// either Values (one per joint) or Constant must be given. Use -.inf to
// leave joints unbounded.
type LowerBoundConfig struct {
	Values   []float64 `yaml:"values,omitempty"`
	Constant *float64  `yaml:"constant,omitempty"`
}

type RefinerConfig struct {
	Disabled  bool    `yaml:"disabled"`
	MaxEval   int     `yaml:"max_eval"`
	MaxTimeMs float64 `yaml:"max_time_ms"`
	XtolRel   float64 `yaml:"xtol_rel"`
	Span      float64 `yaml:"span"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig has everything but the torque lower bound, which callers
// must state.
func DefaultConfig() *Config {
	b := refine.DefaultBudget()
	return &Config{
		Model:      DefaultModel,
		Integrator: DefaultIntegrator,
		Dt:         DefaultDt,
		Duration:   DefaultDuration,
		Target:     TargetConfig{Offset: [3]float64{0.1, 0, 0}},
		Gains: GainsConfig{
			Kp: [3]float64{opspace.DefaultKp, opspace.DefaultKp, opspace.DefaultKp},
			Kv: [3]float64{opspace.DefaultKv, opspace.DefaultKv, opspace.DefaultKv},
		},
		PinvDamping:  opspace.DefaultDamping,
		JointDamping: DefaultJointDamping,
		Refiner: RefinerConfig{
			MaxEval:   b.MaxEval,
			MaxTimeMs: float64(b.MaxTime.Microseconds()) / 1000,
			XtolRel:   b.XtolRel,
			Span:      b.Span,
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	bad := func(format string, args ...interface{}) {
		err = multierr.Append(err, errors.Wrapf(dynamo.ErrInvalidConfiguration, format, args...))
	}

	if c.Model == "" {
		bad("model is empty")
	}
	if c.Model == "planar" && c.Joints < 1 {
		bad("planar model needs at least one joint, got %d", c.Joints)
	}
	if c.Integrator == "" {
		bad("integrator is empty")
	}
	if !(c.Dt > 0) {
		bad("dt must be positive, got %g", c.Dt)
	}
	if !(c.Duration >= c.Dt) {
		bad("duration %g must be at least dt %g", c.Duration, c.Dt)
	}
	if _, gerr := opspace.NewGains(c.Gains.Kp, c.Gains.Kv); gerr != nil {
		err = multierr.Append(err, gerr)
	}
	if !(c.PinvDamping > 0) {
		bad("pinv_damping must be positive, got %g", c.PinvDamping)
	}
	if !(c.JointDamping >= 0) {
		bad("joint_damping must be non-negative, got %g", c.JointDamping)
	}
	if lerr := c.LowerBound.validate(); lerr != nil {
		err = multierr.Append(err, lerr)
	}
	if c.Refiner.MaxEval < 0 || c.Refiner.MaxTimeMs < 0 || c.Refiner.XtolRel < 0 || c.Refiner.Span < 0 {
		bad("refiner budget must be non-negative")
	}
	if !c.Refiner.Disabled && c.Refiner.MaxEval <= 0 && c.Refiner.MaxTimeMs <= 0 {
		bad("refiner needs max_eval or max_time_ms")
	}
	if len(c.InitState.DQ) > 0 && len(c.InitState.Q) != len(c.InitState.DQ) {
		bad("init_state q and dq lengths differ: %d vs %d", len(c.InitState.Q), len(c.InitState.DQ))
	}
	if c.Log.Level != "" {
		if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
			bad("log level %q", c.Log.Level)
		}
	}
	return err
}

func (l LowerBoundConfig) validate() error {
	if len(l.Values) == 0 && l.Constant == nil {
		return errors.Wrap(dynamo.ErrInvalidConfiguration,
			"lower_bound is required: set lower_bound.values or lower_bound.constant")
	}
	if len(l.Values) > 0 && l.Constant != nil {
		return errors.Wrap(dynamo.ErrInvalidConfiguration, "lower_bound has both values and constant")
	}
	if l.Constant != nil && (math.IsNaN(*l.Constant) || math.IsInf(*l.Constant, 1)) {
		return errors.Wrapf(dynamo.ErrInvalidConfiguration, "lower_bound.constant is %g", *l.Constant)
	}
	return nil
}

// Resolve expands the bound to dof joints.
func (l LowerBoundConfig) Resolve(dof int) ([]float64, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	var out []float64
	if l.Constant != nil {
		out = make([]float64, dof)
		for i := range out {
			out[i] = *l.Constant
		}
	} else {
		out = append([]float64(nil), l.Values...)
	}
	if err := refine.ValidateLowerBound(out, dof); err != nil {
		return nil, err
	}
	return out, nil
}

// Budget converts the refiner settings.
func (r RefinerConfig) Budget() refine.Budget {
	return refine.Budget{
		MaxEval: r.MaxEval,
		MaxTime: time.Duration(r.MaxTimeMs * float64(time.Millisecond)),
		XtolRel: r.XtolRel,
		Span:    r.Span,
	}
}

// Vector is the target offset as a vector.
func (t TargetConfig) Vector() r3.Vector {
	return r3.Vector{X: t.Offset[0], Y: t.Offset[1], Z: t.Offset[2]}
}

// InitialState returns [q, dq] for a plant with dof joints, starting from
// home and overriding with whatever the config sets.
func (c *Config) InitialState(home dynamo.State, dof int) (dynamo.State, error) {
	x := make(dynamo.State, 2*dof)
	copy(x, home)
	if len(c.InitState.Q) > 0 {
		if len(c.InitState.Q) != dof {
			return nil, errors.Wrapf(dynamo.ErrDimensionMismatch,
				"init_state.q has %d entries, model has %d joints", len(c.InitState.Q), dof)
		}
		copy(x[:dof], c.InitState.Q)
		for i := dof; i < 2*dof; i++ {
			x[i] = 0
		}
	}
	if len(c.InitState.DQ) > 0 {
		copy(x[dof:], c.InitState.DQ)
	}
	return x, nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	cp := *c
	cp.InitState.Q = append([]float64(nil), c.InitState.Q...)
	cp.InitState.DQ = append([]float64(nil), c.InitState.DQ...)
	cp.LowerBound.Values = append([]float64(nil), c.LowerBound.Values...)
	if c.LowerBound.Constant != nil {
		v := *c.LowerBound.Constant
		cp.LowerBound.Constant = &v
	}
	return &cp
}

// ConstantBound is a helper for building a LowerBoundConfig in code.
func ConstantBound(v float64) LowerBoundConfig {
	return LowerBoundConfig{Constant: &v}
}
