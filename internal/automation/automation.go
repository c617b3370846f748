// Package automation runs scripted and batch experiments: waypoint
// scenarios, parameter sweeps and Monte Carlo trials over the start pose.
package automation

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/opspace/internal/config"
	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/experiment"
	"github.com/san-kum/opspace/internal/sim"
)

// Scenario drives the end effector through a list of waypoints. Each
// waypoint is an offset from the start position held for a fixed time.
type Scenario struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Preset      string     `yaml:"preset"`
	Config      string     `yaml:"config"`
	Waypoints   []Waypoint `yaml:"waypoints"`
}

type Waypoint struct {
	Offset [3]float64 `yaml:"offset"`
	Hold   float64    `yaml:"hold"`
}

// LoadScenario loads a scenario from a YAML file. A relative config path
// is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, errors.Wrapf(err, "parsing scenario %s", path)
	}
	if scenario.Config != "" && !filepath.IsAbs(scenario.Config) {
		scenario.Config = filepath.Join(filepath.Dir(path), scenario.Config)
	}
	return &scenario, scenario.Validate()
}

func (s *Scenario) Validate() error {
	if (s.Preset == "") == (s.Config == "") {
		return errors.Wrap(dynamo.ErrInvalidConfiguration, "scenario needs exactly one of preset or config")
	}
	if len(s.Waypoints) == 0 {
		return errors.Wrap(dynamo.ErrInvalidConfiguration, "scenario has no waypoints")
	}
	for i, w := range s.Waypoints {
		if !(w.Hold > 0) {
			return errors.Wrapf(dynamo.ErrInvalidConfiguration, "waypoint %d: hold must be positive, got %g", i, w.Hold)
		}
	}
	return nil
}

// BaseConfig resolves the scenario's preset ("model/name") or config file.
func (s *Scenario) BaseConfig() (*config.Config, error) {
	if s.Config != "" {
		return config.Load(s.Config)
	}
	return PresetConfig(s.Preset)
}

// PresetConfig looks up "model/name".
func PresetConfig(ref string) (*config.Config, error) {
	model, name, ok := strings.Cut(ref, "/")
	if !ok {
		return nil, errors.Wrapf(dynamo.ErrInvalidConfiguration, "preset %q is not model/name", ref)
	}
	cfg := config.GetPreset(model, name)
	if cfg == nil {
		return nil, errors.Wrapf(dynamo.ErrInvalidConfiguration, "unknown preset %q", ref)
	}
	return cfg, nil
}

// Duration is the total hold time.
func (s *Scenario) Duration() float64 {
	var total float64
	for _, w := range s.Waypoints {
		total += w.Hold
	}
	return total
}

// Trajectory is the piecewise-constant target for a run starting at start.
func (s *Scenario) Trajectory(start r3.Vector) sim.TargetFunc {
	ends := make([]float64, len(s.Waypoints))
	var acc float64
	for i, w := range s.Waypoints {
		acc += w.Hold
		ends[i] = acc
	}
	return func(t float64) r3.Vector {
		i := 0
		for i < len(ends)-1 && t >= ends[i] {
			i++
		}
		o := s.Waypoints[i].Offset
		return start.Add(r3.Vector{X: o[0], Y: o[1], Z: o[2]})
	}
}

// WaypointResult is the tracking error at the end of a waypoint's hold.
type WaypointResult struct {
	Index      int
	Target     r3.Vector
	FinalError float64
}

type ScenarioResult struct {
	Name      string
	Result    *sim.Result
	Waypoints []WaypointResult
}

// RunScenario executes a scenario as one continuous run.
func RunScenario(ctx context.Context, scenario *Scenario, logger *zap.SugaredLogger) (*ScenarioResult, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := scenario.Validate(); err != nil {
		return nil, err
	}
	cfg, err := scenario.BaseConfig()
	if err != nil {
		return nil, err
	}
	cfg.Duration = scenario.Duration()

	exp, err := experiment.Build(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Infow("running scenario", "name", scenario.Name, "waypoints", len(scenario.Waypoints), "duration", cfg.Duration)

	traj := scenario.Trajectory(exp.Start())
	res, err := exp.RunWith(ctx, traj)
	out := &ScenarioResult{Name: scenario.Name, Result: res}
	if res == nil {
		return out, err
	}

	var end float64
	for i, w := range scenario.Waypoints {
		end += w.Hold
		k := int(math.Round(end/cfg.Dt)) - 1
		if k >= len(res.Errors) {
			break
		}
		out.Waypoints = append(out.Waypoints, WaypointResult{
			Index:      i,
			Target:     res.Targets[k],
			FinalError: res.Errors[k],
		})
	}
	return out, err
}

// ParameterSweep varies one controller or plant parameter.
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
}

type SweepResult struct {
	ParamValue float64
	FinalError float64
	PeakTorque float64
	RefineRate float64
	Err        error
}

// RunSweep runs one experiment per parameter value. The parameter is set
// on the controller if it knows it, otherwise on the arm.
func RunSweep(ctx context.Context, sweep *ParameterSweep, logger *zap.SugaredLogger) ([]SweepResult, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if sweep.NumSteps < 1 || sweep.Base == nil {
		return nil, errors.Wrap(dynamo.ErrInvalidConfiguration, "sweep needs a base config and at least one step")
	}
	paramStep := 0.0
	if sweep.NumSteps > 1 {
		paramStep = (sweep.ParamMax - sweep.ParamMin) / float64(sweep.NumSteps-1)
	}

	results := make([]SweepResult, 0, sweep.NumSteps)
	for i := 0; i < sweep.NumSteps; i++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		paramVal := sweep.ParamMin + float64(i)*paramStep
		out := SweepResult{ParamValue: paramVal}

		exp, err := experiment.Build(sweep.Base.Clone(), logger)
		if err == nil {
			err = setParam(exp, sweep.ParamName, paramVal)
		}
		if err != nil {
			return results, err
		}

		res, err := exp.Run(ctx)
		out.Err = err
		if res != nil {
			out.FinalError = res.FinalError()
			out.PeakTorque = res.Metrics["peak_torque"]
			out.RefineRate = res.Metrics["refine_rate"]
		}
		results = append(results, out)
		logger.Infow("sweep", "step", i+1, "of", sweep.NumSteps, sweep.ParamName, paramVal, "final_error", out.FinalError)
	}
	return results, nil
}

func setParam(exp *experiment.Experiment, name string, v float64) error {
	for _, target := range []dynamo.Configurable{exp.Controller(), exp.Arm()} {
		if _, ok := target.GetParams()[name]; ok {
			return target.SetParam(name, v)
		}
	}
	return errors.Wrapf(dynamo.ErrInvalidConfiguration, "unknown parameter %q", name)
}

// MonteCarloConfig perturbs every joint of the start pose uniformly by up
// to Perturbation radians.
type MonteCarloConfig struct {
	Base         *config.Config
	Perturbation float64
	NumTrials    int
	Workers      int
	// Tolerance is the final error below which a trial counts as converged.
	Tolerance float64
}

type MonteCarloResult struct {
	TrialID    int
	InitQ      []float64
	FinalError float64
	PeakTorque float64
	Converged  bool
	Stable     bool
	Err        error
}

// RunMonteCarlo runs the trials in parallel. Trial i always gets the same
// start pose for a given seed.
func RunMonteCarlo(ctx context.Context, cfg *MonteCarloConfig, logger *zap.SugaredLogger) ([]MonteCarloResult, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Base == nil || cfg.NumTrials < 1 {
		return nil, errors.Wrap(dynamo.ErrInvalidConfiguration, "monte carlo needs a base config and at least one trial")
	}
	seed := cfg.Base.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	home, err := experiment.Build(cfg.Base.Clone(), nil)
	if err != nil {
		return nil, err
	}
	baseQ := home.Arm().Positions()

	initQ := make([][]float64, cfg.NumTrials)
	jobs := make([]sim.Job, cfg.NumTrials)
	for trial := range jobs {
		q := make([]float64, len(baseQ))
		for i, v := range baseQ {
			q[i] = v + (rng.Float64()-0.5)*2*cfg.Perturbation
		}
		initQ[trial] = q

		trialCfg := cfg.Base.Clone()
		trialCfg.InitState = config.InitStateConfig{Q: q}
		trialCfg.Seed = seed + int64(trial)
		jobs[trial] = func() (*sim.Simulator, sim.TargetFunc, dynamo.Config, error) {
			exp, err := experiment.Build(trialCfg, logger.With("trial", trial))
			if err != nil {
				return nil, nil, dynamo.Config{}, err
			}
			return exp.Simulator(), sim.Fixed(exp.Target()), exp.SimConfig(), nil
		}
	}

	runs, errs := sim.NewEnsemble(cfg.Workers).RunEach(ctx, jobs)
	results := make([]MonteCarloResult, cfg.NumTrials)
	for i := range results {
		r := MonteCarloResult{TrialID: i, InitQ: initQ[i], Err: errs[i], Stable: errs[i] == nil}
		if runs[i] != nil {
			r.FinalError = runs[i].FinalError()
			r.PeakTorque = runs[i].Metrics["peak_torque"]
			r.Stable = r.Stable && runs[i].Metrics["stability"] == 1
		}
		r.Converged = r.Stable && r.FinalError < cfg.Tolerance
		results[i] = r
	}
	logger.Infow("monte carlo complete", "trials", cfg.NumTrials, "seed", seed)
	return results, ctx.Err()
}

// MonteCarloStats counts outcomes.
func MonteCarloStats(results []MonteCarloResult) (converged, stable, failed int) {
	for _, r := range results {
		if r.Converged {
			converged++
		}
		if r.Stable {
			stable++
		} else {
			failed++
		}
	}
	return
}
