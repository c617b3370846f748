// Package optim tunes controller settings by exhaustive search.
package optim

import (
	"context"
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/opspace/internal/config"
	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/experiment"
)

// Trial is one evaluated grid point.
type Trial struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges}
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	if len(g.ranges) == 0 {
		return 0
	}
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Search runs every grid point and returns the parameters minimizing
// metricName, along with all trials in grid order. Points whose experiment
// fails to build or run are kept as failed trials; Search only errors when
// no point succeeds or ctx is done.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) (map[string]float64, float64, []Trial, error) {
	if len(g.paramNames) != len(g.ranges) || g.Size() == 0 {
		return nil, 0, nil, errors.Wrap(dynamo.ErrInvalidConfiguration, "grid needs one non-empty range per parameter")
	}

	best := math.Inf(1)
	var bestParams map[string]float64
	trials := make([]Trial, 0, g.Size())

	err := g.searchRecursive(ctx, 0, make(map[string]float64), func(params map[string]float64) {
		trial := Trial{Params: params, Value: math.NaN()}
		defer func() { trials = append(trials, trial) }()

		exp, err := buildExperiment(params)
		if err != nil {
			trial.Err = err
			return
		}
		result, err := exp.Run(ctx)
		if err != nil {
			trial.Err = err
			return
		}
		val, ok := result.Metrics[metricName]
		if !ok {
			trial.Err = errors.Wrapf(dynamo.ErrInvalidConfiguration, "run has no metric %q", metricName)
			return
		}
		trial.Value = val
		if val < best {
			best = val
			bestParams = params
		}
	})
	if err != nil {
		return bestParams, best, trials, err
	}
	if bestParams == nil {
		var all error
		for _, t := range trials {
			all = multierr.Append(all, t.Err)
		}
		if all == nil {
			all = errors.Errorf("metric %q was never finite", metricName)
		}
		return nil, best, trials, errors.Wrap(all, "every grid point failed")
	}
	return bestParams, best, trials, nil
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	evaluate func(map[string]float64),
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth == len(g.paramNames) {
		evaluate(current)
		return nil
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64, len(current)+1)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		if err := g.searchRecursive(ctx, depth+1, newParams, evaluate); err != nil {
			return err
		}
	}
	return nil
}

// Tunable lists the parameters ApplyParams understands.
func Tunable() []string {
	names := []string{"kp", "kv", "pinv_damping", "joint_damping"}
	sort.Strings(names)
	return names
}

// ApplyParams returns a copy of base with the named settings replaced. kp
// and kv set all three axes.
func ApplyParams(base *config.Config, params map[string]float64) (*config.Config, error) {
	cfg := base.Clone()
	for name, v := range params {
		switch name {
		case "kp":
			cfg.Gains.Kp = [3]float64{v, v, v}
		case "kv":
			cfg.Gains.Kv = [3]float64{v, v, v}
		case "pinv_damping":
			cfg.PinvDamping = v
		case "joint_damping":
			cfg.JointDamping = v
		default:
			return nil, errors.Wrapf(dynamo.ErrInvalidConfiguration, "cannot tune %q", name)
		}
	}
	return cfg, nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
