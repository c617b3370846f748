package optim

import (
	"context"
	"errors"
	"testing"

	"go.viam.com/test"

	"github.com/san-kum/opspace/internal/config"
	"github.com/san-kum/opspace/internal/experiment"
)

func quickReach() *config.Config {
	cfg := config.GetPreset("seven_dof", "reach")
	cfg.Duration = 0.1
	return cfg
}

func builder(base *config.Config) func(map[string]float64) (*experiment.Experiment, error) {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := ApplyParams(base, params)
		if err != nil {
			return nil, err
		}
		return experiment.Build(cfg, nil)
	}
}

func TestGridSearchPrefersStifferGain(t *testing.T) {
	g := NewGridSearch([]string{"kp", "kv"}, [][]float64{{100, 750}, {250}})
	test.That(t, g.Size(), test.ShouldEqual, 2)

	best, val, trials, err := g.Search(context.Background(), builder(quickReach()), "final_error")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, best["kp"], test.ShouldEqual, 750)
	test.That(t, best["kv"], test.ShouldEqual, 250)
	test.That(t, len(trials), test.ShouldEqual, 2)
	test.That(t, val, test.ShouldEqual, trials[1].Value)
	test.That(t, trials[0].Value, test.ShouldBeGreaterThan, trials[1].Value)
}

func TestGridSearchKeepsFailedTrials(t *testing.T) {
	g := NewGridSearch([]string{"pinv_damping"}, [][]float64{{-1, 0.0025}})
	best, _, trials, err := g.Search(context.Background(), builder(quickReach()), "final_error")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, best["pinv_damping"], test.ShouldEqual, 0.0025)
	test.That(t, trials[0].Err, test.ShouldNotBeNil)
	test.That(t, trials[1].Err, test.ShouldBeNil)
}

func TestGridSearchAllFail(t *testing.T) {
	g := NewGridSearch([]string{"kp"}, [][]float64{{1, 2}})
	fail := func(map[string]float64) (*experiment.Experiment, error) { return nil, errors.New("boom") }
	_, _, trials, err := g.Search(context.Background(), fail, "final_error")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "boom")
	test.That(t, len(trials), test.ShouldEqual, 2)
}

func TestGridSearchUnknownMetric(t *testing.T) {
	g := NewGridSearch([]string{"kp"}, [][]float64{{750}})
	_, _, _, err := g.Search(context.Background(), builder(quickReach()), "nope")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGridSearchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGridSearch([]string{"kp"}, [][]float64{{100, 750}})
	_, _, trials, err := g.Search(ctx, builder(quickReach()), "final_error")
	test.That(t, err, test.ShouldEqual, context.Canceled)
	test.That(t, len(trials), test.ShouldEqual, 0)
}

func TestGridSearchBadGrid(t *testing.T) {
	_, _, _, err := NewGridSearch([]string{"kp", "kv"}, [][]float64{{1}}).Search(context.Background(), nil, "x")
	test.That(t, err, test.ShouldNotBeNil)
	_, _, _, err = NewGridSearch([]string{"kp"}, [][]float64{{}}).Search(context.Background(), nil, "x")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestApplyParams(t *testing.T) {
	base := quickReach()
	cfg, err := ApplyParams(base, map[string]float64{"kp": 400, "kv": 40, "joint_damping": 0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Gains.Kp, test.ShouldResemble, [3]float64{400, 400, 400})
	test.That(t, cfg.Gains.Kv, test.ShouldResemble, [3]float64{40, 40, 40})
	test.That(t, cfg.JointDamping, test.ShouldEqual, 0.1)
	test.That(t, base.Gains.Kp[0], test.ShouldEqual, 750.0)

	_, err = ApplyParams(base, map[string]float64{"ki": 1})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, Tunable(), test.ShouldContain, "kp")
}

func TestLinspace(t *testing.T) {
	test.That(t, Linspace(0, 1, 5), test.ShouldResemble, []float64{0, 0.25, 0.5, 0.75, 1})
	test.That(t, Linspace(3, 9, 1), test.ShouldResemble, []float64{3})
	test.That(t, Linspace(0, 1, 0), test.ShouldBeNil)
}
