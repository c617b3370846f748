package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/opspace/internal/automation"
	"github.com/san-kum/opspace/internal/config"
	"github.com/san-kum/opspace/internal/experiment"
	"github.com/san-kum/opspace/internal/optim"
	"github.com/san-kum/opspace/internal/refine"
	"github.com/san-kum/opspace/internal/storage"
)

func tuneGains(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(base.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	g := optim.NewGridSearch([]string{"kp", "kv"}, [][]float64{kpGrid, kvGrid})
	logger.Infow("grid search", "points", g.Size(), "metric", metric)
	best, value, trials, err := g.Search(ctx, func(params map[string]float64) (*experiment.Experiment, error) {
		cfg, err := optim.ApplyParams(base, params)
		if err != nil {
			return nil, err
		}
		return experiment.Build(cfg, logger.Named("trial"))
	}, metric)

	sort.SliceStable(trials, func(i, j int) bool {
		// failed trials carry NaN and sort last
		return trials[i].Err == nil && (trials[j].Err != nil || trials[i].Value < trials[j].Value)
	})
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Kp", "Kv", metric, "Error"})
	for _, tr := range trials {
		msg := ""
		if tr.Err != nil {
			msg = tr.Err.Error()
		}
		t.AppendRow(table.Row{tr.Params["kp"], tr.Params["kv"], fmt.Sprintf("%.6g", tr.Value), msg})
	}
	fmt.Println(t.Render())
	if err != nil {
		return err
	}
	fmt.Printf("\nbest: kp=%g kv=%g %s=%.6g\n", best["kp"], best["kv"], metric, value)
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	scenario, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	logger, err := newLogger("")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	out, err := automation.RunScenario(ctx, scenario, logger)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetTitle(scenario.Name)
	t.AppendHeader(table.Row{"#", "Offset", "Hold", "Error at end"})
	for _, w := range out.Waypoints {
		wp := scenario.Waypoints[w.Index]
		t.AppendRow(table.Row{w.Index, fmt.Sprint(wp.Offset), fmt.Sprintf("%.3fs", wp.Hold), fmt.Sprintf("%.3e", w.FinalError)})
	}
	fmt.Println(t.Render())

	cfg, err := scenario.BaseConfig()
	if err != nil {
		return err
	}
	cfg.Duration = scenario.Duration()
	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(storage.Run{
		Config: cfg,
		Result: out.Result,
		Start:  out.Result.Positions[0],
		Target: out.Result.Targets[len(out.Result.Targets)-1],
	})
	if err != nil {
		return err
	}
	fmt.Printf("run id: %s\n", runID)
	return nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	base, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(base.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()
	results, err := automation.RunMonteCarlo(ctx, &automation.MonteCarloConfig{
		Base:         base,
		Perturbation: perturb,
		NumTrials:    trials,
		Workers:      workers,
		Tolerance:    tolerance,
	}, logger)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Trial", "Final Error", "Peak Torque", "Converged", "Stable", "Error"})
	for _, r := range results {
		msg := ""
		if r.Err != nil {
			msg = r.Err.Error()
		}
		t.AppendRow(table.Row{r.TrialID, fmt.Sprintf("%.3e", r.FinalError), fmt.Sprintf("%.2f", r.PeakTorque), r.Converged, r.Stable, msg})
	}
	converged, stable, failed := automation.MonteCarloStats(results)
	t.AppendFooter(table.Row{"", "", "", converged, stable, failed})
	fmt.Println(t.Render())
	fmt.Printf("%d trials in %v\n", len(results), time.Since(start).Round(time.Millisecond))
	return nil
}

func benchModels(cmd *cobra.Command, args []string) error {
	cases := []struct {
		preset string
		refine bool
	}{
		{"seven_dof/reach", true},
		{"seven_dof/reach", false},
		{"planar3/reach", true},
		{"planar3/singular", true},
	}
	integs := []string{"euler", "rk4", "verlet"}

	logger, err := newLogger("warn")
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Preset", "Refine", "Integrator", "Ticks", "Time", "µs/tick", "Refined", "Final Error"})
	for _, c := range cases {
		for _, name := range integs {
			cfg, err := automation.PresetConfig(c.preset)
			if err != nil {
				return err
			}
			cfg.Integrator = name
			cfg.Duration = benchTime
			cfg.Refiner.Disabled = !c.refine
			if err := benchCase(ctx, t, c.preset, cfg, logger); err != nil {
				return err
			}
		}
	}

	// joint-space PID holding the start pose, for scale
	for _, preset := range []string{"seven_dof/reach", "planar3/reach"} {
		cfg, err := automation.PresetConfig(preset)
		if err != nil {
			return err
		}
		cfg.Duration = benchTime
		if err := benchBaseline(ctx, t, preset, cfg, logger); err != nil {
			return err
		}
	}
	fmt.Println(t.Render())
	return nil
}

func benchBaseline(ctx context.Context, t table.Writer, name string, cfg *config.Config, logger *zap.SugaredLogger) error {
	exp, err := experiment.Build(cfg, logger)
	if err != nil {
		return err
	}
	start := time.Now()
	result, err := exp.RunBaseline(ctx, 200, 0, 30)
	elapsed := time.Since(start)
	if err != nil {
		return err
	}
	ticks := result.StepsTaken
	t.AppendRow(table.Row{
		name + " (joint pid)", false, cfg.Integrator, ticks,
		elapsed.Round(time.Microsecond),
		fmt.Sprintf("%.1f", float64(elapsed.Microseconds())/float64(ticks)),
		"-",
		fmt.Sprintf("%.2e", result.FinalError()),
	})
	return nil
}

func benchCase(ctx context.Context, t table.Writer, name string, cfg *config.Config, logger *zap.SugaredLogger) error {
	exp, err := experiment.Build(cfg, logger)
	if err != nil {
		return err
	}
	start := time.Now()
	result, err := exp.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		return err
	}
	ticks := result.StepsTaken
	refined := float64(result.StatusCounts()[refine.Refined]) / float64(ticks)
	t.AppendRow(table.Row{
		name, !cfg.Refiner.Disabled, cfg.Integrator, ticks,
		elapsed.Round(time.Microsecond),
		fmt.Sprintf("%.1f", float64(elapsed.Microseconds())/float64(ticks)),
		fmt.Sprintf("%.0f%%", 100*refined),
		fmt.Sprintf("%.2e", result.FinalError()),
	})
	return nil
}
