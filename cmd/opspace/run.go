package main

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/san-kum/opspace/internal/automation"
	"github.com/san-kum/opspace/internal/config"
	"github.com/san-kum/opspace/internal/experiment"
	"github.com/san-kum/opspace/internal/logging"
	"github.com/san-kum/opspace/internal/sim"
	"github.com/san-kum/opspace/internal/storage"
	"github.com/san-kum/opspace/internal/viz"
)

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	exp, err := experiment.Build(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	logger.Infow("running", "model", cfg.Model, "dof", exp.Arm().DOF(), "duration", cfg.Duration)
	start := time.Now()
	result, err := exp.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		return err
	}

	run := storage.Run{Config: cfg, Result: result, Start: exp.Start(), Target: exp.Target()}
	if jsonOut {
		return storage.ExportJSON(os.Stdout, run)
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(run)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d\n", result.StepsTaken)
	fmt.Printf("final error: %.6f m\n\n", result.FinalError())
	fmt.Println(metricsTable(result))
	return nil
}

// watchSimulation runs without logging; the terminal belongs to the view.
func watchSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	exp, err := experiment.Build(cfg, logging.NewNop())
	if err != nil {
		return err
	}
	return viz.Run(exp, speed)
}

func metricsTable(result *sim.Result) string {
	names := make([]string, 0, len(result.Metrics))
	for name := range result.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	for _, name := range names {
		t.AppendRow(table.Row{name, fmt.Sprintf("%.6g", result.Metrics[name])})
	}
	for status, n := range result.StatusCounts() {
		t.AppendFooter(table.Row{status.String(), n})
	}
	return t.Render()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Model", "Time", "Duration", "Dt", "Integ", "Final Error", "Refined"})
	for _, run := range runs {
		refined := 0.0
		if run.Steps > 0 {
			refined = float64(run.Statuses["refined"]) / float64(run.Steps)
		}
		t.AppendRow(table.Row{
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%.2fs", run.Duration),
			fmt.Sprintf("%.4fs", run.Dt),
			run.Integrator,
			fmt.Sprintf("%.2e", run.FinalError),
			fmt.Sprintf("%.0f%%", 100*refined),
		})
	}
	fmt.Println(t.Render())
	return nil
}

func listPresets(cmd *cobra.Command, args []string) error {
	groups := config.ListModels()
	if len(args) == 1 {
		if config.ListPresets(args[0]) == nil {
			fmt.Printf("no presets for group: %s (available: %v)\n", args[0], groups)
			return nil
		}
		groups = args[:1]
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Preset", "Model", "Offset", "Duration", "Lower Bound"})
	for _, group := range groups {
		for _, name := range config.ListPresets(group) {
			cfg, err := automation.PresetConfig(group + "/" + name)
			if err != nil {
				return err
			}
			bound := fmt.Sprint(cfg.LowerBound.Values)
			if cfg.LowerBound.Constant != nil {
				bound = fmt.Sprintf("%g", *cfg.LowerBound.Constant)
			}
			t.AppendRow(table.Row{group + "/" + name, cfg.Model, fmt.Sprint(cfg.Target.Offset), cfg.Duration, bound})
		}
	}
	fmt.Println(t.Render())
	return nil
}
