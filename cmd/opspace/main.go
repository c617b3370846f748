package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/opspace/internal/automation"
	"github.com/san-kum/opspace/internal/config"
	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/logging"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	preset     string
	dt         float64
	duration   float64
	seed       int64
	integrator string
	kp         float64
	kv         float64
	offset     []float64
	lowerBound float64
	noRefine   bool
	jsonOut    bool
	// plot
	plane string
	// export-plot
	outDir string
	format string
	// tune
	kpGrid []float64
	kvGrid []float64
	metric string
	// montecarlo
	trials    int
	perturb   float64
	workers   int
	tolerance float64
	// bench
	benchTime float64
	// watch
	speed float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "opspace",
		Short:         "operational-space control simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".opspace", "data directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a closed-loop reach and store it",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addConfigFlags(runCmd)
	runCmd.Flags().BoolVar(&jsonOut, "json", false, "print the whole run as JSON instead of a summary")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot error, position and path in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&plane, "plane", "xz", "plane for the path view (xy, xz, yz)")

	analyzeCmd := &cobra.Command{
		Use:   "analyze [run_id]",
		Short: "convergence, refinement and torque chatter analysis",
		Args:  cobra.ExactArgs(1),
		RunE:  analyzeRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a stored run as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportPlotCmd := &cobra.Command{
		Use:   "export-plot [run_id]",
		Short: "render error, tracking and torque charts",
		Args:  cobra.ExactArgs(1),
		RunE:  exportPlot,
	}
	exportPlotCmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	exportPlotCmd.Flags().StringVar(&format, "format", "png", "png, svg or pdf")

	presetsCmd := &cobra.Command{
		Use:   "presets [group]",
		Short: "list presets",
		Args:  cobra.MaximumNArgs(1),
		RunE:  listPresets,
	}

	tuneCmd := &cobra.Command{
		Use:   "tune",
		Short: "grid search over kp and kv",
		Args:  cobra.NoArgs,
		RunE:  tuneGains,
	}
	addConfigFlags(tuneCmd)
	tuneCmd.Flags().Float64SliceVar(&kpGrid, "kp-grid", []float64{250, 500, 750, 1000}, "kp values")
	tuneCmd.Flags().Float64SliceVar(&kvGrid, "kv-grid", []float64{50, 150, 250}, "kv values")
	tuneCmd.Flags().StringVar(&metric, "metric", "tracking_rms", "metric to minimize")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file]",
		Short: "run a waypoint scenario and store it",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	monteCarloCmd := &cobra.Command{
		Use:   "montecarlo",
		Short: "run trials from perturbed start poses in parallel",
		Args:  cobra.NoArgs,
		RunE:  runMonteCarlo,
	}
	addConfigFlags(monteCarloCmd)
	monteCarloCmd.Flags().IntVar(&trials, "trials", 20, "number of trials")
	monteCarloCmd.Flags().Float64Var(&perturb, "perturb", 0.1, "max joint perturbation (rad)")
	monteCarloCmd.Flags().IntVar(&workers, "workers", 0, "parallel workers (0 = GOMAXPROCS)")
	monteCarloCmd.Flags().Float64Var(&tolerance, "tol", 0.005, "final error counted as converged (m)")

	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "benchmark controller ticks per model and integrator",
		Args:  cobra.NoArgs,
		RunE:  benchModels,
	}
	benchCmd.Flags().Float64Var(&benchTime, "time", 0.5, "simulated seconds per case")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "run the closed loop live in the terminal",
		Args:  cobra.NoArgs,
		RunE:  watchSimulation,
	}
	addConfigFlags(watchCmd)
	watchCmd.Flags().Float64Var(&speed, "speed", 0.25, "playback speed relative to real time")

	rootCmd.AddCommand(runCmd, watchCmd, listCmd, plotCmd, analyzeCmd, exportCmd, exportPlotCmd,
		presetsCmd, tuneCmd, scenarioCmd, monteCarloCmd, benchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "preset as group/name, e.g. seven_dof/reach")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep (s)")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration (s)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "integrator")
	cmd.Flags().Float64Var(&kp, "kp", 0, "position gain on all axes")
	cmd.Flags().Float64Var(&kv, "kv", 0, "velocity gain on all axes")
	cmd.Flags().Float64SliceVar(&offset, "offset", nil, "target offset from the start position: x,y,z")
	cmd.Flags().Float64Var(&lowerBound, "lower-bound", 0, "torque lower bound for every joint (N m)")
	cmd.Flags().BoolVar(&noRefine, "no-refine", false, "skip constrained refinement")
}

// resolveConfig layers preset, config file and flags, in that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		p, err := automation.PresetConfig(preset)
		if err != nil {
			return nil, err
		}
		cfg = p
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load config")
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("time") {
		cfg.Duration = duration
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("kp") {
		cfg.Gains.Kp = [3]float64{kp, kp, kp}
	}
	if flags.Changed("kv") {
		cfg.Gains.Kv = [3]float64{kv, kv, kv}
	}
	if flags.Changed("offset") {
		if len(offset) != 3 {
			return nil, errors.Wrapf(dynamo.ErrInvalidConfiguration, "--offset needs 3 values, got %d", len(offset))
		}
		copy(cfg.Target.Offset[:], offset)
	}
	if flags.Changed("lower-bound") {
		cfg.LowerBound = config.ConstantBound(lowerBound)
	}
	if flags.Changed("no-refine") {
		cfg.Refiner.Disabled = noRefine
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	if logLevel != "" {
		level = logLevel
	}
	return logging.NewLogger("opspace", level)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}
