package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/guptarohit/asciigraph"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot"

	"github.com/san-kum/opspace/internal/analysis"
	"github.com/san-kum/opspace/internal/export"
	"github.com/san-kum/opspace/internal/storage"
)

const chatterCutoff = 50.0 // Hz

func loadRun(runID string) (*storage.RunMetadata, *storage.Series, error) {
	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	series, err := st.LoadSeries(runID)
	if err != nil {
		return nil, nil, err
	}
	if series.Len() == 0 {
		return nil, nil, errors.Errorf("run %s has no samples", runID)
	}
	return meta, series, nil
}

func pick(values []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, k := range idx {
		out[i] = values[k]
	}
	return out
}

func plotRun(cmd *cobra.Command, args []string) error {
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("samples: %d\n\n", series.Len())

	idx := export.Downsample(160, series.Len())
	fmt.Println(asciigraph.Plot(pick(series.Errors, idx),
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption("position error (m)"),
	))
	fmt.Println()

	axes := make([][]float64, 3)
	for _, k := range idx {
		p := series.Positions[k]
		axes[0] = append(axes[0], p.X)
		axes[1] = append(axes[1], p.Y)
		axes[2] = append(axes[2], p.Z)
	}
	fmt.Println(asciigraph.PlotMany(axes,
		asciigraph.Height(12),
		asciigraph.Width(80),
		asciigraph.SeriesColors(asciigraph.Red, asciigraph.Green, asciigraph.Blue),
		asciigraph.Caption("end effector x (red) y (green) z (blue)"),
	))
	fmt.Println()

	path, err := analysis.ProjectPath(series.Positions, plane)
	if err != nil {
		return err
	}
	fmt.Printf("path in %s plane (o start, X target):\n", plane)
	fmt.Print(analysis.PathToASCII(path, series.Targets[series.Len()-1], 60, 20))
	return nil
}

func analyzeRun(cmd *cobra.Command, args []string) error {
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}
	res, err := series.Result()
	if err != nil {
		return err
	}

	c, err := analysis.AnalyzeConvergence(res.Times, res.Errors)
	if err != nil {
		return err
	}
	fmt.Printf("convergence analysis: %s (%s, %d joints)\n\n", meta.ID, meta.Model, series.DOF())

	settle := "never"
	if c.Settled {
		settle = fmt.Sprintf("%.3fs", c.SettlingTime)
	}
	ct := table.NewWriter()
	ct.AppendHeader(table.Row{"Initial", "Final", "Max", "RMS", "P50", "P90", "P99", "Settling (2%)", "Monotone"})
	ct.AppendRow(table.Row{
		fmt.Sprintf("%.4g", c.Initial), fmt.Sprintf("%.4g", c.Final), fmt.Sprintf("%.4g", c.Max),
		fmt.Sprintf("%.4g", c.RMS), fmt.Sprintf("%.4g", c.P50), fmt.Sprintf("%.4g", c.P90),
		fmt.Sprintf("%.4g", c.P99), settle, fmt.Sprintf("%.1f%%", 100*c.Monotonicity),
	})
	fmt.Println(ct.Render())
	fmt.Println()

	summary := analysis.SummarizeRefinement(res.Statuses)
	statuses := make([]string, 0, len(summary.Counts))
	counts := make(map[string]int, len(summary.Counts))
	for st, n := range summary.Counts {
		statuses = append(statuses, st.String())
		counts[st.String()] = n
	}
	sort.Strings(statuses)
	rt := table.NewWriter()
	rt.AppendHeader(table.Row{"Refinement", "Ticks", "Share"})
	for _, name := range statuses {
		rt.AppendRow(table.Row{name, counts[name], fmt.Sprintf("%.1f%%", 100*float64(counts[name])/float64(summary.Ticks))})
	}
	fmt.Println(rt.Render())
	fmt.Println()

	dt := meta.Dt
	if len(res.Times) > 1 {
		dt = res.Times[1] - res.Times[0]
	}
	tt := table.NewWriter()
	tt.AppendHeader(table.Row{"Joint", "Dominant (Hz)", fmt.Sprintf("Power > %.0f Hz", chatterCutoff)})
	for j := 0; j < series.DOF(); j++ {
		trace := make([]float64, len(res.Torques))
		for k, tau := range res.Torques {
			trace[k] = tau[j]
		}
		ps, err := analysis.PowerSpectrum(trace, dt)
		if err != nil {
			return err
		}
		freq, _ := ps.Dominant()
		tt.AppendRow(table.Row{j, fmt.Sprintf("%.2f", freq), fmt.Sprintf("%.2f%%", 100*ps.HighFrequencyRatio(chatterCutoff))})
	}
	fmt.Println(tt.Render())
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	st := storage.New(dataDir)
	cfg, err := st.LoadConfig(runID)
	if err != nil {
		return err
	}
	meta, series, err := loadRun(runID)
	if err != nil {
		return err
	}
	res, err := series.Result()
	if err != nil {
		return err
	}
	for name, v := range meta.Metrics {
		res.Metrics[name] = v
	}
	s, tgt := meta.Start, meta.Target
	run := storage.Run{Config: cfg, Result: res}
	run.Start.X, run.Start.Y, run.Start.Z = s[0], s[1], s[2]
	run.Target.X, run.Target.Y, run.Target.Z = tgt[0], tgt[1], tgt[2]
	return storage.ExportJSON(os.Stdout, run)
}

func exportPlot(cmd *cobra.Command, args []string) error {
	meta, series, err := loadRun(args[0])
	if err != nil {
		return err
	}
	res, err := series.Result()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return err
	}

	charts := []struct {
		name  string
		build func() (*plot.Plot, error)
	}{
		{"error", func() (*plot.Plot, error) { return export.ErrorPlot(res.Times, res.Errors) }},
		{"tracking", func() (*plot.Plot, error) { return export.TrackingPlot(res.Times, res.Positions, res.Targets) }},
		{"torque", func() (*plot.Plot, error) { return export.TorquePlot(res.Times, res.Torques) }},
	}
	for _, c := range charts {
		p, err := c.build()
		if err != nil {
			return err
		}
		path := filepath.Join(outDir, fmt.Sprintf("%s_%s.%s", meta.ID, c.name, format))
		if err := export.Save(p, path); err != nil {
			return err
		}
		fmt.Println(path)
	}
	return nil
}
