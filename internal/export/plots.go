// Package export renders finished runs as PNG, SVG or PDF charts.
package export

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/opspace/internal/dynamo"
)

const (
	DefaultWidth  = 8 * vg.Inch
	DefaultHeight = 5 * vg.Inch
)

func newPlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = ylabel
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.Padding = vg.Points(6)
	p.Y.Label.Padding = vg.Points(6)
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func xys(times, values []float64) plotter.XYs {
	pts := make(plotter.XYs, len(times))
	for i := range times {
		pts[i].X = times[i]
		pts[i].Y = values[i]
	}
	return pts
}

func addLine(p *plot.Plot, pts plotter.XYs, label string, idx int, dashed bool) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.LineStyle.Width = vg.Points(1.5)
	line.LineStyle.Color = plotutil.Color(idx)
	if dashed {
		line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	}
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

// ErrorPlot shows the position error over time.
func ErrorPlot(times, errs []float64) (*plot.Plot, error) {
	if len(times) == 0 || len(times) != len(errs) {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "%d times for %d errors", len(times), len(errs))
	}
	p := newPlot("End-effector position error", "|x - target| (m)")
	if err := addLine(p, xys(times, errs), "error", 0, false); err != nil {
		return nil, err
	}
	return p, nil
}

// TrackingPlot shows each Cartesian axis against its target.
func TrackingPlot(times []float64, positions, targets []r3.Vector) (*plot.Plot, error) {
	if len(times) == 0 || len(positions) != len(times) || len(targets) != len(times) {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch,
			"%d times, %d positions, %d targets", len(times), len(positions), len(targets))
	}
	p := newPlot("End-effector tracking", "position (m)")
	axes := []struct {
		name string
		get  func(r3.Vector) float64
	}{
		{"x", func(v r3.Vector) float64 { return v.X }},
		{"y", func(v r3.Vector) float64 { return v.Y }},
		{"z", func(v r3.Vector) float64 { return v.Z }},
	}
	for i, axis := range axes {
		actual := make([]float64, len(times))
		goal := make([]float64, len(times))
		for k := range times {
			actual[k] = axis.get(positions[k])
			goal[k] = axis.get(targets[k])
		}
		if err := addLine(p, xys(times, actual), axis.name, i, false); err != nil {
			return nil, err
		}
		if err := addLine(p, xys(times, goal), axis.name+" target", i, true); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// TorquePlot shows every joint torque.
func TorquePlot(times []float64, torques []dynamo.Control) (*plot.Plot, error) {
	if len(times) == 0 || len(torques) != len(times) {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "%d times for %d torques", len(times), len(torques))
	}
	p := newPlot("Joint torques", "torque (N m)")
	for j := range torques[0] {
		vals := make([]float64, len(times))
		for k, tau := range torques {
			vals[k] = tau[j]
		}
		if err := addLine(p, xys(times, vals), fmt.Sprintf("tau%d", j), j, false); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Save writes p to path; the extension picks the format.
func Save(p *plot.Plot, path string) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png", ".svg", ".pdf", ".jpg", ".jpeg":
	default:
		return errors.Wrapf(dynamo.ErrInvalidConfiguration, "unsupported plot format %q", ext)
	}
	return p.Save(DefaultWidth, DefaultHeight, path)
}

// Write renders p in format ("png", "svg", ...) to w.
func Write(p *plot.Plot, w io.Writer, format string) error {
	wt, err := p.WriterTo(DefaultWidth, DefaultHeight, format)
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Downsample keeps about n evenly spaced samples so long runs stay light.
// The last sample is always kept.
func Downsample(n, length int) []int {
	if n <= 0 || length <= n {
		idx := make([]int, length)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	stride := int(math.Ceil(float64(length) / float64(n)))
	var idx []int
	for i := 0; i < length; i += stride {
		idx = append(idx, i)
	}
	if idx[len(idx)-1] != length-1 {
		idx = append(idx, length-1)
	}
	return idx
}
