package analysis

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/refine"
)

// SettlingBand is the fraction of the initial error that counts as settled.
const SettlingBand = 0.02

type Convergence struct {
	Initial float64
	Final   float64
	Max     float64
	Mean    float64
	RMS     float64
	StdDev  float64
	P50     float64
	P90     float64
	P99     float64

	// Settled is false when the error never stays inside the band.
	Settled      bool
	SettlingTime float64

	// Monotonicity is the fraction of ticks on which the error did not grow.
	Monotonicity float64
}

// AnalyzeConvergence summarizes a tracking-error trace.
func AnalyzeConvergence(times, errs []float64) (*Convergence, error) {
	if len(times) != len(errs) {
		return nil, errors.Wrapf(dynamo.ErrDimensionMismatch, "%d times for %d errors", len(times), len(errs))
	}
	if len(errs) == 0 {
		return nil, errors.Wrap(stats.ErrEmptyInput, "no samples")
	}
	data := stats.Float64Data(errs)

	c := &Convergence{Initial: errs[0], Final: errs[len(errs)-1]}
	var err error
	if c.Max, err = data.Max(); err != nil {
		return nil, err
	}
	if c.Mean, err = data.Mean(); err != nil {
		return nil, err
	}
	if c.StdDev, err = data.StandardDeviation(); err != nil {
		return nil, err
	}
	for _, p := range []struct {
		pct float64
		dst *float64
	}{{50, &c.P50}, {90, &c.P90}, {99, &c.P99}} {
		if *p.dst, err = data.Percentile(p.pct); err != nil {
			return nil, err
		}
	}

	squares := make(stats.Float64Data, len(errs))
	for i, e := range errs {
		squares[i] = e * e
	}
	meanSq, err := squares.Mean()
	if err != nil {
		return nil, err
	}
	c.RMS = math.Sqrt(meanSq)

	c.Settled, c.SettlingTime = settling(times, errs, SettlingBand*c.Initial)
	c.Monotonicity = monotonicity(errs)
	return c, nil
}

// settling finds the first time after which every error is within band.
func settling(times, errs []float64, band float64) (bool, float64) {
	last := -1
	for i := len(errs) - 1; i >= 0; i-- {
		if errs[i] > band {
			last = i
			break
		}
	}
	switch {
	case last == -1:
		return true, times[0]
	case last == len(errs)-1:
		return false, math.NaN()
	default:
		return true, times[last+1]
	}
}

func monotonicity(errs []float64) float64 {
	if len(errs) < 2 {
		return 1
	}
	n := 0
	for i := 1; i < len(errs); i++ {
		if errs[i] <= errs[i-1] {
			n++
		}
	}
	return float64(n) / float64(len(errs)-1)
}

// RefinementSummary counts refinement outcomes over a run.
type RefinementSummary struct {
	Ticks    int
	Counts   map[refine.Status]int
	Refined  float64
	Fallback float64
}

func SummarizeRefinement(statuses []refine.Status) RefinementSummary {
	s := RefinementSummary{Ticks: len(statuses), Counts: make(map[refine.Status]int)}
	if len(statuses) == 0 {
		return s
	}
	var fallback int
	for _, st := range statuses {
		s.Counts[st]++
		if (refine.Outcome{Status: st}).Fallback() {
			fallback++
		}
	}
	s.Refined = float64(s.Counts[refine.Refined]) / float64(len(statuses))
	s.Fallback = float64(fallback) / float64(len(statuses))
	return s
}
