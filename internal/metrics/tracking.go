package metrics

import (
	"math"

	"github.com/san-kum/opspace/internal/dynamo"
)

// TrackingError is the RMS Cartesian distance to the target.
type TrackingError struct {
	sumSq   float64
	samples int
}

func NewTrackingError() *TrackingError { return &TrackingError{} }

func (m *TrackingError) Name() string { return "tracking_rms" }

func (m *TrackingError) Observe(s dynamo.Sample) {
	e := s.Error()
	m.sumSq += e * e
	m.samples++
}

func (m *TrackingError) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return math.Sqrt(m.sumSq / float64(m.samples))
}

func (m *TrackingError) Reset() {
	m.sumSq = 0
	m.samples = 0
}

// FinalError is the distance to the target at the last tick.
type FinalError struct {
	last float64
}

func NewFinalError() *FinalError { return &FinalError{} }

func (m *FinalError) Name() string            { return "final_error" }
func (m *FinalError) Observe(s dynamo.Sample) { m.last = s.Error() }
func (m *FinalError) Value() float64          { return m.last }
func (m *FinalError) Reset()                  { m.last = 0 }

// RefineRate is the fraction of ticks whose acceleration came out of the
// optimizer rather than a fallback.
type RefineRate struct {
	refined int
	samples int
}

func NewRefineRate() *RefineRate { return &RefineRate{} }

func (m *RefineRate) Name() string { return "refine_rate" }

func (m *RefineRate) Observe(s dynamo.Sample) {
	if s.Refined {
		m.refined++
	}
	m.samples++
}

func (m *RefineRate) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return float64(m.refined) / float64(m.samples)
}

func (m *RefineRate) Reset() {
	m.refined = 0
	m.samples = 0
}
