package metrics

import (
	"math"

	"github.com/san-kum/opspace/internal/dynamo"
)

// Stability is the fraction of ticks in which every joint velocity stayed
// below threshold.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(sample dynamo.Sample) {
	s.samples++
	half := len(sample.State) / 2
	for _, val := range sample.State[half:] {
		if math.Abs(val) > s.threshold {
			s.violations++
			break
		}
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}
