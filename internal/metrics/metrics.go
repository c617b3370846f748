// Package metrics summarises closed-loop runs. Every metric consumes one
// [dynamo.Sample] per tick.
package metrics

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/opspace/internal/dynamo"
)

// DefaultVelocityLimit is the joint speed in rad/s above which a tick is
// counted as unstable.
const DefaultVelocityLimit = 10.0

// Default returns the standard metric set. h may be nil, in which case the
// energy metrics are left out.
func Default(h dynamo.Hamiltonian) []dynamo.Metric {
	ms := []dynamo.Metric{
		NewTrackingError(),
		NewFinalError(),
		NewControlEffort(),
		NewPeakTorque(),
		NewRefineRate(),
		NewStability(DefaultVelocityLimit),
	}
	if h != nil {
		ms = append(ms, NewEnergy(h), NewEnergyDrift(h))
	}
	return ms
}

// ByName builds a single metric.
func ByName(name string, h dynamo.Hamiltonian) (dynamo.Metric, error) {
	for _, m := range Default(h) {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, errors.Wrapf(dynamo.ErrInvalidConfiguration, "unknown metric %q", name)
}

// Names lists the metrics Default would return for a plant with energy.
func Names() []string {
	var names []string
	for _, m := range Default(nopHamiltonian{}) {
		names = append(names, m.Name())
	}
	sort.Strings(names)
	return names
}

type nopHamiltonian struct{}

func (nopHamiltonian) Energy(dynamo.State) float64 { return 0 }
