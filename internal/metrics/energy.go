package metrics

import (
	"math"

	"github.com/san-kum/opspace/internal/dynamo"
)

// Energy is the mean mechanical energy of the plant over the run.
type Energy struct {
	name        string
	h           dynamo.Hamiltonian
	samples     int
	totalEnergy float64
}

func NewEnergy(h dynamo.Hamiltonian) *Energy {
	return &Energy{
		name: "energy",
		h:    h,
	}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(s dynamo.Sample) {
	if e.h == nil || len(s.State) == 0 {
		return
	}
	e.totalEnergy += e.h.Energy(s.State)
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}

// EnergyDrift is the largest relative change of mechanical energy from the
// first tick. Under control this measures how hard the arm was driven.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	maxDrift      float64
	samples       int
	h             dynamo.Hamiltonian
}

func NewEnergyDrift(h dynamo.Hamiltonian) *EnergyDrift {
	return &EnergyDrift{
		name: "energy_drift",
		h:    h,
	}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(s dynamo.Sample) {
	if e.h == nil {
		return
	}
	energy := e.h.Energy(s.State)

	if e.samples == 0 {
		e.initialEnergy = energy
	}
	e.samples++

	if e.initialEnergy != 0 {
		drift := math.Abs(energy-e.initialEnergy) / math.Abs(e.initialEnergy)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 {
	return e.maxDrift
}

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}
