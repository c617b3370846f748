package analysis

import (
	"math/cmplx"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/san-kum/opspace/internal/dynamo"
)

// Spectrum is a one-sided power spectrum.
type Spectrum struct {
	Freqs []float64 // Hz
	Power []float64
}

// PowerSpectrum of a signal sampled every dt seconds. The mean is removed
// first so the DC bin only reflects numerical noise.
func PowerSpectrum(signal []float64, dt float64) (*Spectrum, error) {
	n := len(signal)
	if n < 2 {
		return nil, errors.Wrapf(dynamo.ErrInvalidState, "need at least 2 samples, got %d", n)
	}
	if !(dt > 0) {
		return nil, errors.Wrapf(dynamo.ErrInvalidConfiguration, "dt must be positive, got %g", dt)
	}

	var mean float64
	for _, v := range signal {
		mean += v
	}
	mean /= float64(n)
	centered := make([]float64, n)
	for i, v := range signal {
		centered[i] = v - mean
	}

	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, centered)
	s := &Spectrum{
		Freqs: make([]float64, len(coeff)),
		Power: make([]float64, len(coeff)),
	}
	for i, c := range coeff {
		s.Freqs[i] = fft.Freq(i) / dt
		a := cmplx.Abs(c) / float64(n)
		s.Power[i] = a * a
	}
	return s, nil
}

// Dominant returns the strongest non-DC component.
func (s *Spectrum) Dominant() (freq, power float64) {
	for i := 1; i < len(s.Power); i++ {
		if s.Power[i] > power {
			freq, power = s.Freqs[i], s.Power[i]
		}
	}
	return freq, power
}

// HighFrequencyRatio is the share of power above cutoff Hz. Torque that
// flips between refined and fallback commands shows up here.
func (s *Spectrum) HighFrequencyRatio(cutoff float64) float64 {
	var total, high float64
	for i, p := range s.Power {
		total += p
		if s.Freqs[i] > cutoff {
			high += p
		}
	}
	if total == 0 {
		return 0
	}
	return high / total
}
