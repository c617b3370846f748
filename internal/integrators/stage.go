package integrators

import "github.com/san-kum/opspace/internal/dynamo"

// stage writes x + h*Σ w[j]*k[j] into dst. Stages with zero weight are
// skipped.
func stage(dst, x dynamo.State, h float64, w []float64, k []dynamo.State) {
	for i := range dst {
		s := 0.0
		for j, wj := range w {
			if wj != 0 {
				s += wj * k[j][i]
			}
		}
		dst[i] = x[i] + h*s
	}
}

// split returns the position and velocity halves of an arm state [q; dq].
func split(x dynamo.State) (q, dq dynamo.State) {
	half := len(x) / 2
	return x[:half], x[half:]
}
