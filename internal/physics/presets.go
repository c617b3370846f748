package physics

import "github.com/golang/geo/r3"

var (
	axisY = r3.Vector{Y: 1}
	axisZ = r3.Vector{Z: 1}
)

// NewSevenDOF returns a seven joint arm with alternating yaw and pitch
// joints, shaped like a typical collaborative manipulator.
func NewSevenDOF() *SerialArm {
	const limit = 2.9
	links := []Link{
		{Axis: axisZ, Length: r3.Vector{Z: 0.33}, Mass: 3.0, Lower: -limit, Upper: limit},
		{Axis: axisY, Length: r3.Vector{Z: 0.2}, Mass: 2.5, Lower: -1.76, Upper: 1.76},
		{Axis: axisZ, Length: r3.Vector{Z: 0.2}, Mass: 2.0, Lower: -limit, Upper: limit},
		{Axis: axisY, Length: r3.Vector{Z: 0.2}, Mass: 1.5, Lower: -3.0, Upper: -0.07},
		{Axis: axisZ, Length: r3.Vector{Z: 0.2}, Mass: 1.2, Lower: -limit, Upper: limit},
		{Axis: axisY, Length: r3.Vector{Z: 0.1}, Mass: 1.0, Lower: -0.02, Upper: 3.75},
		{Axis: axisZ, Length: r3.Vector{Z: 0.1}, Mass: 1.0, Lower: -limit, Upper: limit},
	}
	a, err := NewSerialArm(links)
	if err != nil {
		panic(err)
	}
	a.Home = SevenDOFHome()
	return a
}

// SevenDOFHome is a bent, well conditioned pose for [NewSevenDOF].
func SevenDOFHome() []float64 {
	return []float64{0, 0.5, 0, -1.3, 0, 0.9, 0}
}

// NewPlanar returns an n joint arm moving in the vertical x-z plane. Its
// Jacobian never has a y component, so it is rank deficient in task space.
func NewPlanar(n int) *SerialArm {
	if n < 1 {
		n = 1
	}
	links := make([]Link, n)
	for i := range links {
		links[i] = Link{
			Axis:   axisY,
			Length: r3.Vector{X: 0.9 / float64(n)},
			Mass:   1.0,
			Lower:  -3.1,
			Upper:  3.1,
		}
	}
	a, err := NewSerialArm(links)
	if err != nil {
		panic(err)
	}
	a.Home = PlanarHome(n)
	return a
}

// PlanarHome is an elbow-bent pose for [NewPlanar].
func PlanarHome(n int) []float64 {
	q := make([]float64, n)
	for i := range q {
		q[i] = -0.4
	}
	if n > 0 {
		q[0] = 0.3
	}
	return q
}
