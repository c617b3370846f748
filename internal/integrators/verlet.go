package integrators

import "github.com/san-kum/opspace/internal/dynamo"

// Verlet is velocity Verlet for states laid out as [q; dq]. Arm
// accelerations depend on dq through damping and Coriolis terms, so the
// end-of-step acceleration is evaluated at a predicted velocity rather than
// the old one.
type Verlet struct {
	scratch dynamo.State
}

func NewVerlet() *Verlet {
	return &Verlet{}
}

func (v *Verlet) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	if len(v.scratch) != n {
		v.scratch = make(dynamo.State, n)
	}
	q, dq := split(x)
	_, ddq := split(dyn.Derive(x, u, t))

	result := make(dynamo.State, n)
	qNew, dqNew := split(result)
	sq, sdq := split(v.scratch)
	for i := range q {
		qNew[i] = q[i] + dq[i]*dt + 0.5*ddq[i]*dt*dt
		sq[i] = qNew[i]
		sdq[i] = dq[i] + ddq[i]*dt
	}

	_, ddqNew := split(dyn.Derive(v.scratch, u, t+dt))
	for i := range dq {
		dqNew[i] = dq[i] + 0.5*(ddq[i]+ddqNew[i])*dt
	}
	return result
}

// Leapfrog is kick-drift-kick on [q; dq].
type Leapfrog struct {
	scratch dynamo.State
}

func NewLeapfrog() *Leapfrog {
	return &Leapfrog{}
}

func (l *Leapfrog) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	n := len(x)
	if len(l.scratch) != n {
		l.scratch = make(dynamo.State, n)
	}
	q, dq := split(x)
	sq, half := split(l.scratch)

	_, ddq := split(dyn.Derive(x, u, t))
	for i := range dq {
		half[i] = dq[i] + 0.5*dt*ddq[i]
		sq[i] = q[i] + half[i]*dt
	}

	_, ddqNew := split(dyn.Derive(l.scratch, u, t+dt))
	result := make(dynamo.State, n)
	qNew, dqNew := split(result)
	for i := range q {
		qNew[i] = sq[i]
		dqNew[i] = half[i] + 0.5*dt*ddqNew[i]
	}
	return result
}
