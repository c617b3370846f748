package integrators

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/opspace/internal/dynamo"
)

var constructors = map[string]func() dynamo.Integrator{
	"euler":         func() dynamo.Integrator { return NewEuler() },
	"semi_implicit": func() dynamo.Integrator { return NewSemiImplicitEuler() },
	"rk4":           func() dynamo.Integrator { return NewRK4() },
	"rk45":          func() dynamo.Integrator { return NewRK45() },
	"verlet":        func() dynamo.Integrator { return NewVerlet() },
	"leapfrog":      func() dynamo.Integrator { return NewLeapfrog() },
}

// New returns a fresh integrator by name. Integrators keep scratch buffers,
// so each simulation needs its own.
func New(name string) (dynamo.Integrator, error) {
	c, ok := constructors[name]
	if !ok {
		return nil, errors.Wrapf(dynamo.ErrInvalidConfiguration, "unknown integrator %q", name)
	}
	return c(), nil
}

// Names lists the registered integrators in sorted order.
func Names() []string {
	names := make([]string, 0, len(constructors))
	for n := range constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
