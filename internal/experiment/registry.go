package experiment

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/opspace/internal/dynamo"
	"github.com/san-kum/opspace/internal/integrators"
	"github.com/san-kum/opspace/internal/metrics"
	"github.com/san-kum/opspace/internal/physics"
)

// ModelFactory builds a fresh arm. joints is only read by models whose
// size is configurable.
type ModelFactory func(joints int) (*physics.SerialArm, error)

type Registry struct {
	models map[string]ModelFactory
}

func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]ModelFactory)}

	r.models["seven_dof"] = func(int) (*physics.SerialArm, error) { return physics.NewSevenDOF(), nil }
	r.models["planar"] = func(joints int) (*physics.SerialArm, error) {
		if joints < 1 {
			return nil, errors.Wrapf(dynamo.ErrInvalidConfiguration, "planar arm needs at least one joint, got %d", joints)
		}
		return physics.NewPlanar(joints), nil
	}
	return r
}

// Register adds or replaces a model.
func (r *Registry) Register(name string, f ModelFactory) {
	r.models[name] = f
}

func (r *Registry) GetModel(name string, joints int) (*physics.SerialArm, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, errors.Wrapf(dynamo.ErrInvalidConfiguration, "unknown model: %s", name)
	}
	return fn(joints)
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	return integrators.New(name)
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListIntegrators() []string {
	return integrators.Names()
}

func (r *Registry) DefaultMetrics(h dynamo.Hamiltonian) []dynamo.Metric {
	return metrics.Default(h)
}
