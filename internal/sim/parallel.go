package sim

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/opspace/internal/dynamo"
)

// Job builds one independent run. Plants, controllers and integrators all
// carry state, so nothing may be shared between jobs.
type Job func() (*Simulator, TargetFunc, dynamo.Config, error)

// Ensemble runs jobs concurrently with at most Workers in flight.
type Ensemble struct {
	Workers int
}

func NewEnsemble(workers int) *Ensemble {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Ensemble{Workers: workers}
}

// Run returns one result per job, in job order. The first failing job
// cancels the rest.
func (e *Ensemble) Run(ctx context.Context, jobs []Job) ([]*Result, error) {
	results := make([]*Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			s, target, cfg, err := job()
			if err != nil {
				return errors.Wrapf(err, "building run %d", i)
			}
			res, err := s.Run(ctx, target, cfg)
			results[i] = res
			if err != nil {
				return errors.Wrapf(err, "run %d", i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// RunEach is like Run but a failing job does not stop the others. errs[i]
// is the error of job i. Only ctx cancellation ends the ensemble early.
func (e *Ensemble) RunEach(ctx context.Context, jobs []Job) (results []*Result, errs []error) {
	results = make([]*Result, len(jobs))
	errs = make([]error, len(jobs))

	g := new(errgroup.Group)
	g.SetLimit(e.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			s, target, cfg, err := job()
			if err != nil {
				errs[i] = errors.Wrapf(err, "building run %d", i)
				return nil
			}
			results[i], errs[i] = s.Run(ctx, target, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}
