package optimizer

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// FormulateBatch runs independent formulations concurrently and returns their
// outcomes in input order. A cancelled ctx turns pending formulations into
// solver-error rejections; it never drops an entry.
func (o *Optimizer) FormulateBatch(ctx context.Context, reqs []Request) []Outcome {
	outcomes := make([]Outcome, len(reqs))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(o.concurrency)

	for i := range reqs {
		eg.Go(func() error {
			outcomes[i] = o.Formulate(egCtx, reqs[i])
			return nil
		})
	}

	// workers never return errors
	_ = eg.Wait()

	o.log.Debug("Batch formulation complete", "requests", len(reqs), "concurrency", o.concurrency)
	return outcomes
}
