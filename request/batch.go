package request

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dcshock/respipe/pipeline"
)

// Outcome is the result of one request in a batch.
type Outcome struct {
	Request Request
	Bag     pipeline.Bag
	Err     error
}

// ExecuteAll runs every request through h concurrently, at most limit at a
// time (limit <= 0 means no limit). Outcomes are returned in request order.
// Requests are independent: one failure does not cancel the others, though
// cancelling ctx stops those not yet sent.
func (e *Executor) ExecuteAll(ctx context.Context, reqs []Request, h pipeline.Handler, opts pipeline.Options, limit int) []Outcome {
	out := make([]Outcome, len(reqs))
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			bag, err := e.Execute(ctx, req, h, opts)
			out[i] = Outcome{Request: req, Bag: bag, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Errors returns the non-nil errors of outcomes, in order.
func Errors(outcomes []Outcome) []error {
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}
