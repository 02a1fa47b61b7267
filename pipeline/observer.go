package pipeline

import (
	"context"
	"errors"
	"time"
)

// Run identifies one observed pipeline execution.
type Run struct {
	ID       string
	Pipeline string
}

// Observer provides pre/post hooks for pipeline and handler execution.
// BeforePipeline runs before the first handler with the starting bag;
// BeforeHandler/AfterHandler wrap every handler (index is local to the
// pipeline); AfterPipeline runs last with the final bag and error.
type Observer interface {
	BeforePipeline(ctx context.Context, run Run, bag Bag) error
	AfterPipeline(ctx context.Context, run Run, bag Bag, err error) error
	BeforeHandler(ctx context.Context, run Run, index int, bag Bag) error
	AfterHandler(ctx context.Context, run Run, index int, bag Bag, handlerErr error, d time.Duration) error
}

type runKey struct{}

// RunFromContext returns the observed run the context belongs to.
func RunFromContext(ctx context.Context) (Run, bool) {
	r, ok := ctx.Value(runKey{}).(Run)
	return r, ok
}

func withRun(ctx context.Context, r Run) context.Context {
	return context.WithValue(ctx, runKey{}, r)
}

// MultiObserver calls every observer in order. All of them see each hook; their
// errors are joined.
type MultiObserver []Observer

func (m MultiObserver) BeforePipeline(ctx context.Context, run Run, bag Bag) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.BeforePipeline(ctx, run, bag))
	}
	return errors.Join(errs...)
}

func (m MultiObserver) AfterPipeline(ctx context.Context, run Run, bag Bag, err error) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.AfterPipeline(ctx, run, bag, err))
	}
	return errors.Join(errs...)
}

func (m MultiObserver) BeforeHandler(ctx context.Context, run Run, index int, bag Bag) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.BeforeHandler(ctx, run, index, bag))
	}
	return errors.Join(errs...)
}

func (m MultiObserver) AfterHandler(ctx context.Context, run Run, index int, bag Bag, handlerErr error, d time.Duration) error {
	var errs []error
	for _, o := range m {
		errs = append(errs, o.AfterHandler(ctx, run, index, bag, handlerErr, d))
	}
	return errors.Join(errs...)
}
