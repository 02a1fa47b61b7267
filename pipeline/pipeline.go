package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dcshock/respipe/response"
)

// Pipeline runs a linear chain of handlers (h1 | h2 | ...). Each handler gets
// the bag returned by the previous one. A Pipeline is itself a Handler.
type Pipeline struct {
	Name     string
	Handlers []Handler
	Observer Observer // optional
}

// Build returns a pipeline running handlers in the given order. An empty list
// is allowed and yields an empty bag. Build panics on a nil handler.
func Build(handlers ...Handler) *Pipeline {
	for i, h := range handlers {
		if h == nil {
			panic(fmt.Sprintf("pipeline: nil handler at index %d", i))
		}
	}
	return &Pipeline{Handlers: append([]Handler(nil), handlers...)}
}

// Develop returns a new pipeline that runs built first and then handlers. An
// error from built stops the run; its bag seeds the following handlers.
func Develop(built Handler, handlers ...Handler) *Pipeline {
	all := make([]Handler, 0, len(handlers)+1)
	all = append(all, built)
	all = append(all, handlers...)
	return Build(all...)
}

// Named sets the pipeline name (used by observers) and returns p.
func (p *Pipeline) Named(name string) *Pipeline {
	p.Name = name
	return p
}

// Observe sets the observer and returns p.
func (p *Pipeline) Observe(obs Observer) *Pipeline {
	p.Observer = obs
	return p
}

// Run executes the pipeline starting from an empty bag.
func (p *Pipeline) Run(ctx context.Context, resp *response.Response, opts Options) (Bag, error) {
	return p.Process(ctx, Bag{}, resp, opts)
}

// Process runs every handler in order on a copy of bag. It returns the final
// bag, or the failing handler's bag and its error unchanged. Hook errors are
// wrapped and only reported when no handler failed.
func (p *Pipeline) Process(ctx context.Context, bag Bag, resp *response.Response, opts Options) (Bag, error) {
	current := bag.Clone()
	if p.Observer == nil {
		return p.runHandlers(ctx, current, resp, opts, nil, Run{})
	}

	run := Run{Pipeline: p.Name}
	if parent, ok := RunFromContext(ctx); ok {
		run.ID = parent.ID
	} else {
		run.ID = uuid.NewString()
	}
	ctx = withRun(ctx, run)

	if err := p.Observer.BeforePipeline(ctx, run, current); err != nil {
		return current, fmt.Errorf("before pipeline: %w", err)
	}
	out, err := p.runHandlers(ctx, current, resp, opts, p.Observer, run)
	if postErr := p.Observer.AfterPipeline(ctx, run, out, err); postErr != nil {
		// Don't mask handler error
		if err == nil {
			err = fmt.Errorf("after pipeline: %w", postErr)
		}
	}
	return out, err
}

func (p *Pipeline) runHandlers(ctx context.Context, bag Bag, resp *response.Response, opts Options, obs Observer, run Run) (Bag, error) {
	current := bag
	for i, h := range p.Handlers {
		if obs != nil {
			if err := obs.BeforeHandler(ctx, run, i, current); err != nil {
				return current, fmt.Errorf("before handler %d: %w", i, err)
			}
		}
		start := time.Now()
		next, err := h.Process(ctx, current, resp, opts)
		if err == nil && next == nil {
			next = Bag{}
		}
		if obs != nil {
			if postErr := obs.AfterHandler(ctx, run, i, next, err, time.Since(start)); postErr != nil && err == nil {
				return next, fmt.Errorf("after handler %d: %w", i, postErr)
			}
		}
		if err != nil {
			return next, err
		}
		current = next
	}
	return current, nil
}
