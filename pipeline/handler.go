package pipeline

import (
	"context"

	"github.com/dcshock/respipe/response"
)

// Handler is one step in a pipeline. It gets the bag produced so far and
// returns the bag for the next step. On error the pipeline stops and returns
// the bag and error unchanged. Handlers keep no state between calls.
type Handler interface {
	Process(ctx context.Context, bag Bag, resp *response.Response, opts Options) (Bag, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, bag Bag, resp *response.Response, opts Options) (Bag, error)

func (f HandlerFunc) Process(ctx context.Context, bag Bag, resp *response.Response, opts Options) (Bag, error) {
	return f(ctx, bag, resp, opts)
}
