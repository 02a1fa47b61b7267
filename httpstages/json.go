package httpstages

import (
	"context"
	"fmt"

	"github.com/dcshock/respipe/pipeline"
	"github.com/dcshock/respipe/response"
)

// Read returns a handler that stores the raw body.
func Read() pipeline.Handler {
	return pipeline.HandlerFunc(func(ctx context.Context, bag pipeline.Bag, resp *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		body, err := resp.Read(ctx)
		if err != nil {
			return bag, err
		}
		bag[KeyRead] = body
		return bag, nil
	})
}

// Text returns a handler that stores the decoded body text. Decoding options
// come from the "text" options sub-key (response.TextOptions or an equivalent
// map such as {"encoding": "latin1"}).
func Text() pipeline.Handler {
	return pipeline.HandlerFunc(func(ctx context.Context, bag pipeline.Bag, resp *response.Response, opts pipeline.Options) (pipeline.Bag, error) {
		var to response.TextOptions
		if err := opts.Decode(KeyText, &to); err != nil {
			return bag, err
		}
		text, err := resp.Text(ctx, to)
		if err != nil {
			return bag, err
		}
		bag[KeyText] = text
		return bag, nil
	})
}

// JSON returns a handler that stores the decoded JSON body. Options come from
// the "json" sub-key (response.JSONOptions or an equivalent map such as
// {"content_type": "text/plain"}).
func JSON() pipeline.Handler {
	return pipeline.HandlerFunc(func(ctx context.Context, bag pipeline.Bag, resp *response.Response, opts pipeline.Options) (pipeline.Bag, error) {
		var jo response.JSONOptions
		if err := opts.Decode(KeyJSON, &jo); err != nil {
			return bag, err
		}
		v, err := resp.JSON(ctx, jo)
		if err != nil {
			return bag, err
		}
		bag[KeyJSON] = v
		return bag, nil
	})
}

// Close returns a handler that releases the response. Later body reads return
// what was already read; unread bodies become unavailable. Release by the
// executor after Close is a no-op.
func Close() pipeline.Handler {
	return pipeline.HandlerFunc(func(_ context.Context, bag pipeline.Bag, resp *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		if err := resp.Release(); err != nil {
			return bag, fmt.Errorf("close response: %w", err)
		}
		return bag, nil
	})
}
