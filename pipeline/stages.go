// Package pipeline: generic handlers for common bag manipulations.

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dcshock/respipe/response"
)

// ConvertFunc converts a value of type A to type B. Used by Transform.
type ConvertFunc[A, B any] func(ctx context.Context, a A) (B, error)

// Noop returns a handler that passes the bag through unchanged.
// Useful as a placeholder or an observer boundary.
func Noop() Handler {
	return HandlerFunc(func(_ context.Context, bag Bag, _ *response.Response, _ Options) (Bag, error) {
		return bag, nil
	})
}

// Tap returns a handler that calls fn(ctx, bag) then passes the bag through.
// Use for logging or side effects; fn must not modify the bag.
func Tap(fn func(context.Context, Bag)) Handler {
	return HandlerFunc(func(ctx context.Context, bag Bag, _ *response.Response, _ Options) (Bag, error) {
		fn(ctx, bag)
		return bag, nil
	})
}

// Set returns a handler that stores value under key.
func Set(key string, value any) Handler {
	return HandlerFunc(func(_ context.Context, bag Bag, _ *response.Response, _ Options) (Bag, error) {
		bag[key] = value
		return bag, nil
	})
}

// Transform returns a handler that converts bag[from] (type A) and stores the
// result under to. A missing or mistyped value is an error.
func Transform[A, B any](from, to string, convert ConvertFunc[A, B]) Handler {
	return HandlerFunc(func(ctx context.Context, bag Bag, _ *response.Response, _ Options) (Bag, error) {
		a, ok := bag[from].(A)
		if !ok {
			var zero A
			return bag, fmt.Errorf("transform %q: expected %T, got %T", from, zero, bag[from])
		}
		b, err := convert(ctx, a)
		if err != nil {
			return bag, fmt.Errorf("transform %q: %w", from, err)
		}
		bag[to] = b
		return bag, nil
	})
}

// Validate returns a handler that passes the bag through only if
// predicate(bag[key]) is true. Otherwise it returns a *RejectedError carrying
// reason. The value must be of type T; a type mismatch is a plain error.
func Validate[T any](key string, predicate func(T) bool, reason string) Handler {
	if predicate == nil {
		panic("pipeline: Validate requires a non-nil predicate")
	}
	return HandlerFunc(func(_ context.Context, bag Bag, _ *response.Response, _ Options) (Bag, error) {
		v, ok := bag[key].(T)
		if !ok {
			var zero T
			return bag, fmt.Errorf("validate %q: expected %T, got %T", key, zero, bag[key])
		}
		if !predicate(v) {
			return bag, &RejectedError{Key: key, Value: v, Reason: reason}
		}
		return bag, nil
	})
}

// WithTimeout wraps inner so it runs with a context deadline of now+timeout.
func WithTimeout(inner Handler, timeout time.Duration) Handler {
	return HandlerFunc(func(ctx context.Context, bag Bag, resp *response.Response, opts Options) (Bag, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return inner.Process(ctx, bag, resp, opts)
	})
}
