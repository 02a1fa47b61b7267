package httpstages

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/jmespath/go-jmespath"

	"github.com/dcshock/respipe/pipeline"
	"github.com/dcshock/respipe/response"
)

// Expect returns a handler that runs the predicate on bag[key] (nil when the
// key is missing). If the predicate returns an error the handler returns a
// *pipeline.RejectedError wrapping it, together with the bag built so far.
func Expect(key string, predicate func(v any) error) pipeline.Handler {
	if predicate == nil {
		panic("httpstages.Expect: predicate must not be nil")
	}
	return pipeline.HandlerFunc(func(_ context.Context, bag pipeline.Bag, _ *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		v := bag[key]
		if err := predicate(v); err != nil {
			return bag, &pipeline.RejectedError{Key: key, Value: v, Err: err}
		}
		return bag, nil
	})
}

// ExpectEqual returns a handler that checks bag[key] equals expected using reflect.DeepEqual.
// Works for primitives, slices, and maps (e.g. parsed JSON).
func ExpectEqual(key string, expected any) pipeline.Handler {
	return Expect(key, func(v any) error {
		if !reflect.DeepEqual(v, expected) {
			return fmt.Errorf("got %v, want %v", v, expected)
		}
		return nil
	})
}

// ExpectStatus returns a handler that rejects responses whose status code is
// not one of codes.
func ExpectStatus(codes ...int) pipeline.Handler {
	return pipeline.HandlerFunc(func(_ context.Context, bag pipeline.Bag, resp *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		if code := resp.StatusCode(); !slices.Contains(codes, code) {
			return bag, &pipeline.RejectedError{
				Key:    KeyStatus,
				Value:  code,
				Reason: fmt.Sprintf("status not in %v", codes),
			}
		}
		return bag, nil
	})
}

// ExpectOK returns a handler that rejects responses with a status of 400 or above.
// The core never fails on status alone; add this when a pipeline should.
func ExpectOK() pipeline.Handler {
	return pipeline.HandlerFunc(func(_ context.Context, bag pipeline.Bag, resp *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		if !resp.OK() {
			return bag, &pipeline.RejectedError{Key: KeyStatus, Value: resp.StatusCode(), Reason: "status is not ok"}
		}
		return bag, nil
	})
}

// ExpectExpression returns a handler that evaluates a JMESPath expression
// against the whole bag (as plain JSON values) and rejects the response when
// the result is falsy. It panics if expression does not compile.
//
//	ExpectExpression("status == `200` && json.state == 'ready'", "not ready")
func ExpectExpression(expression, reason string) pipeline.Handler {
	h, err := CompileExpectExpression(expression, reason)
	if err != nil {
		panic(fmt.Sprintf("httpstages.ExpectExpression: %v", err))
	}
	return h
}

// CompileExpectExpression is like ExpectExpression but returns an error for a
// bad expression.
func CompileExpectExpression(expression, reason string) (pipeline.Handler, error) {
	jp, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	if reason == "" {
		reason = "expression " + expression + " is false"
	}
	return pipeline.HandlerFunc(func(_ context.Context, bag pipeline.Bag, _ *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		data, err := searchable(bag)
		if err != nil {
			return bag, fmt.Errorf("expect %q: %w", expression, err)
		}
		v, err := jp.Search(data)
		if err != nil {
			return bag, fmt.Errorf("expect %q: %w", expression, err)
		}
		if !truthy(v) {
			return bag, &pipeline.RejectedError{Key: expression, Value: v, Reason: reason}
		}
		return bag, nil
	}), nil
}
