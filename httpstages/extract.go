package httpstages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmespath/go-jmespath"

	"github.com/dcshock/respipe/pipeline"
	"github.com/dcshock/respipe/response"
)

// Extract returns a handler that evaluates a JMESPath expression against the
// decoded JSON body (bag["json"]) and stores the result under key. It panics
// if expression does not compile; use CompileExtract for expressions that come
// from user input.
func Extract(key, expression string) pipeline.Handler {
	return ExtractFrom(KeyJSON, key, expression)
}

// ExtractFrom is like Extract but reads bag[source] instead of bag["json"].
func ExtractFrom(source, key, expression string) pipeline.Handler {
	h, err := compileExtract(source, key, expression)
	if err != nil {
		panic(fmt.Sprintf("httpstages.Extract: %v", err))
	}
	return h
}

// CompileExtract is like Extract but returns an error for a bad expression.
func CompileExtract(key, expression string) (pipeline.Handler, error) {
	return compileExtract(KeyJSON, key, expression)
}

// CompileExtractFrom is like ExtractFrom but returns an error for a bad
// expression.
func CompileExtractFrom(source, key, expression string) (pipeline.Handler, error) {
	return compileExtract(source, key, expression)
}

func compileExtract(source, key, expression string) (pipeline.Handler, error) {
	jp, err := jmespath.Compile(expression)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, err)
	}
	return pipeline.HandlerFunc(func(_ context.Context, bag pipeline.Bag, _ *response.Response, _ pipeline.Options) (pipeline.Bag, error) {
		data, ok := bag[source]
		if !ok {
			return bag, fmt.Errorf("extract %q: bag has no %q value", key, source)
		}
		v, err := jp.Search(data)
		if err != nil {
			return bag, fmt.Errorf("extract %q: %w", key, err)
		}
		bag[key] = v
		return bag, nil
	}), nil
}

// searchable converts the bag into plain JSON values (maps, slices, float64)
// so JMESPath can traverse header maps and compare numeric fields.
func searchable(bag pipeline.Bag) (any, error) {
	raw, err := json.Marshal(map[string]any(bag))
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// truthy follows JMESPath truth rules: false, null and empty strings, arrays
// and objects are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
