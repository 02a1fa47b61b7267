package pipeline

import (
	"fmt"
	"maps"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
)

// Options is the pass-through option map given unchanged to every handler in a
// run. Treat it as read-only; use With to derive a modified copy.
type Options map[string]any

// With returns a copy of o with key set to v.
func (o Options) With(key string, v any) Options {
	out := make(Options, len(o)+1)
	maps.Copy(out, o)
	out[key] = v
	return out
}

// Sub returns the nested option map stored under key, or nil when the key is
// missing or not a map.
func (o Options) Sub(key string) Options {
	switch v := o[key].(type) {
	case Options:
		return v
	case map[string]any:
		return Options(v)
	default:
		return nil
	}
}

// Decode fills out (a pointer) from the value stored under key. The value may
// already be of out's element type, or a map decoded by mapstructure tags with
// weak typing ("true" for bools, "10" for ints). A missing key leaves out
// untouched.
func (o Options) Decode(key string, out any) error {
	v, ok := o[key]
	if !ok || v == nil {
		return nil
	}
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("options %q: decode target must be a non-nil pointer, got %T", key, out)
	}
	if val := reflect.ValueOf(v); val.Type().AssignableTo(rv.Elem().Type()) {
		rv.Elem().Set(val)
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return fmt.Errorf("options %q: %w", key, err)
	}
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("options %q: %w", key, err)
	}
	return nil
}
