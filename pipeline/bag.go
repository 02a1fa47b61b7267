package pipeline

import "maps"

// Bag is the result map that handlers read and augment.
type Bag map[string]any

// Clone returns a shallow copy. Cloning a nil bag yields an empty one.
func (b Bag) Clone() Bag {
	out := make(Bag, len(b))
	maps.Copy(out, b)
	return out
}

// Value returns b[key] as T. ok is false when the key is missing or holds a
// different type.
func Value[T any](b Bag, key string) (T, bool) {
	v, ok := b[key].(T)
	return v, ok
}
