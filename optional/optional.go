// Package optional implements a container which may or may not hold a value.
package optional

// Optional holds a value of type T alongside the knowledge whether it has
// been set at all.
type Optional[T any] struct {
	value    T
	hasValue bool
}

// Set stores a value into the optional.
func (o *Optional[T]) Set(value T) {
	o.value = value
	o.hasValue = true
}

// Get returns the stored value. When nothing has been set it returns the
// zero value for T.
func (o *Optional[T]) Get() T {
	return o.value
}

// HasValue returns true when a value has been stored with Set.
func (o *Optional[T]) HasValue() bool {
	return o.hasValue
}
