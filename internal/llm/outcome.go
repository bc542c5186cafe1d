package llm

// Outcome is the result of an external model call together with the value
// to use when the call failed. Value never needs an error check; callers that
// care about the failure inspect Err or Fallback.
type Outcome[T any] struct {
	value    T
	fallback T
	err      error
}

// OutcomeOf wraps the (value, error) pair returned by a call.
func OutcomeOf[T any](value T, err error) Outcome[T] {
	return Outcome[T]{value: value, err: err}
}

// Or sets the value returned when the call failed.
func (o Outcome[T]) Or(fallback T) Outcome[T] {
	o.fallback = fallback
	return o
}

// Value returns the call's value, or the fallback if it failed.
func (o Outcome[T]) Value() T {
	if o.err != nil {
		return o.fallback
	}
	return o.value
}

// Err returns the call's error.
func (o Outcome[T]) Err() error {
	return o.err
}

// Fallback reports whether Value is the fallback.
func (o Outcome[T]) Fallback() bool {
	return o.err != nil
}
