package datewatch

import "fmt"

// PanicError wraps a value recovered from a panicking callback or provider.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func panicError(v interface{}) error {
	return &PanicError{Value: v}
}

// Recovered converts a value returned by recover into an error, or nil.
func Recovered(v interface{}) error {
	if v == nil {
		return nil
	}
	return panicError(v)
}
