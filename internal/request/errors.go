package request

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("request not found")
	// ErrVersionConflict is returned by stores when an update lost a
	// race against a concurrent writer. The service retries on it.
	ErrVersionConflict = errors.New("request was modified concurrently")
	ErrReviewNotFound  = errors.New("review not found")
)

// StateError reports an operation that is illegal in the request's current
// state. It is rejected at the api boundary, never silently ignored.
type StateError struct {
	Number int64
	State  State
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("request %d: %s is not allowed in state %q", e.Number, e.Op, e.State)
}

func newStateError(r *ChangeRequest, op string) *StateError {
	return &StateError{Number: r.Number, State: r.State, Op: op}
}
