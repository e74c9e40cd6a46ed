package workflow

import "fmt"

// ValidationError describes a malformed step configuration or envelope.
// It is raised before any mutation happened.
type ValidationError struct {
	msg string
}

func NewValidationError(format string, a ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, a...)}
}

func (e *ValidationError) Error() string {
	return e.msg
}
