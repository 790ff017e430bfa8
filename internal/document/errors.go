package document

import (
	"errors"
	"fmt"
)

// ErrInputShape is the sentinel wrapped by every InputShapeError.
var ErrInputShape = errors.New("invalid input shape")

// InputShapeError reports a caller contract violation in the lines or outline.
// It is fatal to a locate run.
type InputShapeError struct {
	Field  string
	Reason string
	Err    error
}

func (e *InputShapeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", ErrInputShape.Error(), msg)
}

// Is reports ErrInputShape so callers can use errors.Is.
func (e *InputShapeError) Is(target error) bool {
	return target == ErrInputShape
}

func (e *InputShapeError) Unwrap() error {
	return e.Err
}

func shapeErr(field, reason string) error {
	return &InputShapeError{Field: field, Reason: reason}
}
