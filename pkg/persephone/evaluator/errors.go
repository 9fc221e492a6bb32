package evaluator

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData is returned when the training partition is empty.
	ErrInsufficientData = errors.New("no observations before cutoff")

	// ErrEmptyValidation is returned when the validation partition is empty.
	ErrEmptyValidation = errors.New("no observations at or after cutoff")

	// ErrGateFailed is returned when a result does not satisfy an
	// acceptance gate.
	ErrGateFailed = errors.New("acceptance gate failed")

	// ErrInvalidGate is returned when a gate expression does not compile to
	// a boolean.
	ErrInvalidGate = errors.New("invalid gate")
)

// Backend operations reported in BackendError.
const (
	OpFit     = "fit"
	OpPredict = "predict"
)

// BackendError wraps a failure raised by, or detected in the output of, a
// forecasting backend.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}
