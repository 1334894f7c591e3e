package issues

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrWorkflowViolation = errors.New("workflow violation")
)

// WorkflowViolationMessage is the user-facing text for the only restricted transition.
const WorkflowViolationMessage = "Please move the issue to 'In Progress' before marking it Done."

type WorkflowViolation struct {
	From Status
	To   Status
}

func (v *WorkflowViolation) Error() string {
	return WorkflowViolationMessage
}

func (v *WorkflowViolation) Is(target error) bool {
	return target == ErrWorkflowViolation
}

// StoreError wraps a transport or IO failure reported by the Store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// storeErr passes not-found through untouched and wraps everything else.
func storeErr(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
