package execution

import (
	"errors"
	"fmt"

	"github.com/flowsmith/flowsmith/pkg/models"
)

var (
	ErrExecutionTerminal  = errors.New("execution is in a terminal state")
	ErrExecutionNotPaused = errors.New("execution is not paused")
)

// StaleTransitionError is returned when a step that already reached a
// terminal status receives another transition. The existing audit record is
// left untouched.
type StaleTransitionError struct {
	ExecutionID string
	StepID      string
	Current     models.StepStatus
	Attempted   models.StepStatus
}

func (e *StaleTransitionError) Error() string {
	return fmt.Sprintf("step %s of execution %s is already %s, cannot transition to %s",
		e.StepID, e.ExecutionID, e.Current, e.Attempted)
}

// IsStaleTransition reports whether err is a StaleTransitionError.
func IsStaleTransition(err error) bool {
	var target *StaleTransitionError

	return errors.As(err, &target)
}

// InvalidTransitionError is returned for execution or step transitions the
// state machine does not admit.
type InvalidTransitionError struct {
	ExecutionID string
	StepID      string
	From        string
	To          string
}

func (e *InvalidTransitionError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("invalid step transition %s -> %s for step %s of execution %s",
			e.From, e.To, e.StepID, e.ExecutionID)
	}

	return fmt.Sprintf("invalid execution transition %s -> %s for execution %s",
		e.From, e.To, e.ExecutionID)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError

	return errors.As(err, &target)
}
