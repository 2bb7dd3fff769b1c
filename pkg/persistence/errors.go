// Package persistence provides the storage abstraction for trigger templates,
// workflow triggers and execution records.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTemplateNotFound indicates a trigger template was not found.
	ErrTemplateNotFound = errors.New("trigger template not found")

	// ErrTriggerNotFound indicates a workflow trigger was not found.
	ErrTriggerNotFound = errors.New("workflow trigger not found")

	// ErrExecutionNotFound indicates a workflow execution was not found.
	ErrExecutionNotFound = errors.New("workflow execution not found")

	// ErrStepNotFound indicates a step execution was not found.
	ErrStepNotFound = errors.New("step execution not found")

	// ErrTriggerAlreadyExists indicates a trigger with the same id exists.
	ErrTriggerAlreadyExists = errors.New("workflow trigger already exists")
)

// ExecutionError wraps execution-related errors with operation context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "GetByID", "Save")
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution error with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// TriggerError wraps trigger-related errors with operation context.
type TriggerError struct {
	Op             string
	OrganizationID string
	TriggerID      string
	Err            error
}

func (e *TriggerError) Error() string {
	return fmt.Sprintf("%s operation failed for trigger %s in org %s: %v", e.Op, e.TriggerID, e.OrganizationID, e.Err)
}

func (e *TriggerError) Unwrap() error {
	return e.Err
}

func (e *TriggerError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsTemplateNotFound checks if an error indicates a missing trigger template.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsTriggerNotFound checks if an error indicates a missing workflow trigger.
func IsTriggerNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound)
}

// IsExecutionNotFound checks if an error indicates a missing execution.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
