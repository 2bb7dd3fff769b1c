package models

import "time"

// ExecutionStatus is the lifecycle state of a running workflow instance.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusPaused    ExecutionStatus = "paused"
)

// IsTerminal reports whether the status admits no further transitions.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// StepStatus is the lifecycle state of one step instance.
type StepStatus string

const (
	StepStatusPending    StepStatus = "pending"
	StepStatusInProgress StepStatus = "in_progress"
	StepStatusCompleted  StepStatus = "completed"
	StepStatusFailed     StepStatus = "failed"
	StepStatusSkipped    StepStatus = "skipped"
)

// IsTerminal reports whether the step status is final. Terminal step records
// are append-only audit data and must never be overwritten.
func (s StepStatus) IsTerminal() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// InitiatorContext describes who or what started an execution, plus arbitrary
// trigger data and file attachments.
type InitiatorContext struct {
	UserID         string         `json:"user_id,omitempty"`
	TriggerID      string         `json:"trigger_id,omitempty"`
	TriggerType    TriggerType    `json:"trigger_type,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Attachments    []string       `json:"attachments,omitempty"`
	OrganizationID string         `json:"organization_id"`
}

// WorkflowExecution is one running instance of a workflow definition. Status
// transitions are monotonic except paused <-> running; once terminal the
// record is immutable.
type WorkflowExecution struct {
	ID              string            `json:"id"`
	WorkflowID      string            `json:"workflow_id"`
	WorkflowVersion int               `json:"workflow_version"`
	OrganizationID  string            `json:"organization_id"`
	Status          ExecutionStatus   `json:"status"`
	CurrentStepIDs  []string          `json:"current_step_ids,omitempty"`
	Context         InitiatorContext  `json:"context"`
	Steps           []*StepExecution  `json:"steps,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	SLADeadline     *time.Time        `json:"sla_deadline,omitempty"`
	PausedAt        *time.Time        `json:"paused_at,omitempty"`
}

// StepFor returns the step execution for the given step id, if present.
func (e *WorkflowExecution) StepFor(stepID string) (*StepExecution, bool) {
	for _, s := range e.Steps {
		if s.StepID == stepID {
			return s, true
		}
	}

	return nil, false
}

// ToolExecutionRecord captures an external tool invocation made by a step.
type ToolExecutionRecord struct {
	Tool       string         `json:"tool"`
	Input      map[string]any `json:"input,omitempty"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// StepExecution is one step instance within a workflow execution. Mutated
// only by the execution engine; never deleted, only appended to the audit
// trail.
type StepExecution struct {
	ID            string               `json:"id"`
	StepID        string               `json:"step_id"`
	Name          string               `json:"name"`
	Status        StepStatus           `json:"status"`
	Actor         string               `json:"actor,omitempty"`
	Input         map[string]any       `json:"input,omitempty"`
	Output        map[string]any       `json:"output,omitempty"`
	ToolExecution *ToolExecutionRecord `json:"tool_execution,omitempty"`
	StartedAt     *time.Time           `json:"started_at,omitempty"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
}

// Duration returns the elapsed time of a finished step, zero otherwise.
func (s *StepExecution) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}

	return s.CompletedAt.Sub(*s.StartedAt)
}

// SLAStatus grades an execution against its SLA deadline.
type SLAStatus string

const (
	SLAWithin      SLAStatus = "within"
	SLAApproaching SLAStatus = "approaching"
	SLABreached    SLAStatus = "breached"
)

// ExecutionMetrics is derived on demand from an execution's step records; it
// is never stored.
type ExecutionMetrics struct {
	ExecutionID         string                 `json:"execution_id"`
	ProgressPercent     float64                `json:"progress_percent"`
	StatusCounts        map[StepStatus]int     `json:"status_counts"`
	TotalDuration       time.Duration          `json:"total_duration"`
	AvgStepDuration     time.Duration          `json:"avg_step_duration"`
	SLAStatus           SLAStatus              `json:"sla_status"`
	EstimatedCompletion *time.Time             `json:"estimated_completion,omitempty"`
}
