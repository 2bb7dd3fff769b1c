// Package events defines event types for trigger and execution lifecycle
// notifications.
package events

import (
	"time"

	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries all flowsmith lifecycle events.
const Topic = "flowsmith.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Trigger events.
	TriggerFiredEvent EventType = "trigger.fired"

	// Execution lifecycle events.
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"
	StepTransitionedEvent   EventType = "execution.step.transitioned"

	// Orchestration events.
	OrchestrationCompletedEvent EventType = "orchestration.completed"
)

type BaseEvent struct {
	ID             string         `json:"id"`
	Type           EventType      `json:"type"`
	Timestamp      time.Time      `json:"timestamp"`
	OrganizationID string         `json:"organization_id"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, organizationID string) BaseEvent {
	return BaseEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		Timestamp:      time.Now().UTC(),
		OrganizationID: organizationID,
		Metadata:       make(map[string]any),
	}
}

// TriggerFired is emitted when a configured trigger fires, by the webhook
// processor or the schedule source. The execution manager consumes it to
// start a workflow execution. Duplicate deliveries produce duplicate events;
// de-duplication is the persistence collaborator's concern, keyed by
// DeliveryID when the sender supplies one.
type TriggerFired struct {
	BaseEvent

	TriggerID   string             `json:"trigger_id"`
	WorkflowID  string             `json:"workflow_id"`
	TriggerType models.TriggerType `json:"trigger_type"`
	DeliveryID  string             `json:"delivery_id,omitempty"`
	TriggerData map[string]any     `json:"trigger_data,omitempty"`
}

func (e TriggerFired) GetType() EventType { return TriggerFiredEvent }

type ExecutionStarted struct {
	BaseEvent

	ExecutionID string             `json:"execution_id"`
	WorkflowID  string             `json:"workflow_id"`
	TriggerType models.TriggerType `json:"trigger_type"`
	Initiator   string             `json:"initiator,omitempty"`
}

func (e ExecutionStarted) GetType() EventType { return ExecutionStartedEvent }

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	WorkflowID    string `json:"workflow_id"`
	DurationMs    int64  `json:"duration_ms"`
	StepsExecuted int    `json:"steps_executed"`
}

func (e ExecutionCompleted) GetType() EventType { return ExecutionCompletedEvent }

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	WorkflowID  string `json:"workflow_id"`
	StepID      string `json:"step_id,omitempty"`
	Error       string `json:"error"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType { return ExecutionFailedEvent }

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	CancelledBy string `json:"cancelled_by,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType { return ExecutionCancelledEvent }

type ExecutionPaused struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionPaused) GetType() EventType { return ExecutionPausedEvent }

type ExecutionResumed struct {
	BaseEvent

	ExecutionID     string `json:"execution_id"`
	ResumedBy       string `json:"resumed_by,omitempty"`
	PauseDurationMs int64  `json:"pause_duration_ms"`
}

func (e ExecutionResumed) GetType() EventType { return ExecutionResumedEvent }

type StepTransitioned struct {
	BaseEvent

	ExecutionID string            `json:"execution_id"`
	StepID      string            `json:"step_id"`
	Status      models.StepStatus `json:"status"`
	Actor       string            `json:"actor,omitempty"`
	Output      map[string]any    `json:"output,omitempty"`
	DurationMs  int64             `json:"duration_ms,omitempty"`
}

func (e StepTransitioned) GetType() EventType { return StepTransitionedEvent }

// OrchestrationCompleted summarizes one orchestration round for analytics.
type OrchestrationCompleted struct {
	BaseEvent

	SessionID    string        `json:"session_id"`
	Intent       models.Intent `json:"intent"`
	Success      bool          `json:"success"`
	AgentsRun    int           `json:"agents_run"`
	DurationMs   int64         `json:"duration_ms"`
	TotalCost    float64       `json:"total_cost"`
	CostExceeded bool          `json:"cost_exceeded,omitempty"`
}

func (e OrchestrationCompleted) GetType() EventType { return OrchestrationCompletedEvent }
