package web

import "github.com/flowsmith/flowsmith/pkg/models"

// ApprovalActionRequest is the multiplexed approval endpoint body.
type ApprovalActionRequest struct {
	Action    string         `json:"action"    validate:"required,oneof=submit_approval respond_approval check_approval get_pending"`
	SessionID string         `json:"sessionId" validate:"required"`
	StepID    string         `json:"stepId"`
	Approved  *bool          `json:"approved,omitempty"`
	Step      map[string]any `json:"step,omitempty"`
}

// DiagnosticRequest invokes one agent tool or orchestration path directly.
type DiagnosticRequest struct {
	TestType string         `json:"testType" validate:"required"`
	Payload  map[string]any `json:"payload,omitempty"`
}

// OrchestrateRequest is one chat message plus its session context.
type OrchestrateRequest struct {
	Message string              `json:"message" validate:"required"`
	Context models.AgentContext `json:"context" validate:"required"`
}

// SuggestTriggersRequest maps free text to trigger candidates.
type SuggestTriggersRequest struct {
	Description string `json:"description" validate:"required"`
}

// CancelExecutionRequest optionally carries a cancellation reason.
type CancelExecutionRequest struct {
	Reason string `json:"reason,omitempty"`
}
