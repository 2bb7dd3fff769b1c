// Package models defines the core domain models for agent orchestration and
// workflow execution coordination.
package models

import "time"

// AgentRole identifies a specialized agent.
type AgentRole string

const (
	RoleDesign        AgentRole = "design"
	RoleSecurity      AgentRole = "security"
	RoleIntegration   AgentRole = "integration"
	RoleQuality       AgentRole = "quality"
	RoleOrchestration AgentRole = "orchestration"
)

// CanonicalRoleOrder is the fixed reporting order for merged orchestration
// results. Merging is order-stable by role regardless of completion order.
var CanonicalRoleOrder = []AgentRole{
	RoleDesign,
	RoleSecurity,
	RoleIntegration,
	RoleQuality,
	RoleOrchestration,
}

// ConversationTurn is one prior turn of the chat history.
type ConversationTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`

	// HasArtifact marks assistant turns that carried a generated workflow,
	// used by intent classification to detect modification requests.
	HasArtifact bool `json:"has_artifact,omitempty"`
}

// AgentContext is the immutable per-request bundle handed to every agent
// invocation. It is created once per incoming request and only copied with
// overrides, never mutated.
type AgentContext struct {
	OrganizationID string             `json:"organization_id" validate:"required"`
	UserID         string             `json:"user_id"         validate:"required"`
	UserRole       string             `json:"user_role"`
	Permissions    []string           `json:"permissions,omitempty"`
	SessionID      string             `json:"session_id"      validate:"required"`
	History        []ConversationTurn `json:"history,omitempty"`
	ApprovalMode   CostMode           `json:"approval_mode,omitempty"`
	MaxCost        float64            `json:"max_cost,omitempty"`
	WorkflowID     string             `json:"workflow_id,omitempty"`
}

// WithWorkflowID returns a copy of the context bound to a workflow.
func (c AgentContext) WithWorkflowID(workflowID string) AgentContext {
	c.WorkflowID = workflowID

	return c
}

// WithHistory returns a copy of the context carrying conversation history.
func (c AgentContext) WithHistory(history []ConversationTurn) AgentContext {
	c.History = history

	return c
}

// AgentResult is the outcome of one tool execution. Immutable once returned.
type AgentResult struct {
	Success     bool           `json:"success"`
	Data        map[string]any `json:"data,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Error       string         `json:"error,omitempty"`
	DurationMs  int64          `json:"duration_ms"`
	Confidence  float64        `json:"confidence,omitempty"`
}

// AgentResponse tags an AgentResult with the role that produced it.
type AgentResponse struct {
	Role AgentRole `json:"role"`
	Tool string    `json:"tool,omitempty"`

	AgentResult
}

// FailedResult builds an AgentResult for a tool failure. Tool errors are
// always converted at the invocation boundary, never propagated.
func FailedResult(err error, elapsed time.Duration) *AgentResult {
	return &AgentResult{
		Success:    false,
		Error:      err.Error(),
		DurationMs: elapsed.Milliseconds(),
	}
}
