package models

import "time"

// ApprovalStatus is the lifecycle of a pending approval record.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
)

// ApprovalRequest is a pending human approval for a generated workflow step.
// Records expire after a configured window; expiry is explicit, not a silent
// drop, so callers polling for a decision see the expired state.
type ApprovalRequest struct {
	SessionID   string         `json:"session_id"`
	StepID      string         `json:"step_id"`
	Step        map[string]any `json:"step,omitempty"`
	Status      ApprovalStatus `json:"status"`
	RequestedAt time.Time      `json:"requested_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	Approved    *bool          `json:"approved,omitempty"`
}
