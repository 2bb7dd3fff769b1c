package models

// IssueSeverity grades a validation finding. Only failed-severity issues flip
// the overall orchestration success flag.
type IssueSeverity string

const (
	SeverityInfo    IssueSeverity = "info"
	SeverityWarning IssueSeverity = "warning"
	SeverityFailed  IssueSeverity = "failed"
)

// ValidationIssue is a single finding reported by an agent, tagged with the
// originating role.
type ValidationIssue struct {
	Role     AgentRole     `json:"role"`
	Severity IssueSeverity `json:"severity"`
	Message  string        `json:"message"`
	Section  string        `json:"section,omitempty"`
}

// Intent classifies what the user is asking for in a message.
type Intent string

const (
	IntentNewWorkflow  Intent = "new_workflow"
	IntentModification Intent = "modification"
	IntentValidation   Intent = "validation"
)

// OrchestrationResult aggregates one orchestration round. It is constructed
// progressively as agents complete and finalized once all required agents
// finish or a hard failure occurs.
type OrchestrationResult struct {
	Success      bool              `json:"success"`
	Intent       Intent            `json:"intent"`
	Responses    []AgentResponse   `json:"responses"`
	Issues       []ValidationIssue `json:"issues,omitempty"`
	Suggestions  []string          `json:"suggestions,omitempty"`
	WorkflowCode string            `json:"workflow_code,omitempty"`
	Errors       []string          `json:"errors,omitempty"`
	DurationMs   int64             `json:"duration_ms"`
	TotalCost    float64           `json:"total_cost"`
	CostExceeded bool              `json:"cost_exceeded,omitempty"`
	Truncated    bool              `json:"truncated,omitempty"`
}

// ResponseFor returns the response produced by the given role, if any.
func (r *OrchestrationResult) ResponseFor(role AgentRole) (*AgentResponse, bool) {
	for i := range r.Responses {
		if r.Responses[i].Role == role {
			return &r.Responses[i], true
		}
	}

	return nil, false
}

// RealtimeValidation is the result of a single targeted validation pass.
type RealtimeValidation struct {
	IsValid     bool              `json:"is_valid"`
	Issues      []ValidationIssue `json:"issues,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
}

// SecurityScanReport is the structured outcome of a code security scan.
type SecurityScanReport struct {
	Score            int      `json:"score"` // 0-100, higher is safer
	Vulnerabilities  []string `json:"vulnerabilities,omitempty"`
	ComplianceIssues []string `json:"compliance_issues,omitempty"`
	Secrets          []string `json:"secrets,omitempty"`
	Recommendations  []string `json:"recommendations,omitempty"`
}
