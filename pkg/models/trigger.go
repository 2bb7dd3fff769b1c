package models

import "time"

// TriggerType enumerates the supported automation trigger kinds.
type TriggerType string

const (
	TriggerTypeManual        TriggerType = "manual"
	TriggerTypeScheduled     TriggerType = "scheduled"
	TriggerTypeEmailReceived TriggerType = "email_received"
	TriggerTypeFileAdded     TriggerType = "file_added"
	TriggerTypeRecordCreated TriggerType = "record_created"
	TriggerTypeRecordUpdated TriggerType = "record_updated"
	TriggerTypeWebhook       TriggerType = "webhook"
	TriggerTypeConditionMet  TriggerType = "condition_met"
)

// TriggerCategory groups trigger types by how they are initiated.
type TriggerCategory string

const (
	CategoryUserInitiated TriggerCategory = "user_initiated"
	CategoryTimeBased     TriggerCategory = "time_based"
	CategoryEventBased    TriggerCategory = "event_based"
	CategorySystemBased   TriggerCategory = "system_based"
)

// WeightedKeyword is one scoring keyword of a trigger template.
type WeightedKeyword struct {
	Text   string  `json:"text"   validate:"required"`
	Weight float64 `json:"weight" validate:"gt=0"`
}

// SetupQuestion is a configuration question asked when a trigger template is
// selected. Questions whose DependsOn field cannot be inferred from the
// description are deferred, not asked.
type SetupQuestion struct {
	Text      string `json:"text"  validate:"required"`
	Field     string `json:"field" validate:"required"`
	DependsOn string `json:"depends_on,omitempty"`
}

// TriggerTemplate is immutable catalogue data describing one configurable
// trigger kind. Created by admin action, read by the trigger mapper.
type TriggerTemplate struct {
	ID             string            `json:"id"          validate:"required"`
	Name           string            `json:"name"        validate:"required,min=3"`
	Description    string            `json:"description" validate:"required"`
	Type           TriggerType       `json:"type"        validate:"required"`
	Category       TriggerCategory   `json:"category"    validate:"required"`
	Keywords       []WeightedKeyword `json:"keywords,omitempty"`
	ConfigSchema   map[string]any    `json:"config_schema,omitempty"`
	SetupQuestions []SetupQuestion   `json:"setup_questions,omitempty"`
}

// WorkflowTrigger is a configured trigger bound to a workflow.
type WorkflowTrigger struct {
	ID             string         `json:"id"              validate:"required"`
	OrganizationID string         `json:"organization_id" validate:"required"`
	WorkflowID     string         `json:"workflow_id"     validate:"required"`
	Name           string         `json:"name"            validate:"required,min=3"`
	Type           TriggerType    `json:"type"            validate:"required"`
	Active         bool           `json:"active"`
	Configuration  map[string]any `json:"configuration,omitempty"`

	// PayloadSchema optionally constrains inbound webhook payloads.
	PayloadSchema map[string]any `json:"payload_schema,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TriggerCandidate is one ranked mapping of free text to a template.
type TriggerCandidate struct {
	Template        *TriggerTemplate `json:"template"`
	Confidence      float64          `json:"confidence"` // bounded accumulator, 0..MaxConfidence
	Reasons         []string         `json:"reasons,omitempty"`
	SuggestedConfig map[string]any   `json:"suggested_config,omitempty"`
}

// TriggerSuggestion is the full ranked output of the trigger mapper.
type TriggerSuggestion struct {
	Candidates []TriggerCandidate `json:"candidates"`

	// AutoSelected is set only when the top candidate clears the confidence
	// threshold and is not in a near-tie with the runner-up.
	AutoSelected *TriggerCandidate `json:"auto_selected,omitempty"`
}
