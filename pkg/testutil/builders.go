// Package testutil provides test data builders and stub collaborators.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowsmith/flowsmith/pkg/eventbus"
	"github.com/flowsmith/flowsmith/pkg/llm"
	"github.com/flowsmith/flowsmith/pkg/models"
)

// CreateTestTrigger creates a webhook trigger with defaults that can be
// overridden.
func CreateTestTrigger(overrides ...func(*models.WorkflowTrigger)) *models.WorkflowTrigger {
	trigger := &models.WorkflowTrigger{
		ID:             uuid.New().String(),
		OrganizationID: "org-test",
		WorkflowID:     uuid.New().String(),
		Name:           "Test Trigger",
		Type:           models.TriggerTypeWebhook,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	for _, override := range overrides {
		override(trigger)
	}

	return trigger
}

// WithTriggerType sets the trigger type.
func WithTriggerType(triggerType models.TriggerType) func(*models.WorkflowTrigger) {
	return func(t *models.WorkflowTrigger) {
		t.Type = triggerType
	}
}

// WithPayloadSchema attaches a payload schema.
func WithPayloadSchema(schema map[string]any) func(*models.WorkflowTrigger) {
	return func(t *models.WorkflowTrigger) {
		t.PayloadSchema = schema
	}
}

// WithInactive marks the trigger inactive.
func WithInactive() func(*models.WorkflowTrigger) {
	return func(t *models.WorkflowTrigger) {
		t.Active = false
	}
}

// CreateTestContext creates an AgentContext with defaults.
func CreateTestContext(overrides ...func(*models.AgentContext)) models.AgentContext {
	actx := models.AgentContext{
		OrganizationID: "org-test",
		UserID:         "user-test",
		SessionID:      uuid.New().String(),
		ApprovalMode:   models.CostModeAuto,
	}

	for _, override := range overrides {
		override(&actx)
	}

	return actx
}

// CapturePublisher records published events for assertions.
type CapturePublisher struct {
	mu     sync.Mutex
	Events []eventbus.Event
}

func (p *CapturePublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Events = append(p.Events, event)

	return nil
}

// Published returns a snapshot of the captured events.
func (p *CapturePublisher) Published() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]eventbus.Event, len(p.Events))
	copy(out, p.Events)

	return out
}

// StubLLM returns canned results in sequence, then repeats the last one.
type StubLLM struct {
	mu      sync.Mutex
	Results []llm.GenerateResult
	Err     error
	Calls   []llm.GenerateRequest
}

func (s *StubLLM) Generate(_ context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Calls = append(s.Calls, req)

	if s.Err != nil {
		return nil, s.Err
	}
	if len(s.Results) == 0 {
		return &llm.GenerateResult{Text: "ok"}, nil
	}

	result := s.Results[0]
	if len(s.Results) > 1 {
		s.Results = s.Results[1:]
	}

	return &result, nil
}
