package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowsmith/flowsmith/pkg/llm"
	"github.com/flowsmith/flowsmith/pkg/models"
)

// workflowStages are the four stages every generated mini-application
// carries, in order.
var workflowStages = []string{"capture", "review", "approval", "update"}

const designSystemPrompt = "You are a workflow designer. Produce a complete mini-application " +
	"definition (forms, approval steps, integration code) with a four-stage workflow: " +
	"Capture, Review, Approval, Update. Respond with the generated artifact only."

// TriggerSuggester maps free-text descriptions to trigger template
// candidates. The design agent consults it so generated workflows always
// carry at least one configured trigger.
type TriggerSuggester interface {
	SuggestTriggers(description string) *models.TriggerSuggestion
}

// DesignAgent generates and patches workflow artifacts.
type DesignAgent struct {
	baseAgent

	client    llm.Client
	suggester TriggerSuggester
}

func NewDesignAgent(logger *slog.Logger, client llm.Client, suggester TriggerSuggester) *DesignAgent {
	a := &DesignAgent{
		baseAgent: newBaseAgent(models.RoleDesign, logger),
		client:    client,
		suggester: suggester,
	}

	a.register("generate_workflow", a.generateWorkflow)
	a.register("patch_workflow", a.patchWorkflow)
	a.register("check_design", a.checkDesign)

	return a
}

func (a *DesignAgent) generateWorkflow(ctx context.Context, params map[string]any, actx models.AgentContext) (*models.AgentResult, error) {
	description, _ := params["description"].(string)
	if description == "" {
		return nil, errors.New("description is required")
	}

	result, err := llm.Complete(ctx, a.client, llm.GenerateRequest{
		System:   designSystemPrompt,
		Messages: []llm.Message{{Role: "user", Content: description}},
	}, llm.DefaultMaxContinuations)
	if err != nil {
		return nil, err
	}

	data := map[string]any{
		"workflow_code": result.Text,
		"truncated":     result.Truncated,
	}

	suggestions := make([]string, 0, 2)

	if a.suggester != nil {
		suggestion := a.suggester.SuggestTriggers(description)
		if suggestion.AutoSelected != nil {
			data["suggested_trigger"] = suggestion.AutoSelected
			suggestions = append(suggestions,
				fmt.Sprintf("Configure a %s trigger: %s",
					suggestion.AutoSelected.Template.Type, suggestion.AutoSelected.Template.Name))
		}
	}

	return &models.AgentResult{
		Success:     true,
		Data:        data,
		Suggestions: suggestions,
		Confidence:  0.9,
	}, nil
}

func (a *DesignAgent) patchWorkflow(ctx context.Context, params map[string]any, actx models.AgentContext) (*models.AgentResult, error) {
	artifact, _ := params["artifact"].(string)
	defect, _ := params["defect"].(string)

	if artifact == "" {
		return nil, errors.New("artifact is required for patching")
	}

	if defect == "" {
		return nil, errors.New("defect description is required for patching")
	}

	result, err := llm.Complete(ctx, a.client, llm.GenerateRequest{
		System: designSystemPrompt,
		Messages: []llm.Message{
			{Role: "assistant", Content: artifact},
			{Role: "user", Content: "Patch only the sections affected by this defect, leave the rest unchanged: " + defect},
		},
	}, llm.DefaultMaxContinuations)
	if err != nil {
		return nil, err
	}

	return &models.AgentResult{
		Success: true,
		Data: map[string]any{
			"workflow_code": result.Text,
			"truncated":     result.Truncated,
			"patched":       true,
		},
		Confidence: 0.8,
	}, nil
}

// checkDesign validates a workflow structure locally: the four stages must be
// present and each stage needs at least a name.
func (a *DesignAgent) checkDesign(_ context.Context, params map[string]any, _ models.AgentContext) (*models.AgentResult, error) {
	workflow, _ := params["workflow"].(map[string]any)
	if workflow == nil {
		return nil, errors.New("workflow data is required")
	}

	warnings := make([]string, 0)
	suggestions := make([]string, 0)

	stages, _ := workflow["stages"].([]any)
	seen := make(map[string]bool, len(stages))

	for _, raw := range stages {
		stage, _ := raw.(map[string]any)
		if stage == nil {
			continue
		}

		name, _ := stage["name"].(string)
		seen[strings.ToLower(name)] = true

		if fields, _ := stage["fields"].([]any); len(fields) == 0 && strings.EqualFold(name, "capture") {
			warnings = append(warnings, "capture stage has no form fields")
		}
	}

	for _, required := range workflowStages {
		if !seen[required] {
			warnings = append(warnings, "missing workflow stage: "+required)
			suggestions = append(suggestions, "Add a "+required+" stage to complete the standard flow")
		}
	}

	return &models.AgentResult{
		Success:     true,
		Warnings:    warnings,
		Suggestions: suggestions,
		Confidence:  1.0,
	}, nil
}
