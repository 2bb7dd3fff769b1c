package agents

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/flowsmith/flowsmith/pkg/models"
)

// QualityAgent reviews generated workflows for completeness and consistency.
type QualityAgent struct {
	baseAgent
}

func NewQualityAgent(logger *slog.Logger) *QualityAgent {
	a := &QualityAgent{baseAgent: newBaseAgent(models.RoleQuality, logger)}

	a.register("review_quality", a.reviewQuality)
	a.register("lint_workflow", a.lintWorkflow)

	return a
}

func (a *QualityAgent) reviewQuality(_ context.Context, params map[string]any, _ models.AgentContext) (*models.AgentResult, error) {
	workflow, _ := params["workflow"].(map[string]any)
	if workflow == nil {
		return nil, errors.New("workflow data is required")
	}

	warnings := make([]string, 0)
	suggestions := make([]string, 0)

	if name, _ := workflow["name"].(string); name == "" {
		warnings = append(warnings, "workflow has no name")
	}

	if description, _ := workflow["description"].(string); description == "" {
		suggestions = append(suggestions, "Add a workflow description so future editors understand its purpose")
	}

	stages, _ := workflow["stages"].([]any)
	if len(stages) == 0 {
		warnings = append(warnings, "workflow has no stages")
	}

	for _, raw := range stages {
		stage, _ := raw.(map[string]any)
		if stage == nil {
			continue
		}

		stageName, _ := stage["name"].(string)

		if assignee, _ := stage["assignee"].(string); assignee == "" && strings.EqualFold(stageName, "approval") {
			warnings = append(warnings, "approval stage has no assignee")
			suggestions = append(suggestions, "Assign an approver role to the approval stage")
		}
	}

	if _, hasTrigger := workflow["trigger"]; !hasTrigger {
		suggestions = append(suggestions, "Configure at least one trigger so the workflow can start")
	}

	return &models.AgentResult{
		Success:     true,
		Warnings:    warnings,
		Suggestions: suggestions,
		Confidence:  0.9,
	}, nil
}

// lintWorkflow checks generated artifact text for structural smells.
func (a *QualityAgent) lintWorkflow(_ context.Context, params map[string]any, _ models.AgentContext) (*models.AgentResult, error) {
	code, _ := params["code"].(string)
	if code == "" {
		return nil, errors.New("code is required for linting")
	}

	warnings := make([]string, 0)

	if strings.Contains(code, "TODO") || strings.Contains(code, "FIXME") {
		warnings = append(warnings, "generated artifact contains unresolved placeholders")
	}

	if strings.Count(code, "\n") > 2000 {
		warnings = append(warnings, "generated artifact is unusually large; consider splitting the workflow")
	}

	if !strings.Contains(strings.ToLower(code), "form") {
		warnings = append(warnings, "generated artifact does not define a capture form")
	}

	return &models.AgentResult{
		Success:  true,
		Warnings: warnings,
	}, nil
}
