package agents

import (
	"context"
	"errors"
	"log/slog"

	"github.com/flowsmith/flowsmith/pkg/models"
)

// Classifier decides what the user is asking for. The default keyword
// heuristic lives in the orchestrator package; a model-based classifier can
// be swapped in without touching control flow.
type Classifier interface {
	Classify(message string, history []models.ConversationTurn) models.Intent
}

// OrchestrationAgent exposes orchestration-internal operations as tools so
// the diagnostic endpoint can exercise them in isolation.
type OrchestrationAgent struct {
	baseAgent

	classifier Classifier
}

func NewOrchestrationAgent(logger *slog.Logger, classifier Classifier) *OrchestrationAgent {
	a := &OrchestrationAgent{
		baseAgent:  newBaseAgent(models.RoleOrchestration, logger),
		classifier: classifier,
	}

	a.register("classify_intent", a.classifyIntent)
	a.register("merge_results", a.mergeResults)

	return a
}

func (a *OrchestrationAgent) classifyIntent(_ context.Context, params map[string]any, actx models.AgentContext) (*models.AgentResult, error) {
	message, _ := params["message"].(string)
	if message == "" {
		return nil, errors.New("message is required")
	}

	intent := a.classifier.Classify(message, actx.History)

	return &models.AgentResult{
		Success: true,
		Data:    map[string]any{"intent": string(intent)},
	}, nil
}

// mergeResults unions suggestion lists with text de-duplication, preserving
// first-seen order. The orchestrator uses the same helper for its merge pass.
func (a *OrchestrationAgent) mergeResults(_ context.Context, params map[string]any, _ models.AgentContext) (*models.AgentResult, error) {
	lists, _ := params["suggestions"].([]any)

	flat := make([]string, 0)

	for _, raw := range lists {
		switch list := raw.(type) {
		case []any:
			for _, item := range list {
				if s, ok := item.(string); ok {
					flat = append(flat, s)
				}
			}
		case string:
			flat = append(flat, list)
		}
	}

	return &models.AgentResult{
		Success: true,
		Data:    map[string]any{"suggestions": DedupeStrings(flat)},
	}, nil
}

// DedupeStrings removes duplicates keeping first-seen order.
func DedupeStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))

	for _, v := range values {
		if !seen[v] {
			seen[v] = true

			out = append(out, v)
		}
	}

	return out
}
