package cmd

import (
	"fmt"
	"log/slog"

	"github.com/flowsmith/flowsmith/pkg/agents"
	"github.com/flowsmith/flowsmith/pkg/llm"
	"github.com/flowsmith/flowsmith/pkg/orchestrator"
	"github.com/flowsmith/flowsmith/pkg/triggermap"
)

// NewLLMClient builds the language-model client. A missing API key is a
// startup error, never a silent no-op.
func NewLLMClient(baseURL, apiKey string) (llm.Client, error) {
	client, err := llm.NewHTTPClient(baseURL, apiKey)
	if err != nil {
		return nil, fmt.Errorf("initializing llm client: %w", err)
	}

	return client, nil
}

// NewRegistry wires the five agents with their collaborators.
func NewRegistry(logger *slog.Logger, client llm.Client, mapper *triggermap.Mapper) *agents.Registry {
	return agents.NewRegistry(
		agents.NewDesignAgent(logger, client, mapper),
		agents.NewSecurityAgent(logger),
		agents.NewIntegrationAgent(logger),
		agents.NewQualityAgent(logger),
		agents.NewOrchestrationAgent(logger, orchestrator.NewKeywordClassifier()),
	)
}
