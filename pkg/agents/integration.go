package agents

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/flowsmith/flowsmith/pkg/models"
)

// integrationCatalog maps keywords in a workflow description to known
// integration targets.
var integrationCatalog = []struct {
	Name     string
	Keywords []string
}{
	{Name: "slack", Keywords: []string{"slack", "notify", "notification", "message", "channel"}},
	{Name: "email", Keywords: []string{"email", "mail", "inbox", "send"}},
	{Name: "google_sheets", Keywords: []string{"sheet", "spreadsheet", "rows", "csv"}},
	{Name: "salesforce", Keywords: []string{"salesforce", "crm", "lead", "opportunity"}},
	{Name: "stripe", Keywords: []string{"payment", "invoice", "charge", "stripe", "refund"}},
	{Name: "jira", Keywords: []string{"jira", "ticket", "issue", "sprint"}},
	{Name: "s3", Keywords: []string{"file", "upload", "document", "attachment", "storage"}},
	{Name: "calendar", Keywords: []string{"calendar", "meeting", "schedule", "appointment"}},
}

// IntegrationAgent suggests and validates third-party integrations for
// generated workflows.
type IntegrationAgent struct {
	baseAgent
}

func NewIntegrationAgent(logger *slog.Logger) *IntegrationAgent {
	a := &IntegrationAgent{baseAgent: newBaseAgent(models.RoleIntegration, logger)}

	a.register("suggest_integrations", a.suggestIntegrations)
	a.register("check_integration", a.checkIntegration)

	return a
}

func (a *IntegrationAgent) suggestIntegrations(_ context.Context, params map[string]any, _ models.AgentContext) (*models.AgentResult, error) {
	description, _ := params["description"].(string)
	if description == "" {
		return nil, errors.New("description is required")
	}

	ranked := RankIntegrations(description)

	suggestions := make([]string, 0, len(ranked))
	for _, name := range ranked {
		suggestions = append(suggestions, "Connect the "+name+" integration")
	}

	return &models.AgentResult{
		Success:     true,
		Data:        map[string]any{"integrations": ranked},
		Suggestions: suggestions,
		Confidence:  0.7,
	}, nil
}

// checkIntegration verifies an integration configuration names a known
// target and carries the fields its connector needs.
func (a *IntegrationAgent) checkIntegration(_ context.Context, params map[string]any, _ models.AgentContext) (*models.AgentResult, error) {
	name, _ := params["integration"].(string)
	if name == "" {
		return nil, errors.New("integration name is required")
	}

	known := false

	for _, entry := range integrationCatalog {
		if entry.Name == name {
			known = true

			break
		}
	}

	warnings := make([]string, 0, 2)

	if !known {
		warnings = append(warnings, "unknown integration target: "+name)
	}

	config, _ := params["configuration"].(map[string]any)
	if len(config) == 0 {
		warnings = append(warnings, "integration '"+name+"' has no configuration")
	}

	return &models.AgentResult{
		Success:  true,
		Data:     map[string]any{"integration": name, "known": known},
		Warnings: warnings,
	}, nil
}

// RankIntegrations returns integration names ordered by keyword hit count in
// the description, ties broken alphabetically for deterministic output.
func RankIntegrations(description string) []string {
	lowered := strings.ToLower(description)

	type scored struct {
		name string
		hits int
	}

	matches := make([]scored, 0, len(integrationCatalog))

	for _, entry := range integrationCatalog {
		hits := 0

		for _, keyword := range entry.Keywords {
			if strings.Contains(lowered, keyword) {
				hits++
			}
		}

		if hits > 0 {
			matches = append(matches, scored{name: entry.Name, hits: hits})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].hits != matches[j].hits {
			return matches[i].hits > matches[j].hits
		}

		return matches[i].name < matches[j].name
	})

	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m.name)
	}

	return names
}
