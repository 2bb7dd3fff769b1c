package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmith/flowsmith/pkg/agents"
	"github.com/flowsmith/flowsmith/pkg/costgov"
	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/testutil"
)

// stubAgent returns canned results per tool and records invocations. A small
// random delay shuffles goroutine completion order.
type stubAgent struct {
	role    models.AgentRole
	results map[string]*models.AgentResult
	jitter  bool

	mu      sync.Mutex
	invoked []string
}

func (a *stubAgent) Role() models.AgentRole { return a.role }

func (a *stubAgent) Tools() []string {
	tools := make([]string, 0, len(a.results))
	for tool := range a.results {
		tools = append(tools, tool)
	}

	return tools
}

func (a *stubAgent) Invoke(_ context.Context, tool string, _ map[string]any, _ models.AgentContext) (*models.AgentResult, error) {
	a.mu.Lock()
	a.invoked = append(a.invoked, tool)
	a.mu.Unlock()

	if a.jitter {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}

	result, ok := a.results[tool]
	if !ok {
		return nil, errors.New("unexpected tool " + tool)
	}

	copied := *result

	return &copied, nil
}

func (a *stubAgent) invocations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.invoked))
	copy(out, a.invoked)

	return out
}

func successResult(data map[string]any, suggestions ...string) *models.AgentResult {
	return &models.AgentResult{Success: true, Data: data, Suggestions: suggestions}
}

func newTestGovernor() *costgov.Governor {
	return costgov.NewGovernor(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func newStubSet(jitter bool) (design, security, integration, quality *stubAgent) {
	design = &stubAgent{
		role: models.RoleDesign,
		results: map[string]*models.AgentResult{
			"generate_workflow": successResult(
				map[string]any{"workflow_code": "form: expense_report\nstages: [capture, review, approval, update]"},
				"Configure a manual trigger"),
			"patch_workflow": successResult(
				map[string]any{"workflow_code": "form: expense_report (patched)", "patched": true}),
		},
		jitter: jitter,
	}
	security = &stubAgent{
		role: models.RoleSecurity,
		results: map[string]*models.AgentResult{
			"scan_code": successResult(map[string]any{"score": 100}, "Enable audit logging"),
		},
		jitter: jitter,
	}
	integration = &stubAgent{
		role: models.RoleIntegration,
		results: map[string]*models.AgentResult{
			"suggest_integrations": successResult(
				map[string]any{"integrations": []string{"slack"}},
				"Connect the slack integration", "Enable audit logging"),
		},
		jitter: jitter,
	}
	quality = &stubAgent{
		role: models.RoleQuality,
		results: map[string]*models.AgentResult{
			"lint_workflow": successResult(nil, "Name every stage"),
		},
		jitter: jitter,
	}

	return design, security, integration, quality
}

func newTestOrchestrator(agentSet ...agents.Agent) *Orchestrator {
	return New(agents.NewRegistry(agentSet...), newTestGovernor(), NewKeywordClassifier())
}

func TestProcessMessageNewWorkflow(t *testing.T) {
	design, security, integration, quality := newStubSet(false)
	o := newTestOrchestrator(design, security, integration, quality)

	actx := testutil.CreateTestContext()

	result, err := o.ProcessMessage(context.Background(),
		"Create a workflow to approve expense reports over $500", actx)
	require.NoError(t, err)

	assert.Equal(t, models.IntentNewWorkflow, result.Intent)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.WorkflowCode)
	assert.Equal(t, []string{"generate_workflow"}, design.invocations())
	assert.Len(t, result.Responses, 4)
	assert.Greater(t, result.TotalCost, 0.0)
}

func TestProcessMessageModificationSkipsRegeneration(t *testing.T) {
	design, security, integration, quality := newStubSet(false)
	o := newTestOrchestrator(design, security, integration, quality)

	actx := testutil.CreateTestContext(func(a *models.AgentContext) {
		a.History = []models.ConversationTurn{
			{Role: "user", Content: "Create an expense workflow"},
			{Role: "assistant", Content: "form: expense_report", HasArtifact: true},
		}
	})

	result, err := o.ProcessMessage(context.Background(), "fix the submit button, it's broken", actx)
	require.NoError(t, err)

	assert.Equal(t, models.IntentModification, result.Intent)
	assert.Equal(t, []string{"patch_workflow"}, design.invocations())
	assert.Empty(t, integration.invocations(), "modification must not re-run integration discovery")
}

func TestProcessMessageMergeDeterministic(t *testing.T) {
	actx := testutil.CreateTestContext()

	var reference *models.OrchestrationResult

	for run := 0; run < 8; run++ {
		design, security, integration, quality := newStubSet(true)
		o := newTestOrchestrator(design, security, integration, quality)

		result, err := o.ProcessMessage(context.Background(), "Create an onboarding workflow", actx)
		require.NoError(t, err)

		if reference == nil {
			reference = result

			continue
		}

		require.Len(t, result.Responses, len(reference.Responses))
		for i := range result.Responses {
			assert.Equal(t, reference.Responses[i].Role, result.Responses[i].Role, "run %d", run)
		}
		assert.Equal(t, reference.Suggestions, result.Suggestions, "run %d", run)
		assert.Equal(t, reference.Issues, result.Issues, "run %d", run)
	}

	// Cross-agent duplicates collapse to the first canonical occurrence.
	assert.Contains(t, reference.Suggestions, "Enable audit logging")
	count := 0
	for _, s := range reference.Suggestions {
		if s == "Enable audit logging" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestProcessMessageGracefulDegradation(t *testing.T) {
	design, _, integration, quality := newStubSet(false)

	failing := &stubAgent{
		role: models.RoleSecurity,
		results: map[string]*models.AgentResult{
			"scan_code": {Success: false, Error: "scanner crashed"},
		},
	}

	o := newTestOrchestrator(design, failing, integration, quality)

	result, err := o.ProcessMessage(context.Background(), "Create an approval workflow", testutil.CreateTestContext())
	require.NoError(t, err)

	assert.True(t, result.Success, "a failing validation agent must not sink the round")

	securityResponse, ok := result.ResponseFor(models.RoleSecurity)
	require.True(t, ok)
	assert.False(t, securityResponse.Success)
	assert.Equal(t, "scanner crashed", securityResponse.Error)

	for _, issue := range result.Issues {
		assert.NotEqual(t, models.RoleSecurity, issue.Role, "failing agent must contribute no issues")
	}
}

func TestProcessMessageDesignFailureSinksRound(t *testing.T) {
	_, security, integration, quality := newStubSet(false)

	failingDesign := &stubAgent{
		role: models.RoleDesign,
		results: map[string]*models.AgentResult{
			"generate_workflow": {Success: false, Error: "model unavailable"},
		},
	}

	o := newTestOrchestrator(failingDesign, security, integration, quality)

	result, err := o.ProcessMessage(context.Background(), "Create a workflow", testutil.CreateTestContext())
	require.NoError(t, err)

	assert.False(t, result.Success)
}

func TestProcessMessageCostExceeded(t *testing.T) {
	design, security, integration, quality := newStubSet(false)
	o := newTestOrchestrator(design, security, integration, quality)

	actx := testutil.CreateTestContext(func(a *models.AgentContext) {
		a.ApprovalMode = models.CostModeCapped
		a.MaxCost = 0.05 // below even one design call
	})

	result, err := o.ProcessMessage(context.Background(), "Create a workflow", actx)
	require.NoError(t, err)

	assert.True(t, result.CostExceeded)
	assert.False(t, result.Success)
	assert.Empty(t, design.invocations())
}

func TestBuildWorkflowToggles(t *testing.T) {
	design, security, integration, quality := newStubSet(false)
	o := newTestOrchestrator(design, security, integration, quality)

	_, err := o.BuildWorkflow(context.Background(), "Create a workflow", testutil.CreateTestContext(),
		Options{SkipSecurity: true, SkipQuality: true})
	require.NoError(t, err)

	assert.Empty(t, security.invocations())
	assert.Empty(t, quality.invocations())
	assert.NotEmpty(t, integration.invocations())
}

func TestKeywordClassifier(t *testing.T) {
	classifier := NewKeywordClassifier()

	artifactHistory := []models.ConversationTurn{
		{Role: "assistant", Content: "form: x", HasArtifact: true},
	}

	tests := []struct {
		name     string
		message  string
		history  []models.ConversationTurn
		expected models.Intent
	}{
		{
			name:     "new workflow without history",
			message:  "Create a workflow to approve expense reports over $500",
			expected: models.IntentNewWorkflow,
		},
		{
			name:     "edit vocabulary without artifact is still new",
			message:  "fix my process for approvals",
			expected: models.IntentNewWorkflow,
		},
		{
			name:     "edit vocabulary with artifact",
			message:  "fix the submit button, it's broken",
			history:  artifactHistory,
			expected: models.IntentModification,
		},
		{
			name:     "explicit modification marker",
			message:  "modify: swap the approval stage order",
			history:  artifactHistory,
			expected: models.IntentModification,
		},
		{
			name:     "validation request",
			message:  "review this workflow for problems",
			expected: models.IntentValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.Classify(tt.message, tt.history))
		})
	}
}

func TestSecurityScanReport(t *testing.T) {
	o := newTestOrchestrator()

	code := "apiKey = \"AKIA1234567890ABCD12\"\nresp = eval(userInput)"

	report, err := o.SecurityScan(context.Background(), code, []string{"request"}, testutil.CreateTestContext())
	require.NoError(t, err)

	assert.Less(t, report.Score, 100)
	assert.GreaterOrEqual(t, report.Score, 0)
	assert.NotEmpty(t, report.Vulnerabilities)
	assert.NotEmpty(t, report.Secrets)
	assert.NotEmpty(t, report.ComplianceIssues)
}

func TestProcessMessageValidationIntentReviewsArtifact(t *testing.T) {
	design, security, integration, quality := newStubSet(false)
	o := newTestOrchestrator(design, security, integration, quality)

	actx := testutil.CreateTestContext(func(a *models.AgentContext) {
		a.History = []models.ConversationTurn{
			{Role: "user", Content: "Create an expense workflow"},
			{Role: "assistant", Content: "form: expense_report", HasArtifact: true},
		}
	})

	result, err := o.ProcessMessage(context.Background(), "review this workflow for problems", actx)
	require.NoError(t, err)

	assert.Equal(t, models.IntentValidation, result.Intent)
	assert.True(t, result.Success)
	assert.Empty(t, result.WorkflowCode)
	assert.Empty(t, design.invocations(), "a validation round must not regenerate")
	assert.Empty(t, integration.invocations())
	assert.Equal(t, []string{"scan_code"}, security.invocations())
	assert.Equal(t, []string{"lint_workflow"}, quality.invocations())
}

func TestProcessMessageValidationWithoutArtifactReviewsMessage(t *testing.T) {
	design, security, integration, quality := newStubSet(false)
	o := newTestOrchestrator(design, security, integration, quality)

	result, err := o.ProcessMessage(context.Background(),
		"check this: form: expense_report with no stages", testutil.CreateTestContext())
	require.NoError(t, err)

	assert.Equal(t, models.IntentValidation, result.Intent)
	assert.Empty(t, design.invocations())
	assert.Equal(t, []string{"scan_code"}, security.invocations())
	assert.Equal(t, []string{"lint_workflow"}, quality.invocations())
	assert.Empty(t, integration.invocations())
}

func TestValidateRealtime(t *testing.T) {
	design := &stubAgent{
		role: models.RoleDesign,
		results: map[string]*models.AgentResult{
			"check_design": successResult(nil),
		},
	}
	security := &stubAgent{
		role: models.RoleSecurity,
		results: map[string]*models.AgentResult{
			"scan_code": {Success: true, Warnings: []string{"code calls eval"}},
		},
	}
	quality := &stubAgent{
		role: models.RoleQuality,
		results: map[string]*models.AgentResult{
			"review_quality": successResult(nil, "Add a workflow description"),
		},
	}
	o := newTestOrchestrator(design, security, quality)
	actx := testutil.CreateTestContext()

	workflow := map[string]any{"name": "expenses", "code": "resp = eval(userInput)"}

	valid, err := o.ValidateRealtime(context.Background(), workflow, actx, "design")
	require.NoError(t, err)
	assert.True(t, valid.IsValid)
	assert.Empty(t, valid.Issues)
	assert.Equal(t, []string{"check_design"}, design.invocations())

	reviewed, err := o.ValidateRealtime(context.Background(), workflow, actx, "quality")
	require.NoError(t, err)
	assert.True(t, reviewed.IsValid)
	assert.Equal(t, []string{"Add a workflow description"}, reviewed.Suggestions)

	scanned, err := o.ValidateRealtime(context.Background(), workflow, actx, "security")
	require.NoError(t, err)
	assert.False(t, scanned.IsValid)
	require.Len(t, scanned.Issues, 1)
	assert.Equal(t, models.RoleSecurity, scanned.Issues[0].Role)
	assert.Equal(t, models.SeverityWarning, scanned.Issues[0].Severity)
}

func TestValidateRealtimeUnknownType(t *testing.T) {
	o := newTestOrchestrator()

	_, err := o.ValidateRealtime(context.Background(), map[string]any{}, testutil.CreateTestContext(), "spelling")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownValidationType)
}

func TestSuggestIntegrations(t *testing.T) {
	integration := &stubAgent{
		role: models.RoleIntegration,
		results: map[string]*models.AgentResult{
			"suggest_integrations": successResult(map[string]any{"integrations": []string{"slack", "stripe"}}),
		},
	}
	o := newTestOrchestrator(integration)

	integrations, err := o.SuggestIntegrations(context.Background(),
		"post a slack message when an invoice is paid", testutil.CreateTestContext())
	require.NoError(t, err)
	assert.Equal(t, []string{"slack", "stripe"}, integrations)
}

func TestSuggestIntegrationsAgentFailure(t *testing.T) {
	integration := &stubAgent{
		role: models.RoleIntegration,
		results: map[string]*models.AgentResult{
			"suggest_integrations": {Success: false, Error: "catalog unavailable"},
		},
	}
	o := newTestOrchestrator(integration)

	_, err := o.SuggestIntegrations(context.Background(), "anything", testutil.CreateTestContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog unavailable")
}
