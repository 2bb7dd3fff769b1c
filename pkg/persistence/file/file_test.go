package file

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/persistence"
	"github.com/flowsmith/flowsmith/pkg/testutil"
)

const testOrg = "org-test"

func newTestPersistence(t *testing.T) *Persistence {
	t.Helper()

	return NewPersistence(t.TempDir())
}

func TestWorkflowTriggerRoundTrip(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	trigger := testutil.CreateTestTrigger(testutil.WithPayloadSchema(map[string]any{
		"type":     "object",
		"required": []any{"amount"},
	}))
	require.NoError(t, p.SaveWorkflowTrigger(ctx, trigger))

	loaded, err := p.WorkflowTriggerByID(ctx, testOrg, trigger.ID)
	require.NoError(t, err)
	assert.Equal(t, trigger.ID, loaded.ID)
	assert.Equal(t, trigger.WorkflowID, loaded.WorkflowID)
	assert.Equal(t, models.TriggerTypeWebhook, loaded.Type)
	assert.True(t, loaded.Active)
	assert.Equal(t, "object", loaded.PayloadSchema["type"])

	all, err := p.WorkflowTriggers(ctx, testOrg)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestWorkflowTriggerOrgScoping(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	trigger := testutil.CreateTestTrigger()
	require.NoError(t, p.SaveWorkflowTrigger(ctx, trigger))

	_, err := p.WorkflowTriggerByID(ctx, "org-other", trigger.ID)
	assert.True(t, persistence.IsTriggerNotFound(err))

	others, err := p.WorkflowTriggers(ctx, "org-other")
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestDeleteWorkflowTrigger(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	trigger := testutil.CreateTestTrigger()
	require.NoError(t, p.SaveWorkflowTrigger(ctx, trigger))
	require.NoError(t, p.DeleteWorkflowTrigger(ctx, testOrg, trigger.ID))

	_, err := p.WorkflowTriggerByID(ctx, testOrg, trigger.ID)
	assert.True(t, persistence.IsTriggerNotFound(err))
}

func TestTriggerTemplateRoundTrip(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	template := &models.TriggerTemplate{
		ID:       "daily-report",
		Type:     models.TriggerTypeScheduled,
		Name:     "Daily report",
		Category: models.CategoryTimeBased,
		Keywords: []models.WeightedKeyword{{Text: "daily", Weight: 2}},
	}
	require.NoError(t, p.SaveTriggerTemplate(ctx, testOrg, template))

	loaded, err := p.TriggerTemplateByID(ctx, testOrg, "daily-report")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryTimeBased, loaded.Category)
	require.Len(t, loaded.Keywords, 1)
	assert.Equal(t, "daily", loaded.Keywords[0].Text)

	_, err = p.TriggerTemplateByID(ctx, testOrg, "missing")
	assert.True(t, persistence.IsTemplateNotFound(err))
}

func TestExecutionRoundTrip(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Millisecond)
	execution := &models.WorkflowExecution{
		ID:             "exec-1",
		WorkflowID:     "wf-1",
		OrganizationID: testOrg,
		Status:         models.ExecutionStatusRunning,
		StartedAt:      started,
		Steps: []*models.StepExecution{
			{ID: "s-1", StepID: "capture", Status: models.StepStatusCompleted},
			{ID: "s-2", StepID: "review", Status: models.StepStatusInProgress},
		},
		CurrentStepIDs: []string{"review"},
	}
	require.NoError(t, p.SaveExecution(ctx, execution))

	loaded, err := p.ExecutionByID(ctx, testOrg, "exec-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusRunning, loaded.Status)
	assert.True(t, loaded.StartedAt.Equal(started))
	require.Len(t, loaded.Steps, 2)

	step, ok := loaded.StepFor("review")
	require.True(t, ok)
	assert.Equal(t, models.StepStatusInProgress, step.Status)

	_, err = p.ExecutionByID(ctx, testOrg, "missing")
	assert.True(t, persistence.IsExecutionNotFound(err))

	_, err = p.ExecutionByID(ctx, "org-other", "exec-1")
	assert.True(t, persistence.IsExecutionNotFound(err))

	all, err := p.Executions(ctx, testOrg)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordTriggerUsage(t *testing.T) {
	p := newTestPersistence(t)
	ctx := context.Background()

	require.NoError(t, p.RecordTriggerUsage(ctx, testOrg, "trigger-1"))
	require.NoError(t, p.RecordTriggerUsage(ctx, testOrg, "trigger-1"))
	require.NoError(t, p.RecordTriggerUsage(ctx, testOrg, "trigger-2"))
}

func TestHealthCheck(t *testing.T) {
	p := newTestPersistence(t)
	assert.NoError(t, p.HealthCheck(context.Background()))

	missing := NewPersistence("/nonexistent/flowsmith-test")
	assert.Error(t, missing.HealthCheck(context.Background()))
}
