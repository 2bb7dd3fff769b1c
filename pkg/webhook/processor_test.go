package webhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmith/flowsmith/pkg/events"
	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/persistence/file"
	"github.com/flowsmith/flowsmith/pkg/testutil"
)

const testOrg = "org-test"

func newTestProcessor(t *testing.T, triggers ...*models.WorkflowTrigger) (*Processor, *testutil.CapturePublisher) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	for _, trigger := range triggers {
		require.NoError(t, p.SaveWorkflowTrigger(context.Background(), trigger))
	}

	publisher := &testutil.CapturePublisher{}

	return NewProcessor(p, publisher), publisher
}

func jsonHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

func TestProcessWebhookFiresTrigger(t *testing.T) {
	trigger := testutil.CreateTestTrigger()
	processor, publisher := newTestProcessor(t, trigger)

	headers := jsonHeaders()
	headers["X-Delivery-Id"] = "delivery-1"

	result, err := processor.ProcessWebhook(context.Background(), testOrg, trigger.ID,
		"POST", headers, []byte(`{"amount": 750}`))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NotEmpty(t, result.EventID)

	published := publisher.Published()
	require.Len(t, published, 1)

	fired, ok := published[0].(events.TriggerFired)
	require.True(t, ok)
	assert.Equal(t, trigger.ID, fired.TriggerID)
	assert.Equal(t, trigger.WorkflowID, fired.WorkflowID)
	assert.Equal(t, "delivery-1", fired.DeliveryID)
	assert.Equal(t, "POST", fired.TriggerData["method"])

	body, ok := fired.TriggerData["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(750), body["amount"])
}

func TestProcessWebhookUnknownTrigger(t *testing.T) {
	processor, publisher := newTestProcessor(t)

	result, err := processor.ProcessWebhook(context.Background(), testOrg, "no-such-trigger",
		"POST", jsonHeaders(), []byte(`{}`))

	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, "unknown trigger", result.Message)
	assert.Empty(t, publisher.Published())
}

func TestProcessWebhookRejectsNonWebhookTrigger(t *testing.T) {
	trigger := testutil.CreateTestTrigger(testutil.WithTriggerType(models.TriggerTypeScheduled))
	processor, publisher := newTestProcessor(t, trigger)

	result, err := processor.ProcessWebhook(context.Background(), testOrg, trigger.ID,
		"POST", jsonHeaders(), []byte(`{}`))

	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.False(t, result.Success)
	assert.Empty(t, publisher.Published())
}

func TestProcessWebhookRejectsInactiveTrigger(t *testing.T) {
	trigger := testutil.CreateTestTrigger(testutil.WithInactive())
	processor, publisher := newTestProcessor(t, trigger)

	result, err := processor.ProcessWebhook(context.Background(), testOrg, trigger.ID,
		"POST", jsonHeaders(), []byte(`{}`))

	require.Error(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "trigger is inactive", result.Message)
	assert.Empty(t, publisher.Published())
}

func TestProcessWebhookSchemaValidation(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"amount"},
		"properties": map[string]any{
			"amount": map[string]any{"type": "number"},
		},
	}
	trigger := testutil.CreateTestTrigger(testutil.WithPayloadSchema(schema))
	processor, publisher := newTestProcessor(t, trigger)
	ctx := context.Background()

	result, err := processor.ProcessWebhook(ctx, testOrg, trigger.ID,
		"POST", jsonHeaders(), []byte(`{"amount": "not a number"}`))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.False(t, result.Success)
	assert.Empty(t, publisher.Published())

	result, err = processor.ProcessWebhook(ctx, testOrg, trigger.ID,
		"POST", jsonHeaders(), []byte(`{"amount": 750}`))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, publisher.Published(), 1)
}

func TestProcessWebhookOrgScoping(t *testing.T) {
	trigger := testutil.CreateTestTrigger()
	processor, _ := newTestProcessor(t, trigger)

	result, err := processor.ProcessWebhook(context.Background(), "org-other", trigger.ID,
		"POST", jsonHeaders(), []byte(`{}`))

	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.False(t, result.Success)
}

func TestParseBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		expected    map[string]any
	}{
		{
			name:        "json object",
			contentType: "application/json; charset=utf-8",
			body:        `{"key": "value"}`,
			expected:    map[string]any{"key": "value"},
		},
		{
			name:        "malformed json",
			contentType: "application/json",
			body:        `{"key":`,
			expected:    nil,
		},
		{
			name:        "form encoded",
			contentType: "application/x-www-form-urlencoded",
			body:        "amount=750&source=portal",
			expected:    map[string]any{"amount": "750", "source": "portal"},
		},
		{
			name:        "plain text falls back to raw",
			contentType: "text/plain",
			body:        "hello",
			expected:    map[string]any{"raw": "hello"},
		},
		{
			name:        "empty body",
			contentType: "application/json",
			body:        "",
			expected:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseBody(tt.contentType, []byte(tt.body)))
		})
	}
}
