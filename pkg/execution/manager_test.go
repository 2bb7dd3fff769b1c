package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/persistence/file"
	"github.com/flowsmith/flowsmith/pkg/testutil"
)

const testOrg = "org-test"

func newTestManager(t *testing.T, config Config) (*Manager, *testutil.CapturePublisher) {
	t.Helper()

	publisher := &testutil.CapturePublisher{}
	manager := NewManager(file.NewPersistence(t.TempDir()), publisher, config)

	return manager, publisher
}

func testInitiator() models.InitiatorContext {
	return models.InitiatorContext{
		UserID:         "user-test",
		TriggerType:    models.TriggerTypeManual,
		OrganizationID: testOrg,
	}
}

func startExecution(t *testing.T, manager *Manager) *models.WorkflowExecution {
	t.Helper()

	execution, err := manager.StartExecution(context.Background(), "wf-1", testInitiator())
	require.NoError(t, err)

	return execution
}

// Drives a step to the given terminal status through the allowed path.
func completeStep(t *testing.T, manager *Manager, executionID, stepID string, final models.StepStatus) {
	t.Helper()

	ctx := context.Background()

	_, err := manager.RecordStepTransition(ctx, testOrg, executionID, stepID, models.StepStatusInProgress, nil)
	require.NoError(t, err)
	_, err = manager.RecordStepTransition(ctx, testOrg, executionID, stepID, final, nil)
	require.NoError(t, err)
}

func TestStartExecution(t *testing.T) {
	manager, publisher := newTestManager(t, Config{DefaultSLA: time.Hour})

	execution := startExecution(t, manager)

	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Equal(t, testOrg, execution.OrganizationID)
	require.NotNil(t, execution.SLADeadline)
	assert.Len(t, publisher.Published(), 1)

	stored, err := manager.persistence.ExecutionByID(context.Background(), testOrg, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, execution.ID, stored.ID)
}

func TestRecordStepTransitionLifecycle(t *testing.T) {
	manager, _ := newTestManager(t, Config{})
	execution := startExecution(t, manager)
	ctx := context.Background()

	step, err := manager.RecordStepTransition(ctx, testOrg, execution.ID, "capture", models.StepStatusInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusInProgress, step.Status)
	assert.NotNil(t, step.StartedAt)
	assert.Nil(t, step.CompletedAt)

	stored, err := manager.persistence.ExecutionByID(ctx, testOrg, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"capture"}, stored.CurrentStepIDs)

	output := map[string]any{"form_id": "f-42"}
	step, err = manager.RecordStepTransition(ctx, testOrg, execution.ID, "capture", models.StepStatusCompleted, output)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusCompleted, step.Status)
	assert.NotNil(t, step.CompletedAt)
	assert.Equal(t, output, step.Output)

	stored, err = manager.persistence.ExecutionByID(ctx, testOrg, execution.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.CurrentStepIDs)
}

func TestTerminalStepRejectsFurtherTransitions(t *testing.T) {
	manager, _ := newTestManager(t, Config{})
	execution := startExecution(t, manager)
	ctx := context.Background()

	completeStep(t, manager, execution.ID, "review", models.StepStatusCompleted)

	before, err := manager.persistence.ExecutionByID(ctx, testOrg, execution.ID)
	require.NoError(t, err)
	recorded, ok := before.StepFor("review")
	require.True(t, ok)

	_, err = manager.RecordStepTransition(ctx, testOrg, execution.ID, "review", models.StepStatusFailed, nil)
	require.Error(t, err)
	assert.True(t, IsStaleTransition(err))

	var stale *StaleTransitionError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, models.StepStatusCompleted, stale.Current)
	assert.Equal(t, models.StepStatusFailed, stale.Attempted)

	// The stored record is untouched by the rejected transition.
	after, err := manager.persistence.ExecutionByID(ctx, testOrg, execution.ID)
	require.NoError(t, err)
	current, ok := after.StepFor("review")
	require.True(t, ok)
	assert.Equal(t, models.StepStatusCompleted, current.Status)
	assert.Equal(t, recorded.CompletedAt.UnixNano(), current.CompletedAt.UnixNano())
}

func TestConcurrentSameStepTransitionSingleWinner(t *testing.T) {
	manager, _ := newTestManager(t, Config{})
	execution := startExecution(t, manager)
	ctx := context.Background()

	_, err := manager.RecordStepTransition(ctx, testOrg, execution.ID, "approval", models.StepStatusInProgress, nil)
	require.NoError(t, err)

	attempts := []models.StepStatus{models.StepStatusCompleted, models.StepStatusFailed}
	errs := make([]error, len(attempts))

	var wg sync.WaitGroup
	for i, status := range attempts {
		wg.Add(1)

		go func(i int, status models.StepStatus) {
			defer wg.Done()
			_, errs[i] = manager.RecordStepTransition(ctx, testOrg, execution.ID, "approval", status, nil)
		}(i, status)
	}
	wg.Wait()

	winners, stale := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case IsStaleTransition(err):
			stale++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, stale)
}

func TestInvalidStepTransition(t *testing.T) {
	manager, _ := newTestManager(t, Config{})
	execution := startExecution(t, manager)

	// pending can only move to in_progress or skipped
	_, err := manager.RecordStepTransition(context.Background(), testOrg, execution.ID, "notify", models.StepStatusCompleted, nil)
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
	assert.False(t, IsStaleTransition(err))
}

func TestPauseResumeCancel(t *testing.T) {
	manager, _ := newTestManager(t, Config{})
	execution := startExecution(t, manager)
	ctx := context.Background()

	require.NoError(t, manager.Pause(ctx, testOrg, execution.ID))

	stored, err := manager.persistence.ExecutionByID(ctx, testOrg, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusPaused, stored.Status)
	assert.NotNil(t, stored.PausedAt)

	// resuming a running execution is rejected, resuming a paused one works
	require.NoError(t, manager.Resume(ctx, testOrg, execution.ID))
	assert.ErrorIs(t, manager.Resume(ctx, testOrg, execution.ID), ErrExecutionNotPaused)

	require.NoError(t, manager.Cancel(ctx, testOrg, execution.ID, "operator request"))

	stored, err = manager.persistence.ExecutionByID(ctx, testOrg, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CompletedAt)

	assert.ErrorIs(t, manager.Cancel(ctx, testOrg, execution.ID, "again"), ErrExecutionTerminal)
}

func TestTerminalExecutionRejectsStepTransitions(t *testing.T) {
	manager, _ := newTestManager(t, Config{})
	execution := startExecution(t, manager)
	ctx := context.Background()

	require.NoError(t, manager.Complete(ctx, testOrg, execution.ID))

	_, err := manager.RecordStepTransition(ctx, testOrg, execution.ID, "late", models.StepStatusInProgress, nil)
	assert.ErrorIs(t, err, ErrExecutionTerminal)
}

func TestComputeMetrics(t *testing.T) {
	manager, _ := newTestManager(t, Config{DefaultSLA: time.Hour})
	execution := startExecution(t, manager)
	ctx := context.Background()

	completeStep(t, manager, execution.ID, "capture", models.StepStatusCompleted)
	completeStep(t, manager, execution.ID, "review", models.StepStatusCompleted)
	_, err := manager.RecordStepTransition(ctx, testOrg, execution.ID, "approval", models.StepStatusInProgress, nil)
	require.NoError(t, err)
	_, err = manager.RecordStepTransition(ctx, testOrg, execution.ID, "notify", models.StepStatusSkipped, nil)
	require.NoError(t, err)

	metrics, err := manager.ComputeMetrics(ctx, testOrg, execution.ID)
	require.NoError(t, err)

	assert.InDelta(t, 75.0, metrics.ProgressPercent, 0.01)
	assert.Equal(t, 2, metrics.StatusCounts[models.StepStatusCompleted])
	assert.Equal(t, 1, metrics.StatusCounts[models.StepStatusInProgress])
	assert.Equal(t, 1, metrics.StatusCounts[models.StepStatusSkipped])
	assert.Equal(t, models.SLAWithin, metrics.SLAStatus)
	assert.NotNil(t, metrics.EstimatedCompletion)
	assert.Greater(t, metrics.TotalDuration, time.Duration(0))
}

func TestSLABreached(t *testing.T) {
	manager, _ := newTestManager(t, Config{DefaultSLA: 10 * time.Millisecond})
	execution := startExecution(t, manager)

	time.Sleep(30 * time.Millisecond)

	metrics, err := manager.ComputeMetrics(context.Background(), testOrg, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SLABreached, metrics.SLAStatus)
}

func TestSLAStatusBands(t *testing.T) {
	manager, _ := newTestManager(t, Config{})

	started := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	deadline := started.Add(time.Hour)

	execution := &models.WorkflowExecution{
		Status:      models.ExecutionStatusRunning,
		StartedAt:   started,
		SLADeadline: &deadline,
	}

	// Default tail fraction is 0.1, so the approaching band covers the
	// last 6 minutes of the hour window.
	tests := []struct {
		name string
		now  time.Time
		want models.SLAStatus
	}{
		{name: "early in the window", now: started.Add(10 * time.Minute), want: models.SLAWithin},
		{name: "at the band boundary", now: started.Add(54 * time.Minute), want: models.SLAWithin},
		{name: "inside the tail", now: started.Add(54*time.Minute + time.Second), want: models.SLAApproaching},
		{name: "just before the deadline", now: deadline.Add(-time.Second), want: models.SLAApproaching},
		{name: "past the deadline", now: deadline.Add(time.Second), want: models.SLABreached},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, manager.slaStatus(execution, tt.now))
		})
	}
}

func TestSLAApproachingFractionConfigurable(t *testing.T) {
	manager, _ := newTestManager(t, Config{SLAApproachingFraction: 0.5})

	started := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	deadline := started.Add(time.Hour)

	execution := &models.WorkflowExecution{
		Status:      models.ExecutionStatusRunning,
		StartedAt:   started,
		SLADeadline: &deadline,
	}

	assert.Equal(t, models.SLAWithin, manager.slaStatus(execution, started.Add(20*time.Minute)))
	assert.Equal(t, models.SLAApproaching, manager.slaStatus(execution, started.Add(40*time.Minute)))
}

func TestTerminalTransitionReleasesLock(t *testing.T) {
	manager, _ := newTestManager(t, Config{})
	execution := startExecution(t, manager)
	ctx := context.Background()

	_, err := manager.RecordStepTransition(ctx, testOrg, execution.ID, "capture", models.StepStatusInProgress, nil)
	require.NoError(t, err)

	manager.mu.Lock()
	_, held := manager.locks[execution.ID]
	manager.mu.Unlock()
	require.True(t, held)

	require.NoError(t, manager.Cancel(ctx, testOrg, execution.ID, "operator request"))

	manager.mu.Lock()
	_, held = manager.locks[execution.ID]
	manager.mu.Unlock()
	assert.False(t, held, "terminal execution must not retain its lock")

	assert.ErrorIs(t, manager.Cancel(ctx, testOrg, execution.ID, "again"), ErrExecutionTerminal)
}
