// Package execution tracks the lifecycle of workflow executions and their
// step-level audit trail.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowsmith/flowsmith/pkg/eventbus"
	"github.com/flowsmith/flowsmith/pkg/events"
	"github.com/flowsmith/flowsmith/pkg/log"
	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/persistence"
)

// Config tunes execution tracking. Zero values disable SLA tracking.
type Config struct {
	// DefaultSLA is applied to new executions when > 0.
	DefaultSLA time.Duration

	// SLAApproachingFraction is the tail fraction of the SLA window during
	// which status reads "approaching". Defaults to 0.1.
	SLAApproachingFraction float64
}

// Manager owns execution state transitions. All mutations go through a
// per-execution lock so concurrent step transitions for different steps are
// safe and same-step races are serialized with a single winner.
type Manager struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	config      Config
	logger      *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(p persistence.Persistence, publisher eventbus.EventPublisher, config Config) *Manager {
	if config.SLAApproachingFraction <= 0 {
		config.SLAApproachingFraction = 0.1
	}

	return &Manager{
		persistence: p,
		publisher:   publisher,
		config:      config,
		logger:      log.WithModule("execution"),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockFor(executionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.locks[executionID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[executionID] = l
	}

	return l
}

// releaseLock drops the per-execution mutex once the execution is terminal.
// Terminal executions reject every further mutation, so a late caller that
// recreates the entry can only read and fail.
func (m *Manager) releaseLock(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, executionID)
}

// StartExecution creates a running execution for the workflow and publishes
// an execution-started event. The organization comes from the initiator
// context.
func (m *Manager) StartExecution(ctx context.Context, workflowID string, initiator models.InitiatorContext) (*models.WorkflowExecution, error) {
	now := time.Now().UTC()

	execution := &models.WorkflowExecution{
		ID:              uuid.New().String(),
		WorkflowID:      workflowID,
		WorkflowVersion: 1,
		OrganizationID:  initiator.OrganizationID,
		Status:          models.ExecutionStatusRunning,
		Context:         initiator,
		StartedAt:       now,
	}
	if m.config.DefaultSLA > 0 {
		deadline := now.Add(m.config.DefaultSLA)
		execution.SLADeadline = &deadline
	}

	if err := m.persistence.SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("saving execution: %w", err)
	}

	event := events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, initiator.OrganizationID),
		ExecutionID: execution.ID,
		WorkflowID:  workflowID,
		TriggerType: initiator.TriggerType,
		Initiator:   initiator.UserID,
	}
	if err := m.publisher.Publish(ctx, execution.ID, event); err != nil {
		m.logger.ErrorContext(ctx, "publishing execution started event",
			"execution_id", execution.ID, "error", err)
	}

	m.logger.InfoContext(ctx, "execution started",
		"execution_id", execution.ID, "workflow_id", workflowID)

	return execution, nil
}

// RecordStepTransition applies one step status change and appends it to the
// audit trail. A step already in a terminal status rejects every further
// transition with StaleTransitionError; the stored record is never mutated
// after that point.
func (m *Manager) RecordStepTransition(ctx context.Context, organizationID, executionID, stepID string, status models.StepStatus, output map[string]any) (*models.StepExecution, error) {
	lock := m.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	execution, err := m.persistence.ExecutionByID(ctx, organizationID, executionID)
	if err != nil {
		return nil, err
	}
	if execution.Status.IsTerminal() {
		return nil, ErrExecutionTerminal
	}

	now := time.Now().UTC()

	step, exists := execution.StepFor(stepID)
	if !exists {
		step = &models.StepExecution{
			ID:     uuid.New().String(),
			StepID: stepID,
			Status: models.StepStatusPending,
		}
		execution.Steps = append(execution.Steps, step)
	}

	if step.Status.IsTerminal() {
		return nil, &StaleTransitionError{
			ExecutionID: executionID,
			StepID:      stepID,
			Current:     step.Status,
			Attempted:   status,
		}
	}
	if !stepTransitionAllowed(step.Status, status) {
		return nil, &InvalidTransitionError{
			ExecutionID: executionID,
			StepID:      stepID,
			From:        string(step.Status),
			To:          string(status),
		}
	}

	step.Status = status
	if status == models.StepStatusInProgress && step.StartedAt == nil {
		step.StartedAt = &now
	}
	if status.IsTerminal() {
		step.CompletedAt = &now
		if len(output) > 0 {
			step.Output = output
		}
	}

	execution.CurrentStepIDs = currentSteps(execution)

	if err := m.persistence.SaveExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("saving execution: %w", err)
	}

	event := events.StepTransitioned{
		BaseEvent:   events.NewBaseEvent(events.StepTransitionedEvent, organizationID),
		ExecutionID: executionID,
		StepID:      stepID,
		Status:      status,
		Output:      output,
		DurationMs:  step.Duration().Milliseconds(),
	}
	if err := m.publisher.Publish(ctx, executionID, event); err != nil {
		m.logger.ErrorContext(ctx, "publishing step transition event",
			"execution_id", executionID, "step_id", stepID, "error", err)
	}

	return step, nil
}

func stepTransitionAllowed(from, to models.StepStatus) bool {
	switch from {
	case models.StepStatusPending:
		return to == models.StepStatusInProgress || to == models.StepStatusSkipped
	case models.StepStatusInProgress:
		return to == models.StepStatusCompleted || to == models.StepStatusFailed || to == models.StepStatusSkipped
	}

	return false
}

func currentSteps(execution *models.WorkflowExecution) []string {
	var ids []string
	for _, s := range execution.Steps {
		if s.Status == models.StepStatusInProgress {
			ids = append(ids, s.StepID)
		}
	}

	return ids
}

// Pause moves a running execution to paused.
func (m *Manager) Pause(ctx context.Context, organizationID, executionID string) error {
	return m.transition(ctx, organizationID, executionID, func(execution *models.WorkflowExecution, now time.Time) (eventbus.Event, error) {
		if execution.Status != models.ExecutionStatusRunning {
			return nil, &InvalidTransitionError{
				ExecutionID: executionID,
				From:        string(execution.Status),
				To:          string(models.ExecutionStatusPaused),
			}
		}
		execution.Status = models.ExecutionStatusPaused
		execution.PausedAt = &now

		return events.ExecutionPaused{
			BaseEvent:   events.NewBaseEvent(events.ExecutionPausedEvent, organizationID),
			ExecutionID: executionID,
		}, nil
	})
}

// Resume moves a paused execution back to running.
func (m *Manager) Resume(ctx context.Context, organizationID, executionID string) error {
	return m.transition(ctx, organizationID, executionID, func(execution *models.WorkflowExecution, now time.Time) (eventbus.Event, error) {
		if execution.Status != models.ExecutionStatusPaused {
			return nil, ErrExecutionNotPaused
		}

		var pausedMs int64
		if execution.PausedAt != nil {
			pausedMs = now.Sub(*execution.PausedAt).Milliseconds()
		}
		execution.Status = models.ExecutionStatusRunning
		execution.PausedAt = nil

		return events.ExecutionResumed{
			BaseEvent:       events.NewBaseEvent(events.ExecutionResumedEvent, organizationID),
			ExecutionID:     executionID,
			PauseDurationMs: pausedMs,
		}, nil
	})
}

// Cancel terminates a running or paused execution.
func (m *Manager) Cancel(ctx context.Context, organizationID, executionID, reason string) error {
	return m.transition(ctx, organizationID, executionID, func(execution *models.WorkflowExecution, now time.Time) (eventbus.Event, error) {
		if execution.Status.IsTerminal() {
			return nil, ErrExecutionTerminal
		}
		execution.Status = models.ExecutionStatusCancelled
		execution.CompletedAt = &now

		return events.ExecutionCancelled{
			BaseEvent:   events.NewBaseEvent(events.ExecutionCancelledEvent, organizationID),
			ExecutionID: executionID,
			Reason:      reason,
		}, nil
	})
}

// Complete marks a running execution completed.
func (m *Manager) Complete(ctx context.Context, organizationID, executionID string) error {
	return m.transition(ctx, organizationID, executionID, func(execution *models.WorkflowExecution, now time.Time) (eventbus.Event, error) {
		if execution.Status != models.ExecutionStatusRunning {
			return nil, &InvalidTransitionError{
				ExecutionID: executionID,
				From:        string(execution.Status),
				To:          string(models.ExecutionStatusCompleted),
			}
		}
		execution.Status = models.ExecutionStatusCompleted
		execution.CompletedAt = &now

		return events.ExecutionCompleted{
			BaseEvent:     events.NewBaseEvent(events.ExecutionCompletedEvent, organizationID),
			ExecutionID:   executionID,
			WorkflowID:    execution.WorkflowID,
			DurationMs:    now.Sub(execution.StartedAt).Milliseconds(),
			StepsExecuted: len(execution.Steps),
		}, nil
	})
}

// Fail marks a running execution failed, recording the step that caused it.
func (m *Manager) Fail(ctx context.Context, organizationID, executionID, stepID, reason string) error {
	return m.transition(ctx, organizationID, executionID, func(execution *models.WorkflowExecution, now time.Time) (eventbus.Event, error) {
		if execution.Status.IsTerminal() {
			return nil, ErrExecutionTerminal
		}
		execution.Status = models.ExecutionStatusFailed
		execution.CompletedAt = &now

		return events.ExecutionFailed{
			BaseEvent:   events.NewBaseEvent(events.ExecutionFailedEvent, organizationID),
			ExecutionID: executionID,
			WorkflowID:  execution.WorkflowID,
			StepID:      stepID,
			Error:       reason,
			DurationMs:  now.Sub(execution.StartedAt).Milliseconds(),
		}, nil
	})
}

func (m *Manager) transition(ctx context.Context, organizationID, executionID string, apply func(*models.WorkflowExecution, time.Time) (eventbus.Event, error)) error {
	lock := m.lockFor(executionID)
	lock.Lock()
	defer lock.Unlock()

	execution, err := m.persistence.ExecutionByID(ctx, organizationID, executionID)
	if err != nil {
		return err
	}

	event, err := apply(execution, time.Now().UTC())
	if err != nil {
		return err
	}

	if err := m.persistence.SaveExecution(ctx, execution); err != nil {
		return fmt.Errorf("saving execution: %w", err)
	}

	if execution.Status.IsTerminal() {
		m.releaseLock(executionID)
	}

	if err := m.publisher.Publish(ctx, executionID, event); err != nil {
		m.logger.ErrorContext(ctx, "publishing execution lifecycle event",
			"execution_id", executionID, "event_type", event.GetType(), "error", err)
	}

	m.logger.InfoContext(ctx, "execution transitioned",
		"execution_id", executionID, "status", execution.Status)

	return nil
}

// RegisterHandlers subscribes the manager to trigger-fired events so fired
// triggers start executions.
func (m *Manager) RegisterHandlers(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.TriggerFiredEvent, func(ctx context.Context, event interface{}) error {
		fired, ok := event.(*events.TriggerFired)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		initiator := models.InitiatorContext{
			TriggerID:      fired.TriggerID,
			TriggerType:    fired.TriggerType,
			Data:           fired.TriggerData,
			OrganizationID: fired.OrganizationID,
		}

		if _, err := m.StartExecution(ctx, fired.WorkflowID, initiator); err != nil {
			return fmt.Errorf("starting execution for trigger %s: %w", fired.TriggerID, err)
		}

		if err := m.persistence.RecordTriggerUsage(ctx, fired.OrganizationID, fired.TriggerID); err != nil {
			m.logger.ErrorContext(ctx, "recording trigger usage",
				"trigger_id", fired.TriggerID, "error", err)
		}

		return nil
	})
}
