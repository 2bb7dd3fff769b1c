package execution

import (
	"context"
	"time"

	"github.com/flowsmith/flowsmith/pkg/models"
)

// ComputeMetrics derives progress, duration, and SLA health from an
// execution's step records. Metrics are computed on demand and never stored.
func (m *Manager) ComputeMetrics(ctx context.Context, organizationID, executionID string) (*models.ExecutionMetrics, error) {
	execution, err := m.persistence.ExecutionByID(ctx, organizationID, executionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	metrics := &models.ExecutionMetrics{
		ExecutionID:  executionID,
		StatusCounts: make(map[models.StepStatus]int),
	}

	var terminal int
	var completedDurations time.Duration
	var completedCount int
	for _, step := range execution.Steps {
		metrics.StatusCounts[step.Status]++
		if step.Status.IsTerminal() {
			terminal++
		}
		if step.Status == models.StepStatusCompleted {
			completedDurations += step.Duration()
			completedCount++
		}
	}

	if len(execution.Steps) > 0 {
		metrics.ProgressPercent = float64(terminal) / float64(len(execution.Steps)) * 100
	}
	if completedCount > 0 {
		metrics.AvgStepDuration = completedDurations / time.Duration(completedCount)
	}

	if execution.CompletedAt != nil {
		metrics.TotalDuration = execution.CompletedAt.Sub(execution.StartedAt)
	} else {
		metrics.TotalDuration = now.Sub(execution.StartedAt)
	}

	metrics.SLAStatus = m.slaStatus(execution, now)

	// Linear extrapolation: remaining steps at the observed average pace.
	if !execution.Status.IsTerminal() && completedCount > 0 {
		remaining := len(execution.Steps) - terminal
		if remaining > 0 {
			eta := now.Add(time.Duration(remaining) * metrics.AvgStepDuration)
			metrics.EstimatedCompletion = &eta
		}
	}

	return metrics, nil
}

func (m *Manager) slaStatus(execution *models.WorkflowExecution, now time.Time) models.SLAStatus {
	if execution.SLADeadline == nil {
		return models.SLAWithin
	}
	if execution.Status.IsTerminal() {
		end := execution.StartedAt
		if execution.CompletedAt != nil {
			end = *execution.CompletedAt
		}
		if end.After(*execution.SLADeadline) {
			return models.SLABreached
		}

		return models.SLAWithin
	}

	if now.After(*execution.SLADeadline) {
		return models.SLABreached
	}

	window := execution.SLADeadline.Sub(execution.StartedAt)
	tail := time.Duration(float64(window) * m.config.SLAApproachingFraction)
	if now.After(execution.SLADeadline.Add(-tail)) {
		return models.SLAApproaching
	}

	return models.SLAWithin
}
