// Package schedule runs cron jobs for scheduled workflow triggers and emits
// trigger-fired events to the event bus.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowsmith/flowsmith/pkg/eventbus"
	"github.com/flowsmith/flowsmith/pkg/events"
	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/persistence"
)

var ErrMissingCron = errors.New("scheduled trigger requires a cron expression")

// Source owns one cron runner and a job per active scheduled trigger.
type Source struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger

	mu   sync.Mutex
	cron *cron.Cron
	jobs map[string]cron.EntryID
}

func NewSource(p persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Source {
	return &Source{
		persistence: p,
		publisher:   publisher,
		logger:      logger.With("module", "schedule_source"),
		jobs:        make(map[string]cron.EntryID),
	}
}

// Start loads every active scheduled trigger for the organization and
// registers a cron job for it. Triggers with invalid cron expressions are
// skipped and logged, not fatal.
func (s *Source) Start(ctx context.Context, organizationID string) error {
	triggers, err := s.persistence.WorkflowTriggers(ctx, organizationID)
	if err != nil {
		return fmt.Errorf("loading scheduled triggers: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		s.cron = cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		))
		s.cron.Start()
	}

	for _, trigger := range triggers {
		if trigger.Type != models.TriggerTypeScheduled || !trigger.Active {
			continue
		}
		if err := s.registerLocked(trigger); err != nil {
			s.logger.ErrorContext(ctx, "skipping scheduled trigger",
				"trigger_id", trigger.ID, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "schedule source started",
		"organization_id", organizationID, "jobs", len(s.jobs))

	return nil
}

// Register adds or replaces the cron job for a single trigger. Used when a
// trigger is created or updated while the source is running.
func (s *Source) Register(trigger *models.WorkflowTrigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return errors.New("schedule source is not started")
	}
	return s.registerLocked(trigger)
}

func (s *Source) registerLocked(trigger *models.WorkflowTrigger) error {
	expr, _ := trigger.Configuration["cron"].(string)
	if expr == "" {
		return ErrMissingCron
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}

	if existing, ok := s.jobs[trigger.ID]; ok {
		s.cron.Remove(existing)
	}

	t := *trigger
	id, err := s.cron.AddFunc(expr, func() { s.fire(&t) })
	if err != nil {
		return fmt.Errorf("adding cron job for trigger %s: %w", trigger.ID, err)
	}
	s.jobs[trigger.ID] = id

	return nil
}

// Unregister removes the cron job for a trigger.
func (s *Source) Unregister(triggerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.jobs[triggerID]; ok {
		s.cron.Remove(id)
		delete(s.jobs, triggerID)
	}
}

func (s *Source) fire(trigger *models.WorkflowTrigger) {
	ctx := context.Background()

	event := events.TriggerFired{
		BaseEvent:   events.NewBaseEvent(events.TriggerFiredEvent, trigger.OrganizationID),
		TriggerID:   trigger.ID,
		WorkflowID:  trigger.WorkflowID,
		TriggerType: models.TriggerTypeScheduled,
		TriggerData: map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}

	if err := s.publisher.Publish(ctx, trigger.WorkflowID, event); err != nil {
		s.logger.ErrorContext(ctx, "publishing trigger fired event",
			"trigger_id", trigger.ID, "error", err)
		return
	}

	s.logger.InfoContext(ctx, "scheduled trigger fired", "trigger_id", trigger.ID)
}

// Stop halts the cron runner and waits for running jobs to finish.
func (s *Source) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.cron = nil
	s.jobs = make(map[string]cron.EntryID)

	return nil
}
