// Package postgresql provides a PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/persistence"
	"github.com/flowsmith/flowsmith/pkg/persistence/sqlbase"

	_ "github.com/lib/pq"
)

// Persistence implements persistence.Persistence on PostgreSQL. Trigger
// templates, triggers and executions are stored as JSONB documents keyed by
// (organization_id, id) so every query stays organization-scoped.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &Persistence{
		db:     database,
		logger: logger.With("module", "postgres_persistence"),
	}

	migrationManager := sqlbase.NewMigrationManager(p.logger, database, migrations())
	if err := migrationManager.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.InfoContext(ctx, "PostgreSQL persistence initialized")

	return p, nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS trigger_templates (
				organization_id TEXT NOT NULL,
				id TEXT NOT NULL,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (organization_id, id)
			);

			CREATE TABLE IF NOT EXISTS workflow_triggers (
				organization_id TEXT NOT NULL,
				id TEXT NOT NULL,
				workflow_id TEXT NOT NULL,
				trigger_type TEXT NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				document JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
				PRIMARY KEY (organization_id, id)
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_triggers_workflow
				ON workflow_triggers (organization_id, workflow_id);

			CREATE TABLE IF NOT EXISTS workflow_executions (
				organization_id TEXT NOT NULL,
				id TEXT NOT NULL,
				workflow_id TEXT NOT NULL,
				status TEXT NOT NULL,
				document JSONB NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (organization_id, id)
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_executions_status
				ON workflow_executions (organization_id, status);

			CREATE TABLE IF NOT EXISTS trigger_usage (
				organization_id TEXT NOT NULL,
				trigger_id TEXT NOT NULL,
				fired_count BIGINT NOT NULL DEFAULT 0,
				last_fired_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (organization_id, trigger_id)
			);
		`,
	}
}

func (p *Persistence) Close(_ context.Context) error {
	return p.db.Close()
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Persistence) TriggerTemplates(ctx context.Context, organizationID string) ([]*models.TriggerTemplate, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT document FROM trigger_templates WHERE organization_id = $1 ORDER BY id", organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trigger templates: %w", err)
	}
	defer rows.Close()

	templates := make([]*models.TriggerTemplate, 0)

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan trigger template: %w", err)
		}

		var t models.TriggerTemplate
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("failed to decode trigger template: %w", err)
		}

		templates = append(templates, &t)
	}

	return templates, rows.Err()
}

func (p *Persistence) TriggerTemplateByID(ctx context.Context, organizationID, id string) (*models.TriggerTemplate, error) {
	var doc []byte

	err := p.db.QueryRowContext(ctx,
		"SELECT document FROM trigger_templates WHERE organization_id = $1 AND id = $2",
		organizationID, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrTemplateNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query trigger template: %w", err)
	}

	var t models.TriggerTemplate
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("failed to decode trigger template: %w", err)
	}

	return &t, nil
}

func (p *Persistence) SaveTriggerTemplate(ctx context.Context, organizationID string, template *models.TriggerTemplate) error {
	doc, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("failed to encode trigger template: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO trigger_templates (organization_id, id, document)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, id)
		DO UPDATE SET document = EXCLUDED.document, updated_at = NOW()
	`, organizationID, template.ID, doc)
	if err != nil {
		return fmt.Errorf("failed to save trigger template: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowTriggers(ctx context.Context, organizationID string) ([]*models.WorkflowTrigger, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT document FROM workflow_triggers WHERE organization_id = $1 ORDER BY id", organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow triggers: %w", err)
	}
	defer rows.Close()

	triggers := make([]*models.WorkflowTrigger, 0)

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan workflow trigger: %w", err)
		}

		var t models.WorkflowTrigger
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("failed to decode workflow trigger: %w", err)
		}

		triggers = append(triggers, &t)
	}

	return triggers, rows.Err()
}

func (p *Persistence) WorkflowTriggerByID(ctx context.Context, organizationID, id string) (*models.WorkflowTrigger, error) {
	var doc []byte

	err := p.db.QueryRowContext(ctx,
		"SELECT document FROM workflow_triggers WHERE organization_id = $1 AND id = $2",
		organizationID, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrTriggerNotFound
	}

	if err != nil {
		return nil, &persistence.TriggerError{Op: "GetByID", OrganizationID: organizationID, TriggerID: id, Err: err}
	}

	var t models.WorkflowTrigger
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("failed to decode workflow trigger: %w", err)
	}

	return &t, nil
}

func (p *Persistence) SaveWorkflowTrigger(ctx context.Context, trigger *models.WorkflowTrigger) error {
	now := time.Now().UTC()
	if trigger.CreatedAt.IsZero() {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now

	doc, err := json.Marshal(trigger)
	if err != nil {
		return fmt.Errorf("failed to encode workflow trigger: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO workflow_triggers (organization_id, id, workflow_id, trigger_type, active, document)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, id)
		DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			trigger_type = EXCLUDED.trigger_type,
			active = EXCLUDED.active,
			document = EXCLUDED.document,
			updated_at = NOW()
	`, trigger.OrganizationID, trigger.ID, trigger.WorkflowID, string(trigger.Type), trigger.Active, doc)
	if err != nil {
		return fmt.Errorf("failed to save workflow trigger: %w", err)
	}

	return nil
}

func (p *Persistence) DeleteWorkflowTrigger(ctx context.Context, organizationID, id string) error {
	result, err := p.db.ExecContext(ctx,
		"DELETE FROM workflow_triggers WHERE organization_id = $1 AND id = $2", organizationID, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow trigger: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return persistence.ErrTriggerNotFound
	}

	return nil
}

func (p *Persistence) Executions(ctx context.Context, organizationID string) ([]*models.WorkflowExecution, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT document FROM workflow_executions WHERE organization_id = $1 ORDER BY started_at DESC", organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		var e models.WorkflowExecution
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("failed to decode execution: %w", err)
		}

		executions = append(executions, &e)
	}

	return executions, rows.Err()
}

func (p *Persistence) ExecutionByID(ctx context.Context, organizationID, id string) (*models.WorkflowExecution, error) {
	var doc []byte

	err := p.db.QueryRowContext(ctx,
		"SELECT document FROM workflow_executions WHERE organization_id = $1 AND id = $2",
		organizationID, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrExecutionNotFound
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	var e models.WorkflowExecution
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("failed to decode execution: %w", err)
	}

	return &e, nil
}

func (p *Persistence) SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error {
	doc, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to encode execution: %w", err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (organization_id, id, workflow_id, status, document, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id, id)
		DO UPDATE SET
			status = EXCLUDED.status,
			document = EXCLUDED.document,
			completed_at = EXCLUDED.completed_at
	`, execution.OrganizationID, execution.ID, execution.WorkflowID, string(execution.Status), doc,
		execution.StartedAt, execution.CompletedAt)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

func (p *Persistence) RecordTriggerUsage(ctx context.Context, organizationID, triggerID string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trigger_usage (organization_id, trigger_id, fired_count, last_fired_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (organization_id, trigger_id)
		DO UPDATE SET fired_count = trigger_usage.fired_count + 1, last_fired_at = NOW()
	`, organizationID, triggerID)
	if err != nil {
		return fmt.Errorf("failed to record trigger usage: %w", err)
	}

	return nil
}
