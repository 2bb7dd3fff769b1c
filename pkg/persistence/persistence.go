package persistence

import (
	"context"

	"github.com/flowsmith/flowsmith/pkg/models"
)

// Persistence is the storage boundary for the orchestration core. Every query
// is scoped by an organization identifier; the core never issues an unscoped
// query.
type Persistence interface {
	// Trigger template catalogue (admin-managed reference data).
	TriggerTemplates(ctx context.Context, organizationID string) ([]*models.TriggerTemplate, error)
	TriggerTemplateByID(ctx context.Context, organizationID, id string) (*models.TriggerTemplate, error)
	SaveTriggerTemplate(ctx context.Context, organizationID string, template *models.TriggerTemplate) error

	// Configured workflow triggers.
	WorkflowTriggers(ctx context.Context, organizationID string) ([]*models.WorkflowTrigger, error)
	WorkflowTriggerByID(ctx context.Context, organizationID, id string) (*models.WorkflowTrigger, error)
	SaveWorkflowTrigger(ctx context.Context, trigger *models.WorkflowTrigger) error
	DeleteWorkflowTrigger(ctx context.Context, organizationID, id string) error

	// Workflow execution records (steps are embedded in the execution).
	Executions(ctx context.Context, organizationID string) ([]*models.WorkflowExecution, error)
	ExecutionByID(ctx context.Context, organizationID, id string) (*models.WorkflowExecution, error)
	SaveExecution(ctx context.Context, execution *models.WorkflowExecution) error

	// Usage analytics counters.
	RecordTriggerUsage(ctx context.Context, organizationID, triggerID string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
