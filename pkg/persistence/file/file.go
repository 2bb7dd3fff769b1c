// Package file provides a file-based persistence implementation for local
// development and tests.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
// Records are stored as JSON documents under <root>/<org>/<kind>/<id>.json.
type Persistence struct {
	root string
	mu   sync.Mutex // serializes usage-counter read-modify-write
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{root: cleanRoot}
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) dir(organizationID, kind string) string {
	return filepath.Join(p.root, organizationID, kind)
}

func writeDoc(path string, doc any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

func readDoc(path string, doc any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("failed to read document: %w", err)
	}

	if err := json.Unmarshal(data, doc); err != nil {
		return false, fmt.Errorf("failed to unmarshal document: %w", err)
	}

	return true, nil
}

func listIDs(dir string) ([]string, error) {
	root := os.DirFS(dir)

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, f := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(f, ".json"))
	}

	return ids, nil
}

func (p *Persistence) TriggerTemplates(_ context.Context, organizationID string) ([]*models.TriggerTemplate, error) {
	dir := p.dir(organizationID, "trigger_templates")

	ids, err := listIDs(dir)
	if err != nil {
		return []*models.TriggerTemplate{}, nil
	}

	templates := make([]*models.TriggerTemplate, 0, len(ids))

	for _, id := range ids {
		var t models.TriggerTemplate

		found, err := readDoc(filepath.Join(dir, id+".json"), &t)
		if err != nil {
			return nil, err
		}

		if found {
			templates = append(templates, &t)
		}
	}

	return templates, nil
}

func (p *Persistence) TriggerTemplateByID(_ context.Context, organizationID, id string) (*models.TriggerTemplate, error) {
	var t models.TriggerTemplate

	found, err := readDoc(filepath.Join(p.dir(organizationID, "trigger_templates"), id+".json"), &t)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrTemplateNotFound
	}

	return &t, nil
}

func (p *Persistence) SaveTriggerTemplate(_ context.Context, organizationID string, template *models.TriggerTemplate) error {
	return writeDoc(filepath.Join(p.dir(organizationID, "trigger_templates"), template.ID+".json"), template)
}

func (p *Persistence) WorkflowTriggers(_ context.Context, organizationID string) ([]*models.WorkflowTrigger, error) {
	dir := p.dir(organizationID, "triggers")

	ids, err := listIDs(dir)
	if err != nil {
		return []*models.WorkflowTrigger{}, nil
	}

	triggers := make([]*models.WorkflowTrigger, 0, len(ids))

	for _, id := range ids {
		var t models.WorkflowTrigger

		found, err := readDoc(filepath.Join(dir, id+".json"), &t)
		if err != nil {
			return nil, err
		}

		if found {
			triggers = append(triggers, &t)
		}
	}

	return triggers, nil
}

func (p *Persistence) WorkflowTriggerByID(_ context.Context, organizationID, id string) (*models.WorkflowTrigger, error) {
	var t models.WorkflowTrigger

	found, err := readDoc(filepath.Join(p.dir(organizationID, "triggers"), id+".json"), &t)
	if err != nil {
		return nil, &persistence.TriggerError{Op: "GetByID", OrganizationID: organizationID, TriggerID: id, Err: err}
	}

	if !found {
		return nil, persistence.ErrTriggerNotFound
	}

	return &t, nil
}

func (p *Persistence) SaveWorkflowTrigger(_ context.Context, trigger *models.WorkflowTrigger) error {
	return writeDoc(filepath.Join(p.dir(trigger.OrganizationID, "triggers"), trigger.ID+".json"), trigger)
}

func (p *Persistence) DeleteWorkflowTrigger(_ context.Context, organizationID, id string) error {
	err := os.Remove(filepath.Join(p.dir(organizationID, "triggers"), id+".json"))
	if os.IsNotExist(err) {
		return persistence.ErrTriggerNotFound
	}

	return err
}

func (p *Persistence) Executions(_ context.Context, organizationID string) ([]*models.WorkflowExecution, error) {
	dir := p.dir(organizationID, "executions")

	ids, err := listIDs(dir)
	if err != nil {
		return []*models.WorkflowExecution{}, nil
	}

	executions := make([]*models.WorkflowExecution, 0, len(ids))

	for _, id := range ids {
		var e models.WorkflowExecution

		found, err := readDoc(filepath.Join(dir, id+".json"), &e)
		if err != nil {
			return nil, err
		}

		if found {
			executions = append(executions, &e)
		}
	}

	return executions, nil
}

func (p *Persistence) ExecutionByID(_ context.Context, organizationID, id string) (*models.WorkflowExecution, error) {
	var e models.WorkflowExecution

	found, err := readDoc(filepath.Join(p.dir(organizationID, "executions"), id+".json"), &e)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.ErrExecutionNotFound
	}

	return &e, nil
}

func (p *Persistence) SaveExecution(_ context.Context, execution *models.WorkflowExecution) error {
	return writeDoc(filepath.Join(p.dir(execution.OrganizationID, "executions"), execution.ID+".json"), execution)
}

func (p *Persistence) RecordTriggerUsage(_ context.Context, organizationID, triggerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := filepath.Join(p.dir(organizationID, "analytics"), "trigger_usage.json")
	counts := make(map[string]int64)

	if _, err := readDoc(path, &counts); err != nil {
		return err
	}

	counts[triggerID]++

	return writeDoc(path, counts)
}
