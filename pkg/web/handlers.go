// Package web provides the HTTP handlers for orchestration, approvals,
// executions, and trigger suggestion.
package web

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/flowsmith/flowsmith/pkg/agents"
	"github.com/flowsmith/flowsmith/pkg/approval"
	"github.com/flowsmith/flowsmith/pkg/execution"
	"github.com/flowsmith/flowsmith/pkg/log"
	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/orchestrator"
	"github.com/flowsmith/flowsmith/pkg/persistence"
	"github.com/flowsmith/flowsmith/pkg/triggermap"
	"github.com/flowsmith/flowsmith/pkg/webhook"
)

const organizationHeader = "X-Organization-Id"

type APIHandlers struct {
	orchestrator *orchestrator.Orchestrator
	registry     *agents.Registry
	approvals    approval.Store
	webhooks     *webhook.Processor
	executions   *execution.Manager
	mapper       *triggermap.Mapper
	persistence  persistence.Persistence
	validator    *validator.Validate
	logger       *slog.Logger
}

func NewAPIHandlers(
	orch *orchestrator.Orchestrator,
	registry *agents.Registry,
	approvals approval.Store,
	webhooks *webhook.Processor,
	executions *execution.Manager,
	mapper *triggermap.Mapper,
	p persistence.Persistence,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		orchestrator: orch,
		registry:     registry,
		approvals:    approvals,
		webhooks:     webhooks,
		executions:   executions,
		mapper:       mapper,
		persistence:  p,
		validator:    validate,
		logger:       log.WithModule("web"),
	}
}

func (h *APIHandlers) organizationID(c fiber.Ctx) string {
	return c.Get(organizationHeader)
}

// HandleApproval multiplexes the approval actions over one endpoint.
func (h *APIHandlers) HandleApproval(c fiber.Ctx) error {
	var req ApprovalActionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Context()

	switch req.Action {
	case "submit_approval":
		if req.StepID == "" {
			return badRequest(c, "stepId is required")
		}

		request := &models.ApprovalRequest{
			SessionID: req.SessionID,
			StepID:    req.StepID,
			Step:      req.Step,
		}
		if err := h.approvals.Put(ctx, request); err != nil {
			return handleServiceError(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(request)

	case "respond_approval":
		if req.StepID == "" {
			return badRequest(c, "stepId is required")
		}
		if req.Approved == nil {
			return badRequest(c, "approved is required")
		}

		resolved, err := h.approvals.Resolve(ctx, req.SessionID, req.StepID, *req.Approved)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(resolved)

	case "check_approval":
		if req.StepID == "" {
			return badRequest(c, "stepId is required")
		}

		request, err := h.approvals.Get(ctx, req.SessionID, req.StepID)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(request)

	case "get_pending":
		pending, err := h.approvals.Pending(ctx, req.SessionID)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(fiber.Map{"pending": pending, "count": len(pending)})

	default:
		return badRequest(c, "unknown action: "+req.Action)
	}
}

// diagnosticRoutes maps testType values onto (role, tool) pairs.
var diagnosticRoutes = map[string]struct {
	role models.AgentRole
	tool string
}{
	"generate_workflow": {models.RoleDesign, "generate_workflow"},
	"patch_workflow":    {models.RoleDesign, "patch_workflow"},
	"check_design":      {models.RoleDesign, "check_design"},
	"scan_code":         {models.RoleSecurity, "scan_code"},
	"detect_secrets":    {models.RoleSecurity, "detect_secrets"},
	"check_compliance":  {models.RoleSecurity, "check_compliance"},
	"check_integration": {models.RoleIntegration, "check_integration"},
	"review_quality":    {models.RoleQuality, "review_quality"},
	"lint_workflow":     {models.RoleQuality, "lint_workflow"},
	"classify_intent":   {models.RoleOrchestration, "classify_intent"},
	"merge_results":     {models.RoleOrchestration, "merge_results"},
}

// HandleDiagnostic invokes a single agent tool or orchestration path in
// isolation, for debugging and smoke checks.
func (h *APIHandlers) HandleDiagnostic(c fiber.Ctx) error {
	var req DiagnosticRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	actx := models.AgentContext{
		OrganizationID: h.organizationID(c),
		UserID:         "diagnostic",
		SessionID:      "diagnostic-" + time.Now().UTC().Format("20060102150405"),
	}

	switch req.TestType {
	case "process_message":
		message, _ := req.Payload["message"].(string)
		if message == "" {
			return badRequest(c, "payload.message is required")
		}

		result, err := h.orchestrator.ProcessMessage(c.Context(), message, actx)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(result)

	case "suggest_triggers":
		description, _ := req.Payload["description"].(string)
		if description == "" {
			return badRequest(c, "payload.description is required")
		}

		return c.JSON(h.mapper.SuggestTriggers(description))

	case "validate_realtime":
		validationType, _ := req.Payload["validationType"].(string)
		if validationType == "" {
			return badRequest(c, "payload.validationType is required")
		}
		workflow, _ := req.Payload["workflow"].(map[string]any)

		validation, err := h.orchestrator.ValidateRealtime(c.Context(), workflow, actx, validationType)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(validation)

	case "suggest_integrations":
		description, _ := req.Payload["description"].(string)
		if description == "" {
			return badRequest(c, "payload.description is required")
		}

		integrations, err := h.orchestrator.SuggestIntegrations(c.Context(), description, actx)
		if err != nil {
			return handleServiceError(c, err)
		}

		return c.JSON(fiber.Map{"integrations": integrations})
	}

	route, ok := diagnosticRoutes[req.TestType]
	if !ok {
		return badRequest(c, "unknown testType: "+req.TestType)
	}

	agent, err := h.registry.ByRole(route.role)
	if err != nil {
		return handleServiceError(c, err)
	}

	result, err := agent.Invoke(c.Context(), route.tool, req.Payload, actx)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(models.AgentResponse{Role: route.role, Tool: route.tool, AgentResult: *result})
}

// HandleWebhook accepts any method and hands the delivery to the processor.
func (h *APIHandlers) HandleWebhook(c fiber.Ctx) error {
	triggerID := c.Params("triggerId")
	organizationID := h.organizationID(c)
	if organizationID == "" {
		return badRequest(c, organizationHeader+" header is required")
	}

	headers := make(map[string]string)
	for name, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	result, err := h.webhooks.ProcessWebhook(c.Context(), organizationID, triggerID, c.Method(), headers, c.Body())
	if err != nil {
		if webhook.IsValidationError(err) {
			return c.Status(fiber.StatusNotFound).JSON(result)
		}

		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// HandleOrchestrate runs one orchestration round for a chat message.
func (h *APIHandlers) HandleOrchestrate(c fiber.Ctx) error {
	var req OrchestrateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.orchestrator.ProcessMessage(c.Context(), req.Message, req.Context)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(result)
}

// HandleSuggestTriggers ranks trigger templates for a description, with the
// proactive setup questions for the top candidate.
func (h *APIHandlers) HandleSuggestTriggers(c fiber.Ctx) error {
	var req SuggestTriggersRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}
	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	suggestion := h.mapper.SuggestTriggers(req.Description)

	var questions []string
	if len(suggestion.Candidates) > 0 {
		questions = h.mapper.GenerateProactiveQuestions(req.Description, suggestion.Candidates[0].Template)
	}

	return c.JSON(fiber.Map{
		"suggestion": suggestion,
		"questions":  questions,
	})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	organizationID := h.organizationID(c)
	if organizationID == "" {
		return badRequest(c, organizationHeader+" header is required")
	}

	record, err := h.persistence.ExecutionByID(c.Context(), organizationID, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetExecutionMetrics(c fiber.Ctx) error {
	organizationID := h.organizationID(c)
	if organizationID == "" {
		return badRequest(c, organizationHeader+" header is required")
	}

	metrics, err := h.executions.ComputeMetrics(c.Context(), organizationID, c.Params("id"))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(metrics)
}

func (h *APIHandlers) PauseExecution(c fiber.Ctx) error {
	return h.executionAction(c, func(organizationID, id string) error {
		return h.executions.Pause(c.Context(), organizationID, id)
	})
}

func (h *APIHandlers) ResumeExecution(c fiber.Ctx) error {
	return h.executionAction(c, func(organizationID, id string) error {
		return h.executions.Resume(c.Context(), organizationID, id)
	})
}

func (h *APIHandlers) CancelExecution(c fiber.Ctx) error {
	var req CancelExecutionRequest
	// Body is optional for cancellation.
	_ = c.Bind().JSON(&req)

	return h.executionAction(c, func(organizationID, id string) error {
		return h.executions.Cancel(c.Context(), organizationID, id, req.Reason)
	})
}

func (h *APIHandlers) executionAction(c fiber.Ctx, action func(organizationID, id string) error) error {
	organizationID := h.organizationID(c)
	if organizationID == "" {
		return badRequest(c, organizationHeader+" header is required")
	}

	id := c.Params("id")
	if err := action(organizationID, id); err != nil {
		return handleServiceError(c, err)
	}

	record, err := h.persistence.ExecutionByID(c.Context(), organizationID, id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "healthy"})
}
