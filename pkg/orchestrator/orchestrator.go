// Package orchestrator coordinates the specialized agents over a chat
// session, applying cost governance and merging results deterministically.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/flowsmith/flowsmith/pkg/agents"
	"github.com/flowsmith/flowsmith/pkg/costgov"
	"github.com/flowsmith/flowsmith/pkg/eventbus"
	"github.com/flowsmith/flowsmith/pkg/events"
	"github.com/flowsmith/flowsmith/pkg/log"
	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/otelhelper"
)

// ErrUnknownValidationType rejects realtime validation requests for a type
// no agent covers.
var ErrUnknownValidationType = errors.New("unknown validation type")

// Options toggles the validation passes of an orchestration round. The zero
// value runs everything.
type Options struct {
	SkipSecurity    bool
	SkipIntegration bool
	SkipQuality     bool
}

// Orchestrator fans one user message out to the agent set and folds the
// responses back into a single result.
type Orchestrator struct {
	registry   *agents.Registry
	governor   *costgov.Governor
	classifier agents.Classifier
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	logger     *slog.Logger
}

func New(registry *agents.Registry, governor *costgov.Governor, classifier agents.Classifier) *Orchestrator {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}

	return &Orchestrator{
		registry:   registry,
		governor:   governor,
		classifier: classifier,
		tracer:     noop.NewTracerProvider().Tracer("orchestrator"),
		logger:     log.WithModule("orchestrator"),
	}
}

// WithTracer attaches a real tracer. Spans are otherwise no-ops.
func (o *Orchestrator) WithTracer(tracer trace.Tracer) *Orchestrator {
	o.tracer = tracer

	return o
}

// WithPublisher attaches an event publisher for orchestration analytics.
func (o *Orchestrator) WithPublisher(publisher eventbus.EventPublisher) *Orchestrator {
	o.publisher = publisher

	return o
}

// ProcessMessage runs one orchestration round: classify the intent, run the
// design agent, then fan out to the validation agents concurrently, then
// merge in canonical role order. Per-agent failures are recorded in the
// result, never propagated; running out of budget finalizes the round with
// whatever completed.
func (o *Orchestrator) ProcessMessage(ctx context.Context, message string, actx models.AgentContext) (*models.OrchestrationResult, error) {
	start := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.process_message",
		attribute.String(otelhelper.SessionIDKey, actx.SessionID),
		attribute.String(otelhelper.OrganizationIDKey, actx.OrganizationID),
	)
	defer span.End()

	o.governor.Configure(actx.SessionID, actx.ApprovalMode, actx.MaxCost)

	intent := o.classifier.Classify(message, actx.History)
	span.SetAttributes(attribute.String(otelhelper.IntentKey, string(intent)))

	result := &models.OrchestrationResult{Intent: intent}

	// Phase 1: design. A validation round reviews what already exists and
	// never generates; every other intent produces the artifact downstream
	// agents validate.
	var designResponse *models.AgentResponse

	subject := ""
	if intent == models.IntentValidation {
		subject = lastArtifact(actx.History)
		if subject == "" {
			subject = message
		}
	} else {
		designResponse = o.runDesign(ctx, intent, message, actx, result)

		if designResponse != nil && designResponse.Success {
			if code, ok := designResponse.Data["workflow_code"].(string); ok {
				result.WorkflowCode = code
			}
			if truncated, ok := designResponse.Data["truncated"].(bool); ok && truncated {
				result.Truncated = true
			}
		}
		subject = result.WorkflowCode
	}

	// Phase 2: validation agents run concurrently and join before the merge.
	// Modification and validation rounds work against an existing artifact;
	// neither re-runs integration discovery.
	opts := Options{}
	if intent == models.IntentModification || intent == models.IntentValidation {
		opts.SkipIntegration = true
	}

	responses := o.runValidationPhase(ctx, message, subject, actx, result, opts)

	if designResponse != nil {
		responses[models.RoleDesign] = designResponse
	}

	o.merge(result, responses)
	o.finalize(ctx, result, actx, start)

	return result, nil
}

// runDesign executes the design agent, choosing patch or generate from the
// intent. Returns nil when the budget gate rejects the call.
func (o *Orchestrator) runDesign(ctx context.Context, intent models.Intent, message string, actx models.AgentContext, result *models.OrchestrationResult) *models.AgentResponse {
	tool := "generate_workflow"
	params := map[string]any{"description": message}

	if intent == models.IntentModification {
		tool = "patch_workflow"
		params = map[string]any{
			"artifact": lastArtifact(actx.History),
			"defect":   message,
		}
	}

	response, err := o.invokeAgent(ctx, models.RoleDesign, tool, params, actx)
	if err != nil {
		if costgov.IsCostExceeded(err) {
			result.CostExceeded = true
		} else {
			result.Errors = append(result.Errors, err.Error())
		}

		return nil
	}

	return response
}

type phaseCall struct {
	role   models.AgentRole
	tool   string
	params map[string]any
}

// runValidationPhase fans out to security, integration, and quality against
// the given artifact text. Each agent reserves budget before running; a
// rejected reservation skips that agent only.
func (o *Orchestrator) runValidationPhase(ctx context.Context, message, code string, actx models.AgentContext, result *models.OrchestrationResult, opts Options) map[models.AgentRole]*models.AgentResponse {
	calls := make([]phaseCall, 0, 3)

	if !opts.SkipSecurity && code != "" {
		calls = append(calls, phaseCall{
			role:   models.RoleSecurity,
			tool:   "scan_code",
			params: map[string]any{"code": code},
		})
	}
	if !opts.SkipIntegration {
		calls = append(calls, phaseCall{
			role:   models.RoleIntegration,
			tool:   "suggest_integrations",
			params: map[string]any{"description": message},
		})
	}
	if !opts.SkipQuality && code != "" {
		calls = append(calls, phaseCall{
			role:   models.RoleQuality,
			tool:   "lint_workflow",
			params: map[string]any{"code": code},
		})
	}

	responses := make(map[models.AgentRole]*models.AgentResponse, len(calls)+1)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, call := range calls {
		wg.Add(1)

		go func(call phaseCall) {
			defer wg.Done()

			response, err := o.invokeAgent(ctx, call.role, call.tool, call.params, actx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				if costgov.IsCostExceeded(err) {
					result.CostExceeded = true
				} else {
					result.Errors = append(result.Errors, err.Error())
				}

				return
			}
			responses[call.role] = response
		}(call)
	}

	wg.Wait()

	return responses
}

// invokeAgent wraps one agent call with the cost gate and a span. Tool-level
// failures come back as unsuccessful responses; only budget rejections and
// registry misconfiguration surface as errors.
func (o *Orchestrator) invokeAgent(ctx context.Context, role models.AgentRole, tool string, params map[string]any, actx models.AgentContext) (*models.AgentResponse, error) {
	agent, err := o.registry.ByRole(role)
	if err != nil {
		return nil, err
	}

	estimate := o.governor.EstimateCost(tool)
	if err := o.governor.CheckAndReserve(ctx, actx.SessionID, estimate); err != nil {
		return nil, err
	}

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "agent.invoke",
		attribute.String(otelhelper.AgentRoleKey, string(role)),
		attribute.String(otelhelper.AgentToolKey, tool),
	)
	defer span.End()

	result, err := agent.Invoke(ctx, tool, params, actx)
	if err != nil {
		o.governor.Release(actx.SessionID, estimate)
		otelhelper.SetAgentError(span, string(role), tool, err)

		return nil, err
	}

	o.governor.Commit(actx.SessionID, estimate, estimate)

	return &models.AgentResponse{Role: role, Tool: tool, AgentResult: *result}, nil
}

// merge folds per-role responses into the result in canonical role order, so
// the output is identical regardless of goroutine completion order.
func (o *Orchestrator) merge(result *models.OrchestrationResult, responses map[models.AgentRole]*models.AgentResponse) {
	var suggestions []string

	for _, role := range models.CanonicalRoleOrder {
		response, ok := responses[role]
		if !ok {
			continue
		}

		result.Responses = append(result.Responses, *response)
		suggestions = append(suggestions, response.Suggestions...)

		if !response.Success {
			// A failed validation agent degrades gracefully: its error rides
			// on the response and it contributes no issues. Only a design
			// failure is fatal to the round.
			if role == models.RoleDesign {
				result.Issues = append(result.Issues, models.ValidationIssue{
					Role:     role,
					Severity: models.SeverityFailed,
					Message:  response.Error,
				})
			}

			continue
		}

		for _, warning := range response.Warnings {
			result.Issues = append(result.Issues, models.ValidationIssue{
				Role:     role,
				Severity: models.SeverityWarning,
				Message:  warning,
			})
		}
	}

	result.Suggestions = agents.DedupeStrings(suggestions)
}

func (o *Orchestrator) finalize(ctx context.Context, result *models.OrchestrationResult, actx models.AgentContext, start time.Time) {
	design, designRan := result.ResponseFor(models.RoleDesign)

	if result.Intent == models.IntentValidation {
		// No generation happened; the round succeeds when at least one
		// reviewer got to run.
		result.Success = len(result.Responses) > 0
	} else {
		result.Success = designRan && design.Success
	}
	for _, issue := range result.Issues {
		if issue.Severity == models.SeverityFailed && issue.Role == models.RoleDesign {
			result.Success = false
		}
	}

	result.DurationMs = time.Since(start).Milliseconds()
	result.TotalCost = o.governor.Spend(actx.SessionID)

	o.logger.InfoContext(ctx, "orchestration round finished",
		"session_id", actx.SessionID,
		"intent", result.Intent,
		"success", result.Success,
		"agents", len(result.Responses),
		"duration_ms", result.DurationMs,
		"total_cost", result.TotalCost,
		"cost_exceeded", result.CostExceeded)

	if o.publisher == nil {
		return
	}

	event := events.OrchestrationCompleted{
		BaseEvent:    events.NewBaseEvent(events.OrchestrationCompletedEvent, actx.OrganizationID),
		SessionID:    actx.SessionID,
		Intent:       result.Intent,
		Success:      result.Success,
		AgentsRun:    len(result.Responses),
		DurationMs:   result.DurationMs,
		TotalCost:    result.TotalCost,
		CostExceeded: result.CostExceeded,
	}
	if err := o.publisher.Publish(ctx, actx.SessionID, event); err != nil {
		o.logger.ErrorContext(ctx, "publishing orchestration event", "error", err)
	}
}

// BuildWorkflow generates a workflow from a description with each validation
// pass individually toggleable.
func (o *Orchestrator) BuildWorkflow(ctx context.Context, description string, actx models.AgentContext, opts Options) (*models.OrchestrationResult, error) {
	start := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.build_workflow",
		attribute.String(otelhelper.SessionIDKey, actx.SessionID),
	)
	defer span.End()

	o.governor.Configure(actx.SessionID, actx.ApprovalMode, actx.MaxCost)

	result := &models.OrchestrationResult{Intent: models.IntentNewWorkflow}

	designResponse := o.runDesign(ctx, models.IntentNewWorkflow, description, actx, result)
	if designResponse != nil && designResponse.Success {
		if code, ok := designResponse.Data["workflow_code"].(string); ok {
			result.WorkflowCode = code
		}
		if truncated, ok := designResponse.Data["truncated"].(bool); ok && truncated {
			result.Truncated = true
		}
	}

	responses := o.runValidationPhase(ctx, description, result.WorkflowCode, actx, result, opts)
	if designResponse != nil {
		responses[models.RoleDesign] = designResponse
	}

	o.merge(result, responses)
	o.finalize(ctx, result, actx, start)

	return result, nil
}

// ValidateRealtime runs one targeted validation pass against workflow data
// without generating anything.
func (o *Orchestrator) ValidateRealtime(ctx context.Context, workflowData map[string]any, actx models.AgentContext, validationType string) (*models.RealtimeValidation, error) {
	o.governor.Configure(actx.SessionID, actx.ApprovalMode, actx.MaxCost)

	var role models.AgentRole
	var tool string
	params := map[string]any{"workflow": workflowData}

	switch validationType {
	case "design":
		role, tool = models.RoleDesign, "check_design"
	case "quality":
		role, tool = models.RoleQuality, "review_quality"
	case "security":
		role, tool = models.RoleSecurity, "scan_code"
		code, _ := workflowData["code"].(string)
		params = map[string]any{"code": code}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownValidationType, validationType)
	}

	response, err := o.invokeAgent(ctx, role, tool, params, actx)
	if err != nil {
		return nil, err
	}

	validation := &models.RealtimeValidation{
		IsValid:     response.Success && len(response.Warnings) == 0,
		Suggestions: response.Suggestions,
	}
	for _, warning := range response.Warnings {
		validation.Issues = append(validation.Issues, models.ValidationIssue{
			Role:     role,
			Severity: models.SeverityWarning,
			Message:  warning,
		})
	}
	if !response.Success {
		validation.Issues = append(validation.Issues, models.ValidationIssue{
			Role:     role,
			Severity: models.SeverityFailed,
			Message:  response.Error,
		})
	}

	return validation, nil
}

// SuggestIntegrations asks the integration agent for ranked connector
// suggestions.
func (o *Orchestrator) SuggestIntegrations(ctx context.Context, description string, actx models.AgentContext) ([]string, error) {
	o.governor.Configure(actx.SessionID, actx.ApprovalMode, actx.MaxCost)

	response, err := o.invokeAgent(ctx, models.RoleIntegration, "suggest_integrations",
		map[string]any{"description": description}, actx)
	if err != nil {
		return nil, err
	}
	if !response.Success {
		return nil, fmt.Errorf("integration suggestion failed: %s", response.Error)
	}

	integrations, _ := response.Data["integrations"].([]string)

	return integrations, nil
}

// SecurityScan runs the full scan against generated code.
func (o *Orchestrator) SecurityScan(ctx context.Context, code string, packages []string, actx models.AgentContext) (*models.SecurityScanReport, error) {
	o.governor.Configure(actx.SessionID, actx.ApprovalMode, actx.MaxCost)

	estimate := o.governor.EstimateCost("scan_code")
	if err := o.governor.CheckAndReserve(ctx, actx.SessionID, estimate); err != nil {
		return nil, err
	}
	defer o.governor.Commit(actx.SessionID, estimate, estimate)

	return agents.ScanCode(code, packages), nil
}
