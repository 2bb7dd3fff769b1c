// Package webhook receives inbound webhook requests and converts them into
// trigger-fired events.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/flowsmith/flowsmith/pkg/eventbus"
	"github.com/flowsmith/flowsmith/pkg/events"
	"github.com/flowsmith/flowsmith/pkg/log"
	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/persistence"
)

// WebhookValidationError rejects a request before any event is emitted.
type WebhookValidationError struct {
	TriggerID string
	Reason    string
}

func (e *WebhookValidationError) Error() string {
	return fmt.Sprintf("webhook validation failed for trigger %s: %s", e.TriggerID, e.Reason)
}

// IsValidationError reports whether err is a WebhookValidationError.
func IsValidationError(err error) bool {
	var target *WebhookValidationError

	return errors.As(err, &target)
}

// Result is the outcome of one webhook delivery.
type Result struct {
	Success bool   `json:"success"`
	EventID string `json:"event_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// Processor validates webhook deliveries against their configured trigger and
// emits trigger-fired events. It never starts executions itself; the
// execution manager consumes the events.
type Processor struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

func NewProcessor(p persistence.Persistence, publisher eventbus.EventPublisher) *Processor {
	return &Processor{
		persistence: p,
		publisher:   publisher,
		logger:      log.WithModule("webhook"),
	}
}

// ProcessWebhook handles one delivery. The trigger must exist in the
// organization, be webhook-typed, and be active. The body is parsed per
// Content-Type; a body that cannot be parsed does not fail the request, the
// event simply carries no payload. Schema validation applies only when the
// trigger declares a payload schema.
func (p *Processor) ProcessWebhook(ctx context.Context, organizationID, triggerID, method string, headers map[string]string, body []byte) (*Result, error) {
	trigger, err := p.persistence.WorkflowTriggerByID(ctx, organizationID, triggerID)
	if err != nil {
		if persistence.IsTriggerNotFound(err) {
			return &Result{Success: false, Message: "unknown trigger"},
				&WebhookValidationError{TriggerID: triggerID, Reason: "unknown trigger"}
		}

		return nil, fmt.Errorf("looking up trigger %s: %w", triggerID, err)
	}
	if trigger.Type != models.TriggerTypeWebhook {
		return &Result{Success: false, Message: "trigger is not webhook-typed"},
			&WebhookValidationError{TriggerID: triggerID, Reason: "trigger is not webhook-typed"}
	}
	if !trigger.Active {
		return &Result{Success: false, Message: "trigger is inactive"},
			&WebhookValidationError{TriggerID: triggerID, Reason: "trigger is inactive"}
	}

	payload := parseBody(headers["Content-Type"], body)

	if len(trigger.PayloadSchema) > 0 && payload != nil {
		if err := validateSchema(payload, trigger.PayloadSchema); err != nil {
			p.logger.WarnContext(ctx, "webhook payload rejected by schema",
				"trigger_id", triggerID, "error", err)

			return &Result{Success: false, Message: err.Error()},
				&WebhookValidationError{TriggerID: triggerID, Reason: err.Error()}
		}
	}

	event := events.TriggerFired{
		BaseEvent:   events.NewBaseEvent(events.TriggerFiredEvent, organizationID),
		TriggerID:   triggerID,
		WorkflowID:  trigger.WorkflowID,
		TriggerType: models.TriggerTypeWebhook,
		DeliveryID:  headers["X-Delivery-Id"],
		TriggerData: map[string]any{
			"method":  method,
			"headers": headers,
			"body":    payload,
		},
	}

	if err := p.publisher.Publish(ctx, trigger.WorkflowID, event); err != nil {
		return nil, fmt.Errorf("publishing trigger fired event: %w", err)
	}

	p.logger.InfoContext(ctx, "webhook processed",
		"trigger_id", triggerID, "workflow_id", trigger.WorkflowID, "method", method)

	return &Result{Success: true, EventID: event.ID}, nil
}

// parseBody decodes the body per Content-Type. JSON objects become maps,
// form-encoded bodies become single-value maps, anything else is carried as
// raw text. Malformed bodies yield nil rather than an error.
func parseBody(contentType string, body []byte) map[string]any {
	if len(body) == 0 {
		return nil
	}

	mediaType := contentType
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}

	switch {
	case strings.Contains(mediaType, "json"):
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil
		}

		return payload
	case mediaType == "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil
		}
		payload := make(map[string]any, len(values))
		for key := range values {
			payload[key] = values.Get(key)
		}

		return payload
	default:
		return map[string]any{"raw": string(body)}
	}
}

func validateSchema(payload map[string]any, schema map[string]any) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		var messages []string
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}

		return fmt.Errorf("schema validation failed: %s", strings.Join(messages, "; "))
	}

	return nil
}
