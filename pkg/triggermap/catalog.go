// Package triggermap maps free-text workflow descriptions to configurable
// trigger template candidates with confidence scores.
package triggermap

import "github.com/flowsmith/flowsmith/pkg/models"

// DefaultCatalog returns the built-in trigger template catalogue covering
// every supported trigger type. Organizations may extend it through the
// persistence layer; these are the seed entries.
func DefaultCatalog() []*models.TriggerTemplate {
	return []*models.TriggerTemplate{
		{
			ID:          "manual-start",
			Name:        "Manual start",
			Description: "A user starts the workflow on demand",
			Type:        models.TriggerTypeManual,
			Category:    models.CategoryUserInitiated,
			Keywords: []models.WeightedKeyword{
				{Text: "manually", Weight: 3},
				{Text: "on demand", Weight: 3},
				{Text: "button", Weight: 2},
				{Text: "start myself", Weight: 3},
				{Text: "when i click", Weight: 2},
			},
			SetupQuestions: []models.SetupQuestion{
				{Text: "Who should be allowed to start this workflow?", Field: "allowed_roles"},
			},
		},
		{
			ID:          "scheduled-run",
			Name:        "Scheduled run",
			Description: "The workflow runs on a recurring schedule",
			Type:        models.TriggerTypeScheduled,
			Category:    models.CategoryTimeBased,
			Keywords: []models.WeightedKeyword{
				{Text: "daily", Weight: 3},
				{Text: "weekly", Weight: 3},
				{Text: "monthly", Weight: 3},
				{Text: "every morning", Weight: 3},
				{Text: "every day", Weight: 3},
				{Text: "schedule", Weight: 3},
				{Text: "cron", Weight: 3},
				{Text: "every", Weight: 1},
				{Text: "at ", Weight: 0.5},
			},
			ConfigSchema: map[string]any{
				"defaults": map[string]any{
					"cron": "{{.minute}} {{.hour}} * * {{.dow}}",
				},
			},
			SetupQuestions: []models.SetupQuestion{
				{Text: "What time of day should this run, and on which days of the week?", Field: "schedule_time", DependsOn: "recurrence"},
				{Text: "Which timezone should the schedule use?", Field: "timezone", DependsOn: "recurrence"},
				{Text: "How often should this workflow run?", Field: "recurrence"},
			},
		},
		{
			ID:          "email-received",
			Name:        "Email received",
			Description: "The workflow starts when a matching email arrives",
			Type:        models.TriggerTypeEmailReceived,
			Category:    models.CategoryEventBased,
			Keywords: []models.WeightedKeyword{
				{Text: "email", Weight: 3},
				{Text: "inbox", Weight: 3},
				{Text: "mail arrives", Weight: 3},
				{Text: "receives an email", Weight: 3},
			},
			SetupQuestions: []models.SetupQuestion{
				{Text: "Which mailbox should be watched?", Field: "mailbox"},
				{Text: "Should the subject line be filtered, and on what?", Field: "subject_filter", DependsOn: "filter"},
			},
		},
		{
			ID:          "file-added",
			Name:        "File added",
			Description: "The workflow starts when a file lands in a watched location",
			Type:        models.TriggerTypeFileAdded,
			Category:    models.CategoryEventBased,
			Keywords: []models.WeightedKeyword{
				{Text: "file", Weight: 2},
				{Text: "uploaded", Weight: 3},
				{Text: "document added", Weight: 3},
				{Text: "attachment", Weight: 2},
				{Text: "folder", Weight: 2},
			},
			SetupQuestions: []models.SetupQuestion{
				{Text: "Which folder or location should be watched?", Field: "location"},
				{Text: "Which file types should start the workflow?", Field: "file_types"},
			},
		},
		{
			ID:          "record-created",
			Name:        "Record created",
			Description: "The workflow starts when a new record is created",
			Type:        models.TriggerTypeRecordCreated,
			Category:    models.CategoryEventBased,
			Keywords: []models.WeightedKeyword{
				{Text: "new record", Weight: 3},
				{Text: "new entry", Weight: 3},
				{Text: "new row", Weight: 3},
				{Text: "is created", Weight: 2},
				{Text: "gets created", Weight: 2},
			},
			SetupQuestions: []models.SetupQuestion{
				{Text: "Which table or collection should be watched?", Field: "table"},
			},
		},
		{
			ID:          "record-updated",
			Name:        "Record updated",
			Description: "The workflow starts when a record changes",
			Type:        models.TriggerTypeRecordUpdated,
			Category:    models.CategoryEventBased,
			Keywords: []models.WeightedKeyword{
				{Text: "is updated", Weight: 3},
				{Text: "gets updated", Weight: 3},
				{Text: "changes", Weight: 2},
				{Text: "is modified", Weight: 3},
				{Text: "status change", Weight: 3},
			},
			SetupQuestions: []models.SetupQuestion{
				{Text: "Which table or collection should be watched?", Field: "table"},
				{Text: "Which field changes should start the workflow?", Field: "fields"},
			},
		},
		{
			ID:          "inbound-webhook",
			Name:        "Inbound webhook",
			Description: "An external system calls a webhook URL to start the workflow",
			Type:        models.TriggerTypeWebhook,
			Category:    models.CategorySystemBased,
			Keywords: []models.WeightedKeyword{
				{Text: "webhook", Weight: 4},
				{Text: "api call", Weight: 3},
				{Text: "external system", Weight: 2},
				{Text: "http", Weight: 2},
				{Text: "post request", Weight: 3},
				{Text: "callback", Weight: 2},
			},
			SetupQuestions: []models.SetupQuestion{
				{Text: "Which external system will call the webhook?", Field: "source_system"},
				{Text: "Should the payload be validated against a schema?", Field: "payload_schema"},
			},
		},
		{
			ID:          "condition-met",
			Name:        "Condition met",
			Description: "The workflow starts when a monitored value satisfies a condition",
			Type:        models.TriggerTypeConditionMet,
			Category:    models.CategorySystemBased,
			Keywords: []models.WeightedKeyword{
				{Text: "threshold", Weight: 3},
				{Text: "exceeds", Weight: 3},
				{Text: "condition", Weight: 2},
				{Text: "if the value", Weight: 3},
				{Text: "over $", Weight: 2},
				{Text: "more than", Weight: 1},
			},
			SetupQuestions: []models.SetupQuestion{
				{Text: "Which value should be monitored?", Field: "metric"},
				{Text: "What threshold should start the workflow?", Field: "threshold"},
			},
		},
	}
}
