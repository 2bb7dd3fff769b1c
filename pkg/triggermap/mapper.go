package triggermap

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/flowsmith/flowsmith/pkg/log"
	"github.com/flowsmith/flowsmith/pkg/models"
	"github.com/flowsmith/flowsmith/pkg/template"
)

// Config tunes candidate ranking. The zero value is not usable; start from
// DefaultConfig.
type Config struct {
	// AutoSelectThreshold is the minimum confidence the top candidate needs
	// before it is auto-selected.
	AutoSelectThreshold float64

	// TieMargin is the confidence distance under which two candidates are
	// treated as a near-tie.
	TieMargin float64

	// MaxConfidence caps the accumulated score of any candidate.
	MaxConfidence float64
}

// DefaultConfig returns the standard ranking thresholds.
func DefaultConfig() Config {
	return Config{
		AutoSelectThreshold: 3.0,
		TieMargin:           0.5,
		MaxConfidence:       10.0,
	}
}

// Mapper ranks trigger templates against free-text workflow descriptions.
type Mapper struct {
	catalog []*models.TriggerTemplate
	config  Config
	logger  *slog.Logger
}

// New creates a Mapper over the given catalogue.
func New(catalog []*models.TriggerTemplate, config Config) *Mapper {
	return &Mapper{
		catalog: catalog,
		config:  config,
		logger:  log.WithModule("triggermap"),
	}
}

// NewDefault creates a Mapper over the built-in catalogue with default
// thresholds.
func NewDefault() *Mapper {
	return New(DefaultCatalog(), DefaultConfig())
}

// SuggestTriggers scores every catalogue template against the description and
// returns candidates ranked by confidence. The top candidate is auto-selected
// only when it clears the threshold and is not in a near-tie; on a near-tie a
// user-initiated candidate wins, otherwise the choice is left to the user.
func (m *Mapper) SuggestTriggers(description string) *models.TriggerSuggestion {
	lower := strings.ToLower(description)
	entities := extractEntities(lower)

	candidates := make([]models.TriggerCandidate, 0, len(m.catalog))
	for _, tpl := range m.catalog {
		score, reasons := m.score(tpl, lower)
		if score <= 0 {
			continue
		}
		if score > m.config.MaxConfidence {
			score = m.config.MaxConfidence
		}
		candidates = append(candidates, models.TriggerCandidate{
			Template:        tpl,
			Confidence:      score,
			Reasons:         reasons,
			SuggestedConfig: m.suggestedConfig(tpl, entities),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		return candidates[i].Template.ID < candidates[j].Template.ID
	})

	suggestion := &models.TriggerSuggestion{Candidates: candidates}
	suggestion.AutoSelected = m.autoSelect(candidates)

	if suggestion.AutoSelected != nil {
		m.logger.Debug("auto-selected trigger template",
			"template_id", suggestion.AutoSelected.Template.ID,
			"confidence", suggestion.AutoSelected.Confidence)
	}

	return suggestion
}

func (m *Mapper) score(tpl *models.TriggerTemplate, lower string) (float64, []string) {
	var score float64
	var reasons []string
	for _, kw := range tpl.Keywords {
		if strings.Contains(lower, kw.Text) {
			score += kw.Weight
			reasons = append(reasons, fmt.Sprintf("matched %q", kw.Text))
		}
	}
	if score > 0 {
		if bonus, reason := contextBonus(tpl, lower); bonus > 0 {
			score += bonus
			reasons = append(reasons, reason)
		}
	}
	return score, reasons
}

// contextBonus rewards co-occurrence of a template with phrasing that pins
// down its category beyond a bare keyword hit.
func contextBonus(tpl *models.TriggerTemplate, lower string) (float64, string) {
	switch tpl.Category {
	case models.CategoryTimeBased:
		for _, phrase := range []string{"daily", "every morning", "every day", "each week", "weekly", "monthly"} {
			if strings.Contains(lower, phrase) {
				return 1.5, "recurring phrasing"
			}
		}
	case models.CategoryEventBased:
		for _, phrase := range []string{"when a", "when an", "whenever", "arrives", "as soon as"} {
			if strings.Contains(lower, phrase) {
				return 1.0, "event phrasing"
			}
		}
	case models.CategorySystemBased:
		for _, phrase := range []string{"another system", "third party", "notifies us", "calls us"} {
			if strings.Contains(lower, phrase) {
				return 1.0, "system phrasing"
			}
		}
	}
	return 0, ""
}

// autoSelect applies the threshold and near-tie rules to the ranked list.
func (m *Mapper) autoSelect(candidates []models.TriggerCandidate) *models.TriggerCandidate {
	if len(candidates) == 0 {
		return nil
	}
	top := candidates[0]
	if top.Confidence < m.config.AutoSelectThreshold {
		return nil
	}

	tied := []models.TriggerCandidate{top}
	for _, c := range candidates[1:] {
		if top.Confidence-c.Confidence <= m.config.TieMargin {
			tied = append(tied, c)
		}
	}
	if len(tied) == 1 {
		return &top
	}

	// Near-tie. A user-initiated candidate is the safe default; anything else
	// needs an explicit user choice.
	var userInitiated *models.TriggerCandidate
	for i := range tied {
		if tied[i].Template.Category != models.CategoryUserInitiated {
			continue
		}
		if userInitiated != nil {
			return nil
		}
		userInitiated = &tied[i]
	}
	if userInitiated != nil && userInitiated.Confidence >= m.config.AutoSelectThreshold {
		return userInitiated
	}
	return nil
}

// GenerateProactiveQuestions returns the template's setup questions whose
// prerequisites are inferable from the description. Questions that depend on
// information the text does not carry are deferred.
func (m *Mapper) GenerateProactiveQuestions(description string, tpl *models.TriggerTemplate) []string {
	entities := extractEntities(strings.ToLower(description))
	var questions []string
	for _, q := range tpl.SetupQuestions {
		if q.DependsOn != "" {
			if _, ok := entities[q.DependsOn]; !ok {
				continue
			}
		}
		questions = append(questions, q.Text)
	}
	return questions
}

// suggestedConfig renders the template's default configuration against the
// entities extracted from the description. A default whose variables are not
// all inferable is skipped rather than rendered with holes.
func (m *Mapper) suggestedConfig(tpl *models.TriggerTemplate, entities map[string]string) map[string]any {
	defaults, ok := tpl.ConfigSchema["defaults"].(map[string]any)
	if !ok || len(defaults) == 0 {
		return nil
	}

	data := make(map[string]any, len(entities))
	for k, v := range entities {
		data[k] = v
	}

	config := make(map[string]any)
	for key, raw := range defaults {
		tmpl, ok := raw.(string)
		if !ok {
			config[key] = raw
			continue
		}
		if !entitiesCover(tmpl, entities) {
			continue
		}
		rendered, err := template.Render(tmpl, data)
		if err != nil {
			m.logger.Warn("skipping default config entry", "template_id", tpl.ID, "key", key, "error", err)
			continue
		}
		config[key] = rendered
	}
	if len(config) == 0 {
		return nil
	}
	return config
}

var templateVarPattern = regexp.MustCompile(`\{\{\s*\.([a-zA-Z_][a-zA-Z0-9_]*)`)

func entitiesCover(tmpl string, entities map[string]string) bool {
	for _, match := range templateVarPattern.FindAllStringSubmatch(tmpl, -1) {
		if _, ok := entities[match[1]]; !ok {
			return false
		}
	}
	return true
}

var timePattern = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)

var weekdays = map[string]string{
	"sunday":    "0",
	"monday":    "1",
	"tuesday":   "2",
	"wednesday": "3",
	"thursday":  "4",
	"friday":    "5",
	"saturday":  "6",
}

// extractEntities pulls schedule and filter facts out of the lowercased
// description. Keys double as SetupQuestion.DependsOn values and as template
// variables for suggested configuration.
func extractEntities(lower string) map[string]string {
	entities := map[string]string{}

	switch {
	case strings.Contains(lower, "daily") || strings.Contains(lower, "every day") || strings.Contains(lower, "every morning"):
		entities["recurrence"] = "daily"
		entities["dow"] = "*"
	case strings.Contains(lower, "weekly") || strings.Contains(lower, "each week") || strings.Contains(lower, "every week"):
		entities["recurrence"] = "weekly"
		entities["dow"] = "1"
	case strings.Contains(lower, "monthly") || strings.Contains(lower, "every month"):
		entities["recurrence"] = "monthly"
		entities["dow"] = "*"
	}

	for name, num := range weekdays {
		if strings.Contains(lower, "every "+name) || strings.Contains(lower, "each "+name) || strings.Contains(lower, "on "+name) {
			entities["recurrence"] = "weekly"
			entities["dow"] = num
			break
		}
	}

	if match := timePattern.FindStringSubmatch(lower); match != nil {
		hour := atoiSafe(match[1])
		if match[3] == "pm" && hour < 12 {
			hour += 12
		}
		if match[3] == "am" && hour == 12 {
			hour = 0
		}
		entities["hour"] = fmt.Sprintf("%d", hour)
		if match[2] != "" {
			entities["minute"] = strings.TrimLeft(match[2], "0")
			if entities["minute"] == "" {
				entities["minute"] = "0"
			}
		} else {
			entities["minute"] = "0"
		}
	}

	if strings.Contains(lower, "subject") || strings.Contains(lower, "from address") {
		entities["filter"] = "true"
	}

	return entities
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
