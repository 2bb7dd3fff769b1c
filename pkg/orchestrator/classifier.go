package orchestrator

import (
	"strings"

	"github.com/flowsmith/flowsmith/pkg/models"
)

// editVocabulary marks messages that rework an existing artifact rather than
// describe a new one.
var editVocabulary = []string{
	"change", "update", "modify", "edit", "rename", "remove", "delete",
	"add a", "add an", "instead", "rather than", "fix",
}

var validationVocabulary = []string{
	"validate", "check", "review", "is this correct", "verify", "audit",
}

// KeywordClassifier is the default intent strategy: a message is a
// modification only when the conversation already produced an artifact and
// the message uses edit vocabulary or an explicit marker. Everything else is
// a new workflow unless the message asks for validation.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Classify(message string, history []models.ConversationTurn) models.Intent {
	lower := strings.ToLower(message)

	for _, phrase := range validationVocabulary {
		if strings.Contains(lower, phrase) {
			return models.IntentValidation
		}
	}

	if hasArtifact(history) {
		if strings.HasPrefix(lower, "modify:") {
			return models.IntentModification
		}
		for _, phrase := range editVocabulary {
			if strings.Contains(lower, phrase) {
				return models.IntentModification
			}
		}
	}

	return models.IntentNewWorkflow
}

func hasArtifact(history []models.ConversationTurn) bool {
	for _, turn := range history {
		if turn.HasArtifact {
			return true
		}
	}

	return false
}

// lastArtifact returns the most recent artifact content in the history.
func lastArtifact(history []models.ConversationTurn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].HasArtifact {
			return history[i].Content
		}
	}

	return ""
}
