// Package llm defines the language-model collaborator boundary and the
// bounded continuation protocol for truncated responses.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned at initialization when no API key is supplied.
// Absence of credentials is a structured startup error, not a silent no-op.
var ErrMissingAPIKey = errors.New("language model API key is not configured")

// UpstreamModelError wraps a failure of the model collaborator (timeout,
// malformed response, rate limit). It is fatal for the request unless it
// occurs during a continuation, in which case partial output is preserved.
type UpstreamModelError struct {
	Op  string
	Err error
}

func (e *UpstreamModelError) Error() string {
	return fmt.Sprintf("language model %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamModelError) Unwrap() error {
	return e.Err
}

// IsUpstreamModelError checks whether err originated at the model boundary.
func IsUpstreamModelError(err error) bool {
	var upstream *UpstreamModelError

	return errors.As(err, &upstream)
}

// Message is one turn in the request conversation.
type Message struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// GenerateRequest carries a system prompt, a message list and output limits.
type GenerateRequest struct {
	System    string    `json:"system,omitempty"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// GenerateResult is one model response. Truncated reports that the model
// stopped because of the output limit, not because it was done.
type GenerateResult struct {
	Text       string `json:"text"`
	Truncated  bool   `json:"truncated"`
	TokensUsed int    `json:"tokens_used"`
}

// Client is the text-generation collaborator. Implementations perform the
// network call; all orchestration-side state flows through return values.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
