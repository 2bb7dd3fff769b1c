// Package agents implements the role-specialized agents and their registry.
package agents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/flowsmith/flowsmith/pkg/models"
)

var (
	// ErrAgentNotFound indicates a lookup for an unregistered role. This is a
	// configuration error, surfaced immediately and never retried.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrToolNotFound indicates an unknown tool name for an agent.
	ErrToolNotFound = errors.New("tool not found")
)

// Agent executes named tools against a context and returns structured,
// recoverable results.
type Agent interface {
	Role() models.AgentRole
	Tools() []string
	Invoke(ctx context.Context, tool string, params map[string]any, actx models.AgentContext) (*models.AgentResult, error)
}

// toolFunc is one named tool implementation. Tools must not mutate shared
// orchestration state; results flow back through the return value only.
type toolFunc func(ctx context.Context, params map[string]any, actx models.AgentContext) (*models.AgentResult, error)

// baseAgent provides tool dispatch with the failure-isolation boundary: a
// tool error or panic becomes a failed AgentResult and never propagates into
// the orchestrator, so one failing agent cannot abort its siblings.
type baseAgent struct {
	role   models.AgentRole
	tools  map[string]toolFunc
	logger *slog.Logger
}

func newBaseAgent(role models.AgentRole, logger *slog.Logger) baseAgent {
	return baseAgent{
		role:   role,
		tools:  make(map[string]toolFunc),
		logger: logger.With("module", "agent", "role", string(role)),
	}
}

func (a *baseAgent) register(name string, fn toolFunc) {
	a.tools[name] = fn
}

func (a *baseAgent) Role() models.AgentRole {
	return a.role
}

func (a *baseAgent) Tools() []string {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (a *baseAgent) Invoke(ctx context.Context, tool string, params map[string]any, actx models.AgentContext) (result *models.AgentResult, err error) {
	fn, ok := a.tools[tool]
	if !ok {
		return nil, fmt.Errorf("agent %s: tool '%s': %w", a.role, tool, ErrToolNotFound)
	}

	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			a.logger.ErrorContext(ctx, "Tool panicked", "tool", tool, "panic", r)
			result = models.FailedResult(fmt.Errorf("tool %s panicked: %v", tool, r), time.Since(start))
			err = nil
		}
	}()

	result, toolErr := fn(ctx, params, actx)
	elapsed := time.Since(start)

	if toolErr != nil {
		a.logger.WarnContext(ctx, "Tool execution failed", "tool", tool, "error", toolErr)

		return models.FailedResult(toolErr, elapsed), nil
	}

	if result == nil {
		result = &models.AgentResult{Success: true}
	}

	result.DurationMs = elapsed.Milliseconds()

	return result, nil
}
