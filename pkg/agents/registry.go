package agents

import (
	"fmt"

	"github.com/flowsmith/flowsmith/pkg/models"
)

// Registry is the static catalogue of available agents, keyed by role. It is
// populated at process start and not mutated afterwards.
type Registry struct {
	agents map[models.AgentRole]Agent
}

func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[models.AgentRole]Agent, len(agents))}
	for _, agent := range agents {
		r.agents[agent.Role()] = agent
	}

	return r
}

// All returns every registered agent, in canonical role order.
func (r *Registry) All() []Agent {
	all := make([]Agent, 0, len(r.agents))

	for _, role := range models.CanonicalRoleOrder {
		if agent, ok := r.agents[role]; ok {
			all = append(all, agent)
		}
	}

	return all
}

// ByRole returns the agent registered for the role.
func (r *Registry) ByRole(role models.AgentRole) (Agent, error) {
	agent, ok := r.agents[role]
	if !ok {
		return nil, fmt.Errorf("role '%s': %w", role, ErrAgentNotFound)
	}

	return agent, nil
}

// Specialized returns every agent except the orchestration one.
func (r *Registry) Specialized() []Agent {
	specialized := make([]Agent, 0, len(r.agents))

	for _, agent := range r.All() {
		if agent.Role() != models.RoleOrchestration {
			specialized = append(specialized, agent)
		}
	}

	return specialized
}

// Orchestration returns the orchestration agent.
func (r *Registry) Orchestration() (Agent, error) {
	return r.ByRole(models.RoleOrchestration)
}

// Capabilities maps each role to its tool list.
func (r *Registry) Capabilities() map[models.AgentRole][]string {
	capabilities := make(map[models.AgentRole][]string, len(r.agents))
	for role, agent := range r.agents {
		capabilities[role] = agent.Tools()
	}

	return capabilities
}
