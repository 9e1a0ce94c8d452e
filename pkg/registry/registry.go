// Package registry maps canonical agent names to their invocable handlers.
// The registry is built once at process start and never mutated afterwards.
package registry

import (
	"context"
	"errors"
	"fmt"
)

// ErrAgentNotFound is returned when a lookup names no registered agent.
var ErrAgentNotFound = errors.New("agent not found")

// Agent is a named capability that consumes a payload and produces a text
// response for one task domain. Invoke must be safely callable repeatedly;
// idempotence of the underlying effect is the agent's own concern.
type Agent interface {
	Name() string
	Invoke(ctx context.Context, payload map[string]interface{}) (string, error)
}

// Registry is a static name-to-agent mapping. Lookup only; registration
// happens at construction.
type Registry struct {
	agents map[string]Agent
	order  []string
}

// New builds a registry from the given agents. Duplicate names are a
// construction error since they would make routing ambiguous.
func New(agents ...Agent) (*Registry, error) {
	r := &Registry{
		agents: make(map[string]Agent, len(agents)),
		order:  make([]string, 0, len(agents)),
	}
	for _, a := range agents {
		name := a.Name()
		if name == "" {
			return nil, fmt.Errorf("agent with empty name")
		}
		if _, dup := r.agents[name]; dup {
			return nil, fmt.Errorf("duplicate agent name %q", name)
		}
		r.agents[name] = a
		r.order = append(r.order, name)
	}
	return r, nil
}

// Lookup returns the agent registered under name.
func (r *Registry) Lookup(name string) (Agent, error) {
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrAgentNotFound, name)
	}
	return a, nil
}

// Names returns the canonical agent names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
