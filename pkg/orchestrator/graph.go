package orchestrator

import (
	"context"
	"fmt"
	"strings"
)

const (
	nodeRouter   = "router"
	nodeUnknown  = "unknown"
	nodeTerminal = "terminal"
)

type nodeFunc func(ctx context.Context, st *State)

// stateGraph is a small directed graph runner. Execution starts at the
// entry node, a conditional edge selects exactly one inner node, and every
// inner node transitions to the terminal state.
type stateGraph struct {
	entry    string
	selector func(st *State) string
	nodes    map[string]nodeFunc
	order    []string
}

func newStateGraph(entry string, selector func(st *State) string, nodes map[string]nodeFunc, order []string) (*stateGraph, error) {
	if selector == nil {
		return nil, fmt.Errorf("graph: nil selector")
	}
	if _, ok := nodes[entry]; !ok {
		return nil, fmt.Errorf("graph: entry node %q not registered", entry)
	}
	if _, ok := nodes[nodeUnknown]; !ok {
		return nil, fmt.Errorf("graph: sink node %q not registered", nodeUnknown)
	}
	for _, name := range order {
		if _, ok := nodes[name]; !ok {
			return nil, fmt.Errorf("graph: node %q listed but not registered", name)
		}
	}
	return &stateGraph{entry: entry, selector: selector, nodes: nodes, order: order}, nil
}

func (g *stateGraph) run(ctx context.Context, st *State) {
	g.nodes[g.entry](ctx, st)

	next := g.selector(st)
	node, ok := g.nodes[next]
	if !ok {
		node = g.nodes[nodeUnknown]
	}
	node(ctx, st)
}

// Mermaid renders the graph topology as a flowchart for the admin surface.
func (g *stateGraph) Mermaid() string {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	b.WriteString(fmt.Sprintf("    %s([%s])\n", nodeRouter, nodeRouter))
	for _, name := range g.order {
		if name == g.entry {
			continue
		}
		b.WriteString(fmt.Sprintf("    %s -->|%s| %s[%s]\n", nodeRouter, name, name, name))
		b.WriteString(fmt.Sprintf("    %s --> %s((%s))\n", name, nodeTerminal, nodeTerminal))
	}
	return b.String()
}
