// Package orchestrator runs one user request through the routing graph:
// the router node picks an agent, the matching agent node executes it behind
// the circuit breaker, and unresolved intents drain into the unknown sink.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/orquestra-labs/orquestra/internal/metrics"
	"github.com/orquestra-labs/orquestra/pkg/breaker"
	"github.com/orquestra-labs/orquestra/pkg/history"
	"github.com/orquestra-labs/orquestra/pkg/registry"
	"github.com/orquestra-labs/orquestra/pkg/router"
)

// Orchestrator wires router, registry, breaker, and history into the request
// graph. If graph construction fails at startup the orchestrator stays usable
// in a degraded mode that routes without executing agents.
type Orchestrator struct {
	router   *router.IntentRouter
	registry *registry.Registry
	breaker  *breaker.Breaker
	history  *history.History
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	graph    *stateGraph
	buildErr error
}

// New builds the orchestrator and its graph from the registered agents.
func New(rtr *router.IntentRouter, reg *registry.Registry, brk *breaker.Breaker, hist *history.History, logger zerolog.Logger, m *metrics.Metrics) *Orchestrator {
	o := &Orchestrator{
		router:   rtr,
		registry: reg,
		breaker:  brk,
		history:  hist,
		logger:   logger,
		metrics:  m,
	}

	nodes := map[string]nodeFunc{
		nodeRouter:  o.routerNode,
		nodeUnknown: o.unknownNode,
	}
	order := []string{nodeRouter}
	for _, name := range reg.Names() {
		// An agent must not shadow the entry, sink, or terminal node.
		if name == nodeRouter || name == nodeUnknown || name == nodeTerminal {
			o.buildErr = fmt.Errorf("graph: agent name %q is reserved", name)
			o.logger.Error().Err(o.buildErr).Msg("Graph construction failed, orchestrator degraded to routing-only mode")
			return o
		}
		nodes[name] = o.agentNode(name)
		order = append(order, name)
	}
	order = append(order, nodeUnknown)

	g, err := newStateGraph(nodeRouter, func(st *State) string { return st.AgentCalled }, nodes, order)
	if err != nil {
		o.buildErr = err
		o.logger.Error().Err(err).Msg("Graph construction failed, orchestrator degraded to routing-only mode")
		return o
	}
	o.graph = g
	return o
}

// Run executes one request end to end. The user turn is recorded before
// routing so the transcript keeps request order even when execution fails.
func (o *Orchestrator) Run(ctx context.Context, userIntent, sessionID string) (Result, error) {
	if strings.TrimSpace(userIntent) == "" {
		return Result{}, router.ErrEmptyIntent
	}
	if o.graph == nil {
		return o.runWithoutGraph(ctx, userIntent, sessionID)
	}

	o.history.Append(ctx, sessionID, history.UserTurn(userIntent))

	st := &State{UserIntent: userIntent, SessionID: sessionID}
	o.graph.run(ctx, st)

	return Result{
		Mode:          ModeGraph,
		UserIntent:    st.UserIntent,
		AgentCalled:   st.AgentCalled,
		Payload:       st.Payload,
		AgentResponse: st.AgentResponse,
		Error:         st.Error,
		History:       o.history.Read(ctx, sessionID),
		SessionID:     sessionID,
	}, nil
}

// runWithoutGraph performs routing only. The decision and the graph build
// error are surfaced so callers know no agent ran.
func (o *Orchestrator) runWithoutGraph(ctx context.Context, userIntent, sessionID string) (Result, error) {
	decision, err := o.router.Decide(ctx, userIntent)
	if err != nil {
		return Result{}, err
	}

	o.history.Append(ctx, sessionID, history.UserTurn(userIntent))

	return Result{
		Mode:        ModeFallbackNoGraph,
		UserIntent:  userIntent,
		AgentCalled: decision.AgentCalled,
		Payload:     decision.Payload,
		Error:       o.buildErr.Error(),
		History:     o.history.Read(ctx, sessionID),
		SessionID:   sessionID,
	}, nil
}

// Mermaid renders the graph topology, or an empty string when the graph
// failed to build.
func (o *Orchestrator) Mermaid() string {
	if o.graph == nil {
		return ""
	}
	return o.graph.Mermaid()
}

func (o *Orchestrator) routerNode(ctx context.Context, st *State) {
	decision, err := o.router.Decide(ctx, st.UserIntent)
	if err != nil {
		st.AgentCalled = router.Unknown
		st.Error = err.Error()
		return
	}
	st.AgentCalled = decision.AgentCalled
	st.Payload = decision.Payload
}

// agentNode builds the node body for one registered agent. The breaker is
// consulted before execution; a known-open circuit short-circuits without
// counting a fresh failure.
func (o *Orchestrator) agentNode(name string) nodeFunc {
	return func(ctx context.Context, st *State) {
		if o.breaker.IsOpen(ctx, name) {
			st.Error = breaker.ErrCircuitOpen.Error()
			o.metrics.RecordCircuitReject(name)
			o.metrics.RecordAgentExecution(name, "rejected", 0)
			o.history.Append(ctx, st.SessionID, history.AgentTurn(name, false, st.Error))
			o.logger.Warn().Str("agent", name).Msg("Request rejected, circuit open")
			return
		}

		agent, err := o.registry.Lookup(name)
		if err != nil {
			st.Error = fmt.Sprintf("%s_failed: %v", name, err)
			o.breaker.RecordFailure(ctx, name)
			o.metrics.RecordAgentExecution(name, "failure", 0)
			o.history.Append(ctx, st.SessionID, history.AgentTurn(name, false, st.Error))
			o.logger.Error().Err(err).Str("agent", name).Msg("Agent lookup failed")
			return
		}

		start := time.Now()
		out, err := agent.Invoke(ctx, st.Payload)
		elapsed := time.Since(start)
		if err != nil {
			st.Error = fmt.Sprintf("%s_failed: %v", name, err)
			o.breaker.RecordFailure(ctx, name)
			o.metrics.RecordAgentExecution(name, "failure", elapsed)
			o.history.Append(ctx, st.SessionID, history.AgentTurn(name, false, st.Error))
			o.logger.Error().Err(err).Str("agent", name).Dur("elapsed", elapsed).Msg("Agent execution failed")
			return
		}

		st.AgentResponse = out
		o.breaker.RecordSuccess(ctx, name)
		o.metrics.RecordAgentExecution(name, "success", elapsed)
		o.history.Append(ctx, st.SessionID, history.AgentTurn(name, true, out))
		o.logger.Info().Str("agent", name).Dur("elapsed", elapsed).Msg("Agent execution succeeded")
	}
}

// unknownNode records the miss as a failed agent turn with no agent name.
func (o *Orchestrator) unknownNode(ctx context.Context, st *State) {
	if st.Error == "" {
		st.Error = UnknownAgentMessage
	}
	o.history.Append(ctx, st.SessionID, history.AgentTurn("", false, UnknownAgentMessage))
	o.logger.Warn().Str("user_intent", st.UserIntent).Msg("No agent recognized for request")
}
