package orchestrator

import (
	"github.com/orquestra-labs/orquestra/pkg/history"
)

// Execution modes reported in Result.Mode so callers can tell full
// orchestration from degraded single-shot routing.
const (
	ModeGraph           = "graph"
	ModeFallbackNoGraph = "fallback-no-graph"
)

// UnknownAgentMessage is the fixed content recorded when no agent matches.
const UnknownAgentMessage = "Agente não reconhecido para a solicitação"

// State is the accumulated request state carried through the graph.
type State struct {
	UserIntent    string
	SessionID     string
	AgentCalled   string
	Payload       map[string]interface{}
	AgentResponse string
	Error         string
}

// Result is the normalized outcome returned to callers.
type Result struct {
	Mode          string                 `json:"mode"`
	UserIntent    string                 `json:"user_intent,omitempty"`
	AgentCalled   string                 `json:"agent_called,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	AgentResponse string                 `json:"agent_response,omitempty"`
	Error         string                 `json:"error,omitempty"`
	History       []history.Turn         `json:"history"`
	SessionID     string                 `json:"session_id,omitempty"`
}
