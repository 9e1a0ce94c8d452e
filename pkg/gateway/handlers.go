package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/orquestra-labs/orquestra/pkg/breaker"
	"github.com/orquestra-labs/orquestra/pkg/registry"
	"github.com/orquestra-labs/orquestra/pkg/router"
)

const routeRequestSchema = `{
	"type": "object",
	"properties": {
		"user_intent": {"type": "string", "minLength": 1, "maxLength": 4000},
		"session_id": {"type": "string"}
	},
	"required": ["user_intent"],
	"additionalProperties": false
}`

const clearSessionRequestSchema = `{
	"type": "object",
	"properties": {
		"session_id": {"type": "string", "minLength": 1}
	},
	"required": ["session_id"],
	"additionalProperties": false
}`

type routeRequest struct {
	UserIntent string `json:"user_intent"`
	SessionID  string `json:"session_id"`
}

type clearSessionRequest struct {
	SessionID string `json:"session_id"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]apiError{"error": {Code: code, Message: message}})
}

// decodeBody validates the request body against schema and unmarshals it
// into dst. A schema violation is reported as a 400 with the first failure.
func decodeBody(w http.ResponseWriter, r *http.Request, schema string, dst interface{}) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return false
	}

	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(schema), gojsonschema.NewBytesLoader(body))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return false
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		writeError(w, http.StatusBadRequest, "invalid_body", strings.Join(msgs, "; "))
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to decode request body")
		return false
	}
	return true
}

// handleRoute resolves the target agent without executing it.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req routeRequest
	if !decodeBody(w, r, routeRequestSchema, &req) {
		return
	}

	decision, err := s.router.Decide(r.Context(), req.UserIntent)
	if err != nil {
		if errors.Is(err, router.ErrEmptyIntent) {
			writeError(w, http.StatusBadRequest, "empty_intent", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "routing_failed", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// handleExecute routes the intent and invokes the chosen agent, without the
// history bookkeeping of full orchestration.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req routeRequest
	if !decodeBody(w, r, routeRequestSchema, &req) {
		return
	}

	ctx := r.Context()
	decision, err := s.router.Decide(ctx, req.UserIntent)
	if err != nil {
		if errors.Is(err, router.ErrEmptyIntent) {
			writeError(w, http.StatusBadRequest, "empty_intent", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "routing_failed", err.Error())
		return
	}

	name := decision.AgentCalled
	agent, err := s.registry.Lookup(name)
	if err != nil {
		if errors.Is(err, registry.ErrAgentNotFound) {
			writeError(w, http.StatusNotFound, "agent_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup_failed", err.Error())
		return
	}

	if s.breaker.IsOpen(ctx, name) {
		s.metrics.RecordCircuitReject(name)
		writeError(w, http.StatusServiceUnavailable, "circuit_open", breaker.ErrCircuitOpen.Error())
		return
	}

	start := time.Now()
	out, err := agent.Invoke(ctx, decision.Payload)
	elapsed := time.Since(start)
	if err != nil {
		s.breaker.RecordFailure(ctx, name)
		s.metrics.RecordAgentExecution(name, "failure", elapsed)
		writeError(w, http.StatusBadGateway, "execution_failed", err.Error())
		return
	}

	s.breaker.RecordSuccess(ctx, name)
	s.metrics.RecordAgentExecution(name, "success", elapsed)
	s.broadcaster.Broadcast("agent.executed", map[string]interface{}{
		"agent":      name,
		"session_id": req.SessionID,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agent_called": name,
		"response":     out,
		"payload":      decision.Payload,
	})
}

// handleOrchestrate runs the full graph for one request.
func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req routeRequest
	if !decodeBody(w, r, routeRequestSchema, &req) {
		return
	}

	result, err := s.orchestrator.Run(r.Context(), req.UserIntent, req.SessionID)
	if err != nil {
		if errors.Is(err, router.ErrEmptyIntent) {
			writeError(w, http.StatusBadRequest, "empty_intent", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "orchestration_failed", err.Error())
		return
	}

	s.broadcaster.Broadcast("orchestration.completed", map[string]interface{}{
		"session_id":   result.SessionID,
		"agent_called": result.AgentCalled,
		"mode":         result.Mode,
		"error":        result.Error,
	})

	writeJSON(w, http.StatusOK, result)
}

// handleClearSession drops a session's history immediately.
func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req clearSessionRequest
	if !decodeBody(w, r, clearSessionRequestSchema, &req) {
		return
	}

	if err := s.history.Clear(r.Context(), req.SessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	s.metrics.RecordSessionCleared()
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "cleared",
		"session_id": req.SessionID,
	})
}
