package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orquestra-labs/orquestra/pkg/breaker"
	"github.com/orquestra-labs/orquestra/pkg/history"
	"github.com/orquestra-labs/orquestra/pkg/orchestrator"
	"github.com/orquestra-labs/orquestra/pkg/registry"
	"github.com/orquestra-labs/orquestra/pkg/router"
	"github.com/orquestra-labs/orquestra/pkg/store"
)

type fakeClassifier struct {
	out string
	err error
}

func (f *fakeClassifier) Classify(_ context.Context, _ string) (string, error) {
	return f.out, f.err
}

type fakeAgent struct {
	name  string
	out   string
	err   error
	calls int
}

func (a *fakeAgent) Name() string { return a.name }

func (a *fakeAgent) Invoke(_ context.Context, _ map[string]interface{}) (string, error) {
	a.calls++
	return a.out, a.err
}

type testEnv struct {
	server *Server
	hist   *history.History
	kv     *store.Memory
}

func newTestEnv(t *testing.T, apiKey string, cls router.Classifier, agents ...registry.Agent) *testEnv {
	t.Helper()

	kv := store.NewMemory()
	logger := zerolog.Nop()

	resolver := router.NewResolver(router.DefaultTable(), kv, logger, nil)
	rtr := router.New(cls, resolver, router.DefaultRetryConfig(), logger, nil)

	reg, err := registry.New(agents...)
	require.NoError(t, err)

	brk := breaker.New(kv, breaker.DefaultConfig(), logger, nil)
	hist := history.New(kv, history.DefaultConfig(), logger)
	orch := orchestrator.New(rtr, reg, brk, hist, logger, nil)

	srv, err := NewServer(Config{
		Host:            "127.0.0.1",
		Port:            8000,
		APIKey:          apiKey,
		Router:          rtr,
		Registry:        reg,
		Breaker:         brk,
		Orchestrator:    orch,
		History:         hist,
		Store:           kv,
		ClassifierReady: true,
		Logger:          logger,
	})
	require.NoError(t, err)

	return &testEnv{server: srv, hist: hist, kv: kv}
}

func classified(agent string) *fakeClassifier {
	return &fakeClassifier{out: fmt.Sprintf(`{"agent_called": %q}`, agent)}
}

func postJSON(t *testing.T, handler http.Handler, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Config{Port: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")

	_, err = NewServer(Config{Port: 8000})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "router is required")
}

func TestHandleRoute(t *testing.T) {
	env := newTestEnv(t, "", classified("consulta_financeira"), &fakeAgent{name: "consulta_financeira"})
	h := env.server.Handler()

	t.Run("resolves agent", func(t *testing.T) {
		rec := postJSON(t, h, "/route", `{"user_intent": "qual o meu saldo?"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var decision router.RoutingDecision
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
		assert.Equal(t, "consulta_financeira", decision.AgentCalled)
		assert.Equal(t, "qual o meu saldo?", decision.Payload["message"])
	})

	t.Run("blank intent", func(t *testing.T) {
		rec := postJSON(t, h, "/route", `{"user_intent": "   "}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "empty_intent")
	})

	t.Run("missing field", func(t *testing.T) {
		rec := postJSON(t, h, "/route", `{}`, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_body")
	})

	t.Run("get not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/route", nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestHandleExecute(t *testing.T) {
	agent := &fakeAgent{name: "assessoria", out: "como posso ajudar?"}
	env := newTestEnv(t, "", classified("assessoria"), agent)
	h := env.server.Handler()

	t.Run("routes and executes", func(t *testing.T) {
		rec := postJSON(t, h, "/execute", `{"user_intent": "preciso de assessoria"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "assessoria", resp["agent_called"])
		assert.Equal(t, "como posso ajudar?", resp["response"])
	})

	t.Run("failure then circuit open", func(t *testing.T) {
		agent.err = errors.New("upstream down")
		for i := 0; i < 3; i++ {
			rec := postJSON(t, h, "/execute", `{"user_intent": "preciso de assessoria"}`, nil)
			assert.Equal(t, http.StatusBadGateway, rec.Code)
			assert.Contains(t, rec.Body.String(), "execution_failed")
		}

		calls := agent.calls
		rec := postJSON(t, h, "/execute", `{"user_intent": "preciso de assessoria"}`, nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "circuit_open")
		assert.Equal(t, calls, agent.calls)
	})
}

func TestHandleExecuteUnknownIntent(t *testing.T) {
	env := newTestEnv(t, "", classified("previsao do tempo"), &fakeAgent{name: "assessoria"})
	h := env.server.Handler()

	rec := postJSON(t, h, "/execute", `{"user_intent": "vai chover?"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "agent_not_found")
}

func TestHandleOrchestrate(t *testing.T) {
	agent := &fakeAgent{name: "agendamento", out: "reunião marcada"}
	env := newTestEnv(t, "", classified("agendamento"), agent)
	h := env.server.Handler()

	rec := postJSON(t, h, "/orchestrate", `{"user_intent": "quero marcar uma reunião", "session_id": "sess-1"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result orchestrator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, orchestrator.ModeGraph, result.Mode)
	assert.Equal(t, "agendamento", result.AgentCalled)
	assert.Equal(t, "reunião marcada", result.AgentResponse)
	require.Len(t, result.History, 2)
}

func TestHandleClearSession(t *testing.T) {
	env := newTestEnv(t, "", classified("assessoria"), &fakeAgent{name: "assessoria", out: "ok"})
	h := env.server.Handler()
	ctx := context.Background()

	env.hist.Append(ctx, "sess-2", history.UserTurn("oi"))
	require.Len(t, env.hist.Read(ctx, "sess-2"), 1)

	rec := postJSON(t, h, "/admin/clear_session", `{"session_id": "sess-2"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, env.hist.Read(ctx, "sess-2"))

	rec = postJSON(t, h, "/admin/clear_session", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIKeyGuard(t *testing.T) {
	env := newTestEnv(t, "s3cret", classified("assessoria"), &fakeAgent{name: "assessoria", out: "ok"})
	h := env.server.Handler()

	rec := postJSON(t, h, "/route", `{"user_intent": "oi"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, h, "/route", `{"user_intent": "oi"}`, map[string]string{"X-API-Key": "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Probes stay open.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestEnv(t, "", classified("assessoria"), &fakeAgent{name: "assessoria"})
	h := env.server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	env.server.classifierReady = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no credential configured")
}

func TestGraphMermaid(t *testing.T) {
	env := newTestEnv(t, "", classified("assessoria"), &fakeAgent{name: "assessoria"})
	h := env.server.Handler()

	req := httptest.NewRequest(http.MethodGet, "/graph/mermaid", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "flowchart TD")
	assert.Contains(t, rec.Body.String(), "assessoria")
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, "", classified("assessoria"), &fakeAgent{name: "assessoria"})
	h := env.server.Handler()

	rec := postJSON(t, h, "/route", `{"user_intent": "oi"}`, nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = postJSON(t, h, "/route", `{"user_intent": "oi"}`, map[string]string{"X-Request-Id": "req-42"})
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
}

func TestWebSocketReceivesOrchestrationEvents(t *testing.T) {
	agent := &fakeAgent{name: "assessoria", out: "ok"}
	env := newTestEnv(t, "", classified("assessoria"), agent)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return env.server.Broadcaster().ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	resp, err := http.Post(ts.URL+"/orchestrate", "application/json",
		strings.NewReader(`{"user_intent": "fale com a assessoria", "session_id": "sess-ws"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg EventMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "orchestration.completed", msg.Event)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "assessoria", data["agent_called"])
}
