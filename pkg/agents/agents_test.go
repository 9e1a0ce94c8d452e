package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orquestra-labs/orquestra/pkg/llm"
)

// scriptedProvider fails a fixed number of times before answering.
type scriptedProvider struct {
	failures int
	resp     string
	calls    int
	lastReq  llm.Request
}

func (s *scriptedProvider) Complete(_ context.Context, req llm.Request) (string, error) {
	s.calls++
	s.lastReq = req
	if s.calls <= s.failures {
		return "", errors.New("rate limited")
	}
	return s.resp, nil
}

func (s *scriptedProvider) Name() string { return "scripted" }

func noSleep(a *llmAgent) *llmAgent {
	a.sleep = func(context.Context, time.Duration) error { return nil }
	return a
}

func TestInvoke_HappyPath(t *testing.T) {
	sp := &scriptedProvider{resp: "Seu saldo é R$ 100,00"}
	a := noSleep(newLLMAgent("consulta_financeira", financeiroPrompt, sp, DefaultConfig()))

	got, err := a.Invoke(context.Background(), map[string]interface{}{"message": "Qual é o meu saldo atual?"})
	require.NoError(t, err)
	assert.Equal(t, "Seu saldo é R$ 100,00", got)
	assert.Equal(t, "Qual é o meu saldo atual?", sp.lastReq.UserMessage)
	assert.Contains(t, sp.lastReq.SystemPrompt, "consulta financeira")
}

func TestInvoke_RetriesThenSucceeds(t *testing.T) {
	sp := &scriptedProvider{failures: 2, resp: "ok"}
	a := noSleep(newLLMAgent("assessoria", assessoriaPrompt, sp, Config{MaxAttempts: 3}))

	got, err := a.Invoke(context.Background(), map[string]interface{}{"message": "oi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, sp.calls)
}

func TestInvoke_ExhaustedRetriesSurfaceError(t *testing.T) {
	sp := &scriptedProvider{failures: 10}
	a := noSleep(newLLMAgent("assessoria", assessoriaPrompt, sp, Config{MaxAttempts: 3}))

	_, err := a.Invoke(context.Background(), map[string]interface{}{"message": "oi"})
	require.Error(t, err)
	assert.Equal(t, 3, sp.calls)
}

func TestInvoke_PayloadValidation(t *testing.T) {
	a := noSleep(newLLMAgent("assessoria", assessoriaPrompt, &scriptedProvider{resp: "ok"}, DefaultConfig()))
	ctx := context.Background()

	t.Run("missing message", func(t *testing.T) {
		_, err := a.Invoke(ctx, map[string]interface{}{})
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("empty message", func(t *testing.T) {
		_, err := a.Invoke(ctx, map[string]interface{}{"message": ""})
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})

	t.Run("non-string message", func(t *testing.T) {
		_, err := a.Invoke(ctx, map[string]interface{}{"message": 42})
		assert.ErrorIs(t, err, ErrInvalidPayload)
	})
}

func TestInvoke_EmptyModelOutputIsExecutionFailure(t *testing.T) {
	sp := &scriptedProvider{resp: "   "}
	a := noSleep(newLLMAgent("assessoria", assessoriaPrompt, sp, DefaultConfig()))

	_, err := a.Invoke(context.Background(), map[string]interface{}{"message": "oi"})
	assert.ErrorContains(t, err, "invalid_output")
}

func TestAll_CanonicalOrder(t *testing.T) {
	set := All(&scriptedProvider{}, DefaultConfig())
	require.Len(t, set, 3)
	assert.Equal(t, "assessoria", set[0].Name())
	assert.Equal(t, "consulta_financeira", set[1].Name())
	assert.Equal(t, "agendamento", set[2].Name())
}
